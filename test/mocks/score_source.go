// Package mocks provides shared test doubles for external collaborators.
package mocks

import (
	"context"
	"fmt"
	"sync"
)

// MockScoreSource is an in-memory reputation source.
// Used for testing without requiring the reputation service.
type MockScoreSource struct {
	mu     sync.RWMutex
	scores map[uint]int
	calls  int
	err    error
}

// NewMockScoreSource creates a new mock score source.
func NewMockScoreSource() *MockScoreSource {
	return &MockScoreSource{scores: make(map[uint]int)}
}

// SetScore sets a user's score.
func (m *MockScoreSource) SetScore(userID uint, score int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores[userID] = score
}

// SetError makes every Score call fail.
func (m *MockScoreSource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many Score calls were made.
func (m *MockScoreSource) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// Score returns the configured score for the user, defaulting to 0.
func (m *MockScoreSource) Score(_ context.Context, userID uint) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	score, ok := m.scores[userID]
	if !ok {
		return 0, nil
	}
	if score < -10000 || score > 10000 {
		return 0, fmt.Errorf("mock score %d out of range", score)
	}
	return score, nil
}

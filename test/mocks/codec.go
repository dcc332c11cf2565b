package mocks

import "errors"

// MockCodec accepts every blob except those registered as bad.
type MockCodec struct {
	bad map[string]bool
}

// NewMockCodec creates a codec that accepts everything.
func NewMockCodec() *MockCodec {
	return &MockCodec{bad: make(map[string]bool)}
}

// Reject marks a blob as undecodable.
func (m *MockCodec) Reject(blob []byte) {
	m.bad[string(blob)] = true
}

// Decode fails only for rejected blobs.
func (m *MockCodec) Decode(data []byte) error {
	if m.bad[string(data)] {
		return errors.New("mock: undecodable payload")
	}
	return nil
}

package reputation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wynnsource/loot-consensus/pkg/logger"
)

// Source yields the current reputation score for a user. The engine never
// computes or mutates scores; it only consumes them.
type Source interface {
	Score(ctx context.Context, userID uint) (int, error)
}

// HTTPSource fetches scores from the reputation service.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource creates a reputation source backed by the reputation
// service's REST API.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Score fetches the user's current score.
func (s *HTTPSource) Score(ctx context.Context, userID uint) (int, error) {
	url := fmt.Sprintf("%s/users/%d/score", s.baseURL, userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build reputation request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch reputation score for user %d: %w", userID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("reputation service returned status %d for user %d", resp.StatusCode, userID)
	}

	var body struct {
		Score int `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode reputation response for user %d: %w", userID, err)
	}
	return body.Score, nil
}

// CachedSource fronts a Source with a short-lived Redis cache so hot
// submitters do not hit the reputation backend on every report. Cache
// failures degrade to direct fetches.
type CachedSource struct {
	inner Source
	rdb   redis.UniversalClient
	ttl   time.Duration
	log   *logger.Logger
}

// NewCachedSource creates a caching wrapper around inner.
func NewCachedSource(inner Source, rdb redis.UniversalClient, ttl time.Duration, log *logger.Logger) *CachedSource {
	return &CachedSource{inner: inner, rdb: rdb, ttl: ttl, log: log}
}

func cacheKey(userID uint) string {
	return "reputation:score:" + strconv.FormatUint(uint64(userID), 10)
}

// Score returns the cached score when fresh, falling through to the inner
// source otherwise.
func (c *CachedSource) Score(ctx context.Context, userID uint) (int, error) {
	val, err := c.rdb.Get(ctx, cacheKey(userID)).Result()
	if err == nil {
		if score, perr := strconv.Atoi(val); perr == nil {
			return score, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warn().Err(err).Uint("user_id", userID).Msg("Reputation cache read failed")
	}

	score, err := c.inner.Score(ctx, userID)
	if err != nil {
		return 0, err
	}

	if err := c.rdb.Set(ctx, cacheKey(userID), strconv.Itoa(score), c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Uint("user_id", userID).Msg("Reputation cache write failed")
	}
	return score, nil
}

// Package ingest implements the submission ingestion pipeline: validation,
// rotation attribution, weighting, and replace-or-insert persistence.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"

	"github.com/wynnsource/loot-consensus/internal/item"
	prommetrics "github.com/wynnsource/loot-consensus/internal/metrics"
	"github.com/wynnsource/loot-consensus/internal/models"
	"github.com/wynnsource/loot-consensus/internal/repository"
	"github.com/wynnsource/loot-consensus/internal/reputation"
	"github.com/wynnsource/loot-consensus/internal/rotation"
	"github.com/wynnsource/loot-consensus/pkg/logger"
)

// RejectReason classifies a validation rejection.
type RejectReason string

// Rejection reasons. These are expected outcomes, surfaced as values, never
// as errors.
const (
	RejectInvalidPoolType RejectReason = "invalid_pool_type"
	RejectInvalidRegion   RejectReason = "invalid_region"
	RejectClockSkew       RejectReason = "clock_skew"
	RejectNoValidItems    RejectReason = "no_valid_items"
)

// Request is one client report of a pool's observed contents.
type Request struct {
	PoolType        rotation.PoolType
	Region          string
	Page            int
	Items           [][]byte
	ClientTimestamp time.Time
	ModVersion      string
}

// Outcome labels for accepted submissions.
const (
	OutcomeCreated   = "created"
	OutcomeReplaced  = "replaced"
	OutcomeUnchanged = "unchanged"
)

// Result reports what happened to one submission.
type Result struct {
	Accepted     bool
	Reason       RejectReason // set only when rejected
	Outcome      string       // set only when accepted
	PoolID       uint
	Weight       float64
	Fuzzy        bool
	DroppedItems int
}

func rejected(reason RejectReason) Result {
	return Result{Reason: reason}
}

// Scores abstracts the external reputation source.
type Scores interface {
	Score(ctx context.Context, userID uint) (int, error)
}

// Service validates and applies submissions.
type Service struct {
	pools       *repository.PoolRepository
	scores      Scores
	codec       item.Codec
	clock       clockwork.Clock
	fuzzyWindow time.Duration
	maxSkew     time.Duration
	log         *logger.Logger
}

// NewService creates the ingestion service.
func NewService(
	pools *repository.PoolRepository,
	scores Scores,
	codec item.Codec,
	clock clockwork.Clock,
	fuzzyWindow time.Duration,
	maxSkew time.Duration,
	log *logger.Logger,
) *Service {
	return &Service{
		pools:       pools,
		scores:      scores,
		codec:       codec,
		clock:       clock,
		fuzzyWindow: fuzzyWindow,
		maxSkew:     maxSkew,
		log:         log,
	}
}

// Ingest validates and applies one submission for the reporting user.
// Validation failures come back inside Result; the error return is reserved
// for storage and reputation-source faults. No side effects happen on any
// rejection path.
func (s *Service) Ingest(ctx context.Context, req Request, userID uint) (Result, error) {
	start := s.clock.Now()
	defer func() {
		prommetrics.ObserveIngestDuration(s.clock.Since(start))
	}()

	if !req.PoolType.Valid() {
		prommetrics.RecordSubmissionRejected(string(req.PoolType), string(RejectInvalidPoolType))
		return rejected(RejectInvalidPoolType), nil
	}
	if !req.PoolType.RegionValid(req.Region) {
		prommetrics.RecordSubmissionRejected(string(req.PoolType), string(RejectInvalidRegion))
		return rejected(RejectInvalidRegion), nil
	}

	now := s.clock.Now()
	skew := now.Sub(req.ClientTimestamp)
	if skew < 0 {
		skew = -skew
	}
	if skew > s.maxSkew {
		prommetrics.RecordSubmissionRejected(string(req.PoolType), string(RejectClockSkew))
		return rejected(RejectClockSkew), nil
	}

	// Undecodable blobs are dropped, not fatal; only an empty survivor set
	// rejects the submission as a whole.
	survivors := make(models.ItemBlobs, 0, len(req.Items))
	for _, blob := range req.Items {
		if err := s.codec.Decode(blob); err != nil {
			continue
		}
		survivors = append(survivors, blob)
	}
	dropped := len(req.Items) - len(survivors)
	prommetrics.RecordItemsDropped(string(req.PoolType), dropped)
	if len(survivors) == 0 {
		prommetrics.RecordSubmissionRejected(string(req.PoolType), string(RejectNoValidItems))
		return rejected(RejectNoValidItems), nil
	}

	// Attribute the submission to the rotation of its client timestamp.
	sched, err := rotation.ScheduleFor(req.PoolType)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load schedule for %s: %w", req.PoolType, err)
	}
	window, err := rotation.Resolve(sched, req.ClientTimestamp, 0)
	if err != nil {
		return Result{}, fmt.Errorf("failed to resolve rotation for %s: %w", req.PoolType, err)
	}

	pool, created, err := s.pools.GetOrCreatePool(req.PoolType, req.Region, req.Page, window)
	if err != nil {
		return Result{}, err
	}
	if created {
		prommetrics.RecordPoolCreated(string(req.PoolType))
		s.log.Info().
			Str("pool_type", string(req.PoolType)).
			Str("region", req.Region).
			Int("page", req.Page).
			Time("rotation_start", window.Start).
			Msg("Created pool for new rotation")
	}

	fuzzy := window.NearBoundary(req.ClientTimestamp, s.fuzzyWindow)

	score, err := s.scores.Score(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch reputation score for user %d: %w", userID, err)
	}
	weight, err := reputation.SubmissionWeight(score, fuzzy)
	if err != nil {
		return Result{}, fmt.Errorf("failed to compute weight for user %d: %w", userID, err)
	}

	result := Result{
		Accepted:     true,
		PoolID:       pool.ID,
		Weight:       weight,
		Fuzzy:        fuzzy,
		DroppedItems: dropped,
	}

	existing, err := s.pools.GetUserSubmission(pool.ID, userID)
	switch {
	case err == nil:
		if existing.ItemData.Equal(survivors) {
			// Unchanged resubmission: still alive, nothing to recompute.
			result.Outcome = OutcomeUnchanged
			prommetrics.RecordSubmissionIngested(string(req.PoolType), OutcomeUnchanged)
			return result, nil
		}

		existing.ItemData = survivors
		existing.Weight = weight
		existing.Fuzzy = fuzzy
		existing.ClientTimestamp = req.ClientTimestamp
		existing.SubmittedAt = now
		existing.ModVersion = req.ModVersion
		if err := s.pools.SaveSubmission(existing); err != nil {
			return Result{}, err
		}
		if err := s.pools.MarkDirty(pool.ID, now); err != nil {
			return Result{}, err
		}

		result.Outcome = OutcomeReplaced
		prommetrics.RecordSubmissionIngested(string(req.PoolType), OutcomeReplaced)

	case errors.Is(err, gorm.ErrRecordNotFound):
		sub := &models.PoolSubmission{
			PoolID:          pool.ID,
			UserID:          userID,
			ItemData:        survivors,
			Weight:          weight,
			Fuzzy:           fuzzy,
			ClientTimestamp: req.ClientTimestamp,
			SubmittedAt:     now,
			ModVersion:      req.ModVersion,
		}
		if err := s.pools.CreateSubmission(sub); err != nil {
			return Result{}, err
		}
		if err := s.pools.MarkDirtyNewSubmission(pool.ID, now); err != nil {
			return Result{}, err
		}

		result.Outcome = OutcomeCreated
		prommetrics.RecordSubmissionIngested(string(req.PoolType), OutcomeCreated)

	default:
		return Result{}, err
	}

	s.log.Debug().
		Str("pool_type", string(req.PoolType)).
		Str("region", req.Region).
		Uint("user_id", userID).
		Str("outcome", result.Outcome).
		Float64("weight", weight).
		Bool("fuzzy", fuzzy).
		Int("dropped_items", dropped).
		Msg("Submission ingested")

	return result, nil
}

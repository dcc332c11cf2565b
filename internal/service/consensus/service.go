// Package consensus recomputes the trusted item set of dirty pools from the
// weighted submissions attached to them, and serves the stored result on
// the read path.
package consensus

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	prommetrics "github.com/wynnsource/loot-consensus/internal/metrics"
	"github.com/wynnsource/loot-consensus/internal/models"
	"github.com/wynnsource/loot-consensus/internal/repository"
	"github.com/wynnsource/loot-consensus/internal/rotation"
	"github.com/wynnsource/loot-consensus/pkg/logger"
)

// Threshold is the fraction of the heaviest item's weight an item must
// reach to be accepted into the consensus.
const Threshold = 0.6

// Service recomputes and serves pool consensus.
type Service struct {
	pools *repository.PoolRepository
	log   *logger.Logger
}

// NewService creates the consensus service.
func NewService(pools *repository.PoolRepository, log *logger.Logger) *Service {
	return &Service{pools: pools, log: log}
}

// Recompute processes every dirty pool of the given type. Pool failures are
// isolated: a failed pool keeps its dirty flag and is retried on the next
// run, and does not stop the remaining pools. The returned error covers
// only the dirty-pool scan itself.
func (s *Service) Recompute(ctx context.Context, poolType rotation.PoolType) error {
	start := time.Now()

	pools, err := s.pools.ListDirtyPools(poolType)
	if err != nil {
		prommetrics.RecordConsensusRun(string(poolType), "error")
		return fmt.Errorf("failed to list dirty pools for %s: %w", poolType, err)
	}

	prommetrics.SetDirtyPools(string(poolType), len(pools))

	if len(pools) == 0 {
		prommetrics.RecordConsensusRun(string(poolType), "success")
		s.log.Debug().Str("pool_type", string(poolType)).Msg("No dirty pools")
		return nil
	}

	failed := 0
	for i := range pools {
		if ctx.Err() != nil {
			prommetrics.RecordConsensusRun(string(poolType), "canceled")
			return ctx.Err()
		}
		applied, err := s.recomputePool(&pools[i])
		if err != nil {
			failed++
			prommetrics.RecordPoolRecomputed(string(poolType), "error")
			s.log.Error().
				Err(err).
				Uint("pool_id", pools[i].ID).
				Str("region", pools[i].Region).
				Int("page", pools[i].Page).
				Msg("Pool recomputation failed, left dirty for next run")
			continue
		}
		if !applied {
			prommetrics.RecordPoolRecomputed(string(poolType), "deferred")
			s.log.Debug().
				Uint("pool_id", pools[i].ID).
				Str("region", pools[i].Region).
				Int("page", pools[i].Page).
				Msg("Pool changed during recomputation, deferred to next run")
			continue
		}
		prommetrics.RecordPoolRecomputed(string(poolType), "success")
	}

	status := "success"
	if failed > 0 {
		status = "partial"
	}
	prommetrics.RecordConsensusRun(string(poolType), status)
	prommetrics.ObserveConsensusRunDuration(string(poolType), time.Since(start).Seconds())

	s.log.Info().
		Str("pool_type", string(poolType)).
		Int("pools", len(pools)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Consensus recomputation finished")

	return nil
}

// recomputePool computes and stores one pool's consensus. The write is
// guarded by the last_updated value loaded with the pool: a submission
// landing after the read keeps the pool dirty and discards this result, so
// it is never overwritten by a computation that did not see it.
func (s *Service) recomputePool(pool *models.Pool) (bool, error) {
	subs, err := s.pools.GetSubmissionsByPool(pool.ID)
	if err != nil {
		return false, err
	}

	data, confidence := Compute(subs)
	return s.pools.UpdateConsensus(pool.ID, data, confidence, pool.LastUpdated)
}

// Compute derives the accepted item set and confidence from the
// submissions attached to one pool. Deterministic for a given submission
// order, so repeated runs over unchanged data yield identical results.
func Compute(subs []models.PoolSubmission) (models.ItemBlobs, float64) {
	type itemVote struct {
		blob   []byte
		weight float64
		order  int
	}

	votes := make(map[string]*itemVote)
	next := 0
	for i := range subs {
		// A submission votes once per distinct item it contains; each vote
		// carries the submission's full weight, independently per item.
		seen := make(map[string]bool, len(subs[i].ItemData))
		for _, blob := range subs[i].ItemData {
			key := string(blob)
			if seen[key] {
				continue
			}
			seen[key] = true

			vote, ok := votes[key]
			if !ok {
				vote = &itemVote{blob: blob, order: next}
				next++
				votes[key] = vote
			}
			vote.weight += subs[i].Weight
		}
	}

	if len(votes) == 0 {
		return models.ItemBlobs{}, 0
	}

	all := make([]*itemVote, 0, len(votes))
	highest := math.Inf(-1)
	for _, vote := range votes {
		all = append(all, vote)
		if vote.weight > highest {
			highest = vote.weight
		}
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].weight != all[j].weight {
			return all[i].weight > all[j].weight
		}
		return all[i].order < all[j].order
	})

	// Every vote non-positive: accept everything as a best-effort fallback
	// rather than serving an empty pool.
	if highest <= 0 {
		data := make(models.ItemBlobs, 0, len(all))
		for _, vote := range all {
			data = append(data, vote.blob)
		}
		return data, 0
	}

	threshold := highest * Threshold

	data := make(models.ItemBlobs, 0, len(all))
	sum := 0.0
	for _, vote := range all {
		if vote.weight >= threshold {
			data = append(data, vote.blob)
			sum += vote.weight
		}
	}

	confidence := sum / (highest * float64(len(data)))
	return data, round4(confidence)
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// PageConsensus is the served consensus for one page of a pool.
type PageConsensus struct {
	Items      models.ItemBlobs `json:"items"`
	Confidence float64          `json:"confidence"`
}

// ReadConsensus returns the stored per-page consensus of a (type, region,
// rotation) without recomputing anything.
func (s *Service) ReadConsensus(_ context.Context, poolType rotation.PoolType, region string, rotationStart time.Time) (map[int]PageConsensus, error) {
	pools, err := s.pools.ListPools(repository.PoolFilter{
		PoolType:      poolType,
		Region:        region,
		RotationStart: &rotationStart,
	})
	if err != nil {
		return nil, err
	}

	pages := make(map[int]PageConsensus, len(pools))
	for i := range pools {
		items := pools[i].ConsensusData
		if items == nil {
			items = models.ItemBlobs{}
		}
		pages[pools[i].Page] = PageConsensus{
			Items:      items,
			Confidence: pools[i].Confidence,
		}
	}
	return pages, nil
}

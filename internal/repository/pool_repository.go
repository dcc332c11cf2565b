package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/wynnsource/loot-consensus/internal/models"
	"github.com/wynnsource/loot-consensus/internal/rotation"
)

// PoolRepository handles pool and submission database operations. It is a
// narrow-waist accessor: business rules (dedup, dirty marking, counters)
// live in the services that call it.
type PoolRepository struct {
	db *DB
}

// NewPoolRepository creates a new pool repository.
func NewPoolRepository(db *DB) *PoolRepository {
	return &PoolRepository{db: db}
}

// PoolFilter narrows ListPools.
type PoolFilter struct {
	PoolType      rotation.PoolType
	Region        string
	RotationStart *time.Time
	DirtyOnly     bool
}

// GetPool retrieves a pool by its rotation identity. Rotation timestamps
// are normalized to UTC on both writes and lookups so the identity match
// never depends on the caller's timezone representation.
func (r *PoolRepository) GetPool(poolType rotation.PoolType, region string, page int, rotationStart time.Time) (*models.Pool, error) {
	var pool models.Pool
	err := r.db.
		Where("pool_type = ? AND region = ? AND page = ? AND rotation_start = ?",
			string(poolType), region, page, rotationStart.UTC()).
		First(&pool).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get pool %s/%s/%d@%s: %w",
			poolType, region, page, rotationStart.Format(time.RFC3339), err)
	}
	return &pool, nil
}

// GetOrCreatePool returns the pool row for the rotation identity, creating
// it if absent. Concurrent first submissions for a brand-new rotation race
// on the unique identity index: exactly one insert succeeds and the loser
// retries as a read. The boolean reports whether this call created the row.
func (r *PoolRepository) GetOrCreatePool(poolType rotation.PoolType, region string, page int, window rotation.Window) (*models.Pool, bool, error) {
	pool, err := r.GetPool(poolType, region, page, window.Start)
	if err == nil {
		return pool, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	fresh := &models.Pool{
		PoolType:      string(poolType),
		Region:        region,
		Page:          page,
		RotationStart: window.Start.UTC(),
		RotationEnd:   window.End.UTC(),
		NeedsRecalc:   true,
		LastUpdated:   time.Now().UTC(),
	}
	if err := r.db.Create(fresh).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, lerr := r.GetPool(poolType, region, page, window.Start)
			if lerr != nil {
				return nil, false, fmt.Errorf("failed to re-read pool after losing create race: %w", lerr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("failed to create pool: %w", err)
	}
	return fresh, true, nil
}

// ListPools lists pools matching the filter.
func (r *PoolRepository) ListPools(filter PoolFilter) ([]models.Pool, error) {
	query := r.db.DB.Model(&models.Pool{})
	if filter.PoolType != "" {
		query = query.Where("pool_type = ?", string(filter.PoolType))
	}
	if filter.Region != "" {
		query = query.Where("region = ?", filter.Region)
	}
	if filter.RotationStart != nil {
		query = query.Where("rotation_start = ?", filter.RotationStart.UTC())
	}
	if filter.DirtyOnly {
		query = query.Where("needs_recalc = ?", true)
	}

	var pools []models.Pool
	if err := query.Order("region ASC, page ASC").Find(&pools).Error; err != nil {
		return nil, fmt.Errorf("failed to list pools: %w", err)
	}
	return pools, nil
}

// ListDirtyPools lists every pool of the type flagged for recomputation.
func (r *PoolRepository) ListDirtyPools(poolType rotation.PoolType) ([]models.Pool, error) {
	return r.ListPools(PoolFilter{PoolType: poolType, DirtyOnly: true})
}

// MarkDirty flags the pool for recomputation. Targeted update: concurrent
// writers to the same row never clobber each other's columns.
func (r *PoolRepository) MarkDirty(poolID uint, at time.Time) error {
	err := r.db.Model(&models.Pool{}).
		Where("id = ?", poolID).
		Updates(map[string]interface{}{
			"needs_recalc": true,
			"last_updated": at.UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark pool %d dirty: %w", poolID, err)
	}
	return nil
}

// MarkDirtyNewSubmission flags the pool for recomputation and bumps its
// submission counter in one statement. The increment runs in the database,
// so concurrent first-time submitters each add exactly one.
func (r *PoolRepository) MarkDirtyNewSubmission(poolID uint, at time.Time) error {
	err := r.db.Model(&models.Pool{}).
		Where("id = ?", poolID).
		Updates(map[string]interface{}{
			"submission_count": gorm.Expr("submission_count + ?", 1),
			"needs_recalc":     true,
			"last_updated":     at.UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to register submission on pool %d: %w", poolID, err)
	}
	return nil
}

// UpdateConsensus writes a completed consensus result and clears the dirty
// flag, guarded by the last_updated value the caller observed when it loaded
// the pool. If a submission touched the row in between, the guard fails,
// nothing is written, and the pool stays dirty for the next pass. Returns
// whether the result was applied.
func (r *PoolRepository) UpdateConsensus(poolID uint, data models.ItemBlobs, confidence float64, observed time.Time) (bool, error) {
	result := r.db.Model(&models.Pool{}).
		Where("id = ? AND last_updated = ?", poolID, observed.UTC()).
		Updates(map[string]interface{}{
			"consensus_data": data,
			"confidence":     confidence,
			"needs_recalc":   false,
			"last_updated":   time.Now().UTC(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to update consensus for pool %d: %w", poolID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// GetUserSubmission retrieves the user's live submission for a pool.
func (r *PoolRepository) GetUserSubmission(poolID, userID uint) (*models.PoolSubmission, error) {
	var sub models.PoolSubmission
	err := r.db.Where("pool_id = ? AND user_id = ?", poolID, userID).First(&sub).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get submission for user %d on pool %d: %w", userID, poolID, err)
	}
	return &sub, nil
}

// GetSubmissionsByPool retrieves all submissions attached to a pool, in
// insertion order.
func (r *PoolRepository) GetSubmissionsByPool(poolID uint) ([]models.PoolSubmission, error) {
	var subs []models.PoolSubmission
	err := r.db.Where("pool_id = ?", poolID).Order("id ASC").Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get submissions for pool %d: %w", poolID, err)
	}
	return subs, nil
}

// CreateSubmission inserts a new submission record.
func (r *PoolRepository) CreateSubmission(sub *models.PoolSubmission) error {
	if err := r.db.Create(sub).Error; err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

// SaveSubmission persists submission field changes.
func (r *PoolRepository) SaveSubmission(sub *models.PoolSubmission) error {
	if err := r.db.Save(sub).Error; err != nil {
		return fmt.Errorf("failed to save submission %d: %w", sub.ID, err)
	}
	return nil
}

// PurgeRotation deletes every pool of the type for the rotation, with its
// submissions. Administrative operation; never called by the engine itself.
func (r *PoolRepository) PurgeRotation(poolType rotation.PoolType, rotationStart time.Time) (int64, error) {
	var purged int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(&models.Pool{}).
			Where("pool_type = ? AND rotation_start = ?", string(poolType), rotationStart.UTC()).
			Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("failed to list pools for purge: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Where("pool_id IN ?", ids).Delete(&models.PoolSubmission{}).Error; err != nil {
			return fmt.Errorf("failed to purge submissions: %w", err)
		}

		result := tx.Where("id IN ?", ids).Delete(&models.Pool{})
		if result.Error != nil {
			return fmt.Errorf("failed to purge pools: %w", result.Error)
		}
		purged = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return purged, nil
}

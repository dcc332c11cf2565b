package repository

import (
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/wynnsource/loot-consensus/internal/models"
	"github.com/wynnsource/loot-consensus/internal/rotation"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	db := &DB{gormDB}
	if err := db.AutoMigrate(); err != nil {
		t.Fatalf("Failed to auto-migrate tables: %v", err)
	}

	return db
}

func testWindow(t *testing.T) rotation.Window {
	t.Helper()

	start := time.Date(2026, 2, 20, 18, 0, 0, 0, time.UTC)
	return rotation.Window{Start: start, End: start.AddDate(0, 0, 7)}
}

func TestGetOrCreatePool_CreatesOnce(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPoolRepository(db)
	window := testWindow(t)

	pool, created, err := repo.GetOrCreatePool(rotation.PoolTypeLRItem, "Sky", 1, window)
	if err != nil {
		t.Fatalf("GetOrCreatePool failed: %v", err)
	}
	if !created {
		t.Error("expected first call to create the pool")
	}
	if !pool.NeedsRecalc {
		t.Error("new pool must start dirty")
	}
	if pool.SubmissionCount != 0 {
		t.Errorf("new pool must start with zero submissions, got %d", pool.SubmissionCount)
	}

	again, created, err := repo.GetOrCreatePool(rotation.PoolTypeLRItem, "Sky", 1, window)
	if err != nil {
		t.Fatalf("second GetOrCreatePool failed: %v", err)
	}
	if created {
		t.Error("expected second call to read the existing pool")
	}
	if again.ID != pool.ID {
		t.Errorf("expected same pool identity, got %d and %d", pool.ID, again.ID)
	}
}

func TestGetOrCreatePool_DistinctIdentities(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPoolRepository(db)
	window := testWindow(t)

	a, _, err := repo.GetOrCreatePool(rotation.PoolTypeLRItem, "Sky", 1, window)
	if err != nil {
		t.Fatalf("GetOrCreatePool failed: %v", err)
	}
	b, _, err := repo.GetOrCreatePool(rotation.PoolTypeLRItem, "Sky", 2, window)
	if err != nil {
		t.Fatalf("GetOrCreatePool failed: %v", err)
	}
	c, _, err := repo.GetOrCreatePool(rotation.PoolTypeRaidTome, "TNA", 1, window)
	if err != nil {
		t.Fatalf("GetOrCreatePool failed: %v", err)
	}

	if a.ID == b.ID || a.ID == c.ID {
		t.Error("pools differing in page or type must be distinct rows")
	}
}

func TestPoolIdentity_UniqueConstraint(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPoolRepository(db)
	window := testWindow(t)

	if _, _, err := repo.GetOrCreatePool(rotation.PoolTypeLRItem, "Molten", 1, window); err != nil {
		t.Fatalf("GetOrCreatePool failed: %v", err)
	}

	// A raw duplicate insert must surface as gorm.ErrDuplicatedKey: the
	// translated error the get-or-create retry path relies on.
	dup := &models.Pool{
		PoolType:      string(rotation.PoolTypeLRItem),
		Region:        "Molten",
		Page:          1,
		RotationStart: window.Start.UTC(),
		RotationEnd:   window.End.UTC(),
	}
	err := db.Create(dup).Error
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Fatalf("expected gorm.ErrDuplicatedKey, got %v", err)
	}

	// The loser's retry read finds the winner's row.
	pool, created, err := repo.GetOrCreatePool(rotation.PoolTypeLRItem, "Molten", 1, window)
	if err != nil {
		t.Fatalf("retry read failed: %v", err)
	}
	if created {
		t.Error("retry read must not create a second row")
	}
	if pool == nil || pool.ID == 0 {
		t.Error("retry read must return the persisted row")
	}
}

func TestGetOrCreatePool_TimezoneIndependentIdentity(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPoolRepository(db)

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("failed to load location: %v", err)
	}

	utcWindow := testWindow(t)
	localWindow := rotation.Window{
		Start: utcWindow.Start.In(loc),
		End:   utcWindow.End.In(loc),
	}

	a, _, err := repo.GetOrCreatePool(rotation.PoolTypeRaidAspect, "TCC", 1, utcWindow)
	if err != nil {
		t.Fatalf("GetOrCreatePool failed: %v", err)
	}
	b, created, err := repo.GetOrCreatePool(rotation.PoolTypeRaidAspect, "TCC", 1, localWindow)
	if err != nil {
		t.Fatalf("GetOrCreatePool failed: %v", err)
	}
	if created || a.ID != b.ID {
		t.Error("same instant in a different timezone must resolve to the same pool")
	}
}

func TestListDirtyPools(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPoolRepository(db)
	window := testWindow(t)

	dirty, _, err := repo.GetOrCreatePool(rotation.PoolTypeLRItem, "Sky", 1, window)
	if err != nil {
		t.Fatalf("GetOrCreatePool failed: %v", err)
	}
	clean, _, err := repo.GetOrCreatePool(rotation.PoolTypeLRItem, "Molten", 1, window)
	if err != nil {
		t.Fatalf("GetOrCreatePool failed: %v", err)
	}
	if _, _, err := repo.GetOrCreatePool(rotation.PoolTypeRaidTome, "TNA", 1, window); err != nil {
		t.Fatalf("GetOrCreatePool failed: %v", err)
	}

	applied, err := repo.UpdateConsensus(clean.ID, models.ItemBlobs{[]byte("a")}, 1.0, clean.LastUpdated)
	if err != nil {
		t.Fatalf("UpdateConsensus failed: %v", err)
	}
	if !applied {
		t.Fatal("UpdateConsensus must apply when the pool is untouched")
	}

	pools, err := repo.ListDirtyPools(rotation.PoolTypeLRItem)
	if err != nil {
		t.Fatalf("ListDirtyPools failed: %v", err)
	}
	if len(pools) != 1 || pools[0].ID != dirty.ID {
		t.Fatalf("expected only the dirty lr_item pool, got %d pools", len(pools))
	}
}

func TestUpdateConsensus_PersistsAndClearsDirty(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPoolRepository(db)
	window := testWindow(t)

	pool, _, err := repo.GetOrCreatePool(rotation.PoolTypeLRItem, "SE", 1, window)
	if err != nil {
		t.Fatalf("GetOrCreatePool failed: %v", err)
	}

	data := models.ItemBlobs{[]byte{0x0a, 0x02, 'h', 'i'}, []byte{0x10, 0x01}}
	applied, err := repo.UpdateConsensus(pool.ID, data, 0.8333, pool.LastUpdated)
	if err != nil {
		t.Fatalf("UpdateConsensus failed: %v", err)
	}
	if !applied {
		t.Fatal("UpdateConsensus must apply when the pool is untouched")
	}

	reloaded, err := repo.GetPool(rotation.PoolTypeLRItem, "SE", 1, window.Start)
	if err != nil {
		t.Fatalf("GetPool failed: %v", err)
	}
	if reloaded.NeedsRecalc {
		t.Error("UpdateConsensus must clear the dirty flag")
	}
	if reloaded.Confidence != 0.8333 {
		t.Errorf("expected confidence 0.8333, got %f", reloaded.Confidence)
	}
	if !reloaded.ConsensusData.Equal(data) {
		t.Error("consensus blobs must survive a persistence round trip")
	}
}

func TestUpdateConsensus_SkipsWhenPoolTouchedSinceLoad(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPoolRepository(db)
	window := testWindow(t)

	pool, _, err := repo.GetOrCreatePool(rotation.PoolTypeLRItem, "Canyon", 1, window)
	if err != nil {
		t.Fatalf("GetOrCreatePool failed: %v", err)
	}
	observed := pool.LastUpdated

	// A submission lands after the caller loaded the pool.
	if err := repo.MarkDirtyNewSubmission(pool.ID, observed.Add(time.Second)); err != nil {
		t.Fatalf("MarkDirtyNewSubmission failed: %v", err)
	}

	applied, err := repo.UpdateConsensus(pool.ID, models.ItemBlobs{[]byte("stale")}, 1.0, observed)
	if err != nil {
		t.Fatalf("UpdateConsensus failed: %v", err)
	}
	if applied {
		t.Fatal("a stale consensus result must not be applied")
	}

	reloaded, err := repo.GetPool(rotation.PoolTypeLRItem, "Canyon", 1, window.Start)
	if err != nil {
		t.Fatalf("GetPool failed: %v", err)
	}
	if !reloaded.NeedsRecalc {
		t.Error("the newer dirty mark must survive a stale consensus write")
	}
	if len(reloaded.ConsensusData) != 0 {
		t.Error("stale consensus data must not be stored")
	}
}

func TestMarkDirtyNewSubmission_IncrementsInDatabase(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPoolRepository(db)
	window := testWindow(t)

	pool, _, err := repo.GetOrCreatePool(rotation.PoolTypeLRItem, "Sky", 2, window)
	if err != nil {
		t.Fatalf("GetOrCreatePool failed: %v", err)
	}

	// Both callers hold the same stale struct; each must still add exactly
	// one because the counter arithmetic runs in the database.
	now := time.Now().UTC()
	if err := repo.MarkDirtyNewSubmission(pool.ID, now); err != nil {
		t.Fatalf("MarkDirtyNewSubmission failed: %v", err)
	}
	if err := repo.MarkDirtyNewSubmission(pool.ID, now); err != nil {
		t.Fatalf("MarkDirtyNewSubmission failed: %v", err)
	}

	reloaded, err := repo.GetPool(rotation.PoolTypeLRItem, "Sky", 2, window.Start)
	if err != nil {
		t.Fatalf("GetPool failed: %v", err)
	}
	if reloaded.SubmissionCount != 2 {
		t.Errorf("expected submission count 2, got %d", reloaded.SubmissionCount)
	}
	if !reloaded.NeedsRecalc {
		t.Error("MarkDirtyNewSubmission must flag the pool for recomputation")
	}
}

func TestGetUserSubmission_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPoolRepository(db)
	window := testWindow(t)

	pool, _, err := repo.GetOrCreatePool(rotation.PoolTypeLRItem, "Corkus", 1, window)
	if err != nil {
		t.Fatalf("GetOrCreatePool failed: %v", err)
	}

	_, err = repo.GetUserSubmission(pool.ID, 99)
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected wrapped gorm.ErrRecordNotFound, got %v", err)
	}
}

func TestPurgeRotation(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPoolRepository(db)
	window := testWindow(t)

	pool, _, err := repo.GetOrCreatePool(rotation.PoolTypeRaidAspect, "NOL", 1, window)
	if err != nil {
		t.Fatalf("GetOrCreatePool failed: %v", err)
	}
	if err := repo.CreateSubmission(&models.PoolSubmission{
		PoolID:   pool.ID,
		UserID:   1,
		ItemData: models.ItemBlobs{[]byte("x")},
		Weight:   1.0,
	}); err != nil {
		t.Fatalf("CreateSubmission failed: %v", err)
	}

	// Same rotation, other type: must survive the purge.
	if _, _, err := repo.GetOrCreatePool(rotation.PoolTypeRaidTome, "NOL", 1, window); err != nil {
		t.Fatalf("GetOrCreatePool failed: %v", err)
	}

	purged, err := repo.PurgeRotation(rotation.PoolTypeRaidAspect, window.Start)
	if err != nil {
		t.Fatalf("PurgeRotation failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("expected 1 purged pool, got %d", purged)
	}

	if _, err := repo.GetPool(rotation.PoolTypeRaidAspect, "NOL", 1, window.Start); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Error("purged pool must be gone")
	}
	if _, err := repo.GetPool(rotation.PoolTypeRaidTome, "NOL", 1, window.Start); err != nil {
		t.Errorf("other pool type must survive the purge: %v", err)
	}

	subs, err := repo.GetSubmissionsByPool(pool.ID)
	if err != nil {
		t.Fatalf("GetSubmissionsByPool failed: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("purged pool's submissions must be gone, found %d", len(subs))
	}
}

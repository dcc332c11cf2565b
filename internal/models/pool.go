package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ItemBlobs is an ordered collection of opaque item payloads. The engine
// never interprets the bytes; it only needs byte-for-byte comparison and
// persistence. Stored as a JSON array of base64 strings.
type ItemBlobs [][]byte

// Value implements driver.Valuer.
func (b ItemBlobs) Value() (driver.Value, error) {
	if b == nil {
		b = ItemBlobs{}
	}
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal item blobs: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (b *ItemBlobs) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*b = nil
		return nil
	case []byte:
		return json.Unmarshal(v, b)
	case string:
		return json.Unmarshal([]byte(v), b)
	}
	return fmt.Errorf("cannot scan %T into ItemBlobs", value)
}

// Equal reports byte-for-byte equality of the ordered collections.
func (b ItemBlobs) Equal(other ItemBlobs) bool {
	if len(b) != len(other) {
		return false
	}
	for i := range b {
		if !bytes.Equal(b[i], other[i]) {
			return false
		}
	}
	return true
}

// Pool represents one concrete rotation instance of a (pool type, region,
// page) triple. Created lazily on the first valid submission for its
// rotation; consensus fields stay zero until the first computation pass.
type Pool struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	PoolType      string    `gorm:"size:50;not null;uniqueIndex:idx_pool_identity;index:idx_pool_dirty" json:"pool_type"`
	Region        string    `gorm:"size:50;not null;uniqueIndex:idx_pool_identity" json:"region"`
	Page          int       `gorm:"not null;uniqueIndex:idx_pool_identity" json:"page"`
	RotationStart time.Time `gorm:"not null;uniqueIndex:idx_pool_identity" json:"rotation_start"`
	RotationEnd   time.Time `gorm:"not null" json:"rotation_end"`

	SubmissionCount int       `gorm:"not null;default:0" json:"submission_count"`
	ConsensusData   ItemBlobs `gorm:"type:text" json:"consensus_data"`
	Confidence      float64   `gorm:"not null;default:0" json:"confidence"`
	NeedsRecalc     bool      `gorm:"not null;default:true;index:idx_pool_dirty" json:"needs_recalc"`
	LastUpdated     time.Time `json:"last_updated"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	Submissions []PoolSubmission `gorm:"foreignKey:PoolID" json:"submissions,omitempty"`
}

// TableName specifies the table name for Pool model.
func (Pool) TableName() string {
	return "pools"
}

// PoolSubmission is one user's live report for a pool. A user has at most
// one live submission per pool; a resubmission overwrites this record in
// place. Logical uniqueness of (pool_id, user_id) is enforced by the
// ingestion pipeline, not by a database constraint.
type PoolSubmission struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	PoolID uint `gorm:"not null;index" json:"pool_id"`
	Pool   Pool `gorm:"foreignKey:PoolID" json:"pool,omitempty"`
	UserID uint `gorm:"not null;index" json:"user_id"`

	ItemData        ItemBlobs `gorm:"type:text" json:"item_data"`
	Weight          float64   `gorm:"not null" json:"weight"`
	Fuzzy           bool      `gorm:"not null;default:false" json:"fuzzy"`
	ClientTimestamp time.Time `json:"client_timestamp"`
	SubmittedAt     time.Time `json:"submitted_at"`
	ModVersion      string    `gorm:"size:100" json:"mod_version"` // stored for diagnostics only

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for PoolSubmission model.
func (PoolSubmission) TableName() string {
	return "pool_submissions"
}

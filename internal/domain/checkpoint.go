package domain

import "time"

// StreamCheckpoint is the per-tenant durable cursor into the event stream.
// It is monotonically non-decreasing and is persisted only after the batch
// ending at Checkpoint has been fully dispatched, so a crash mid-batch
// replays the whole batch.
type StreamCheckpoint struct {
	TenantID   string    `gorm:"type:text;primaryKey" json:"tenant_id"`
	Checkpoint int64     `gorm:"not null;default:0" json:"checkpoint"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for StreamCheckpoint.
func (StreamCheckpoint) TableName() string {
	return "stream_checkpoints"
}

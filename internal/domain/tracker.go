package domain

import "time"

// JobTracker is the diagnostic record of one conversion attempt. A retried
// job creates a new tracker; the record outlives the attempt so operators can
// inspect what ran, for how long, and why it ended.
type JobTracker struct {
	ID           string    `gorm:"type:text;primaryKey" json:"id"`
	JobID        string    `gorm:"type:text;not null;index:idx_trackers_job" json:"job_id"`
	AssignmentID string    `gorm:"type:text" json:"assignment_id,omitempty"`
	BlobID       BlobID    `gorm:"type:text" json:"blob_id"`
	JobType      string    `gorm:"type:text" json:"job_type"`
	ElapsedMs    int64     `gorm:"default:0" json:"elapsed_ms"`
	Message      string    `gorm:"type:text" json:"message,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

// TableName returns the database table name for JobTracker.
func (JobTracker) TableName() string {
	return "job_trackers"
}

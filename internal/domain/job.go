package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// JobStatus represents the lifecycle state of a queued conversion job.
// Values include JobStatusQueued, JobStatusAssigned, JobStatusCompleted, and JobStatusFailed.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusAssigned  JobStatus = "assigned"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ParamMap stores free-form queue parameters as JSON in the database.
type ParamMap map[string]string

// Value implements the driver.Valuer interface for database serialization.
func (m ParamMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (m *ParamMap) Scan(value interface{}) error {
	if value == nil {
		*m = ParamMap{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan ParamMap")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// QueuedJob is one unit of dispatched conversion work. Exactly one
// assignment is live per job at a time; reassignment rotates AssignmentID so
// stale workers can be detected on completion.
//
// Deduplication key: (tenant_id, document_id, queue_name, input_format).
// Replaying the same stream batch never creates a second job for the tuple.
type QueuedJob struct {
	ID           string         `gorm:"type:text;primaryKey" json:"id"`
	TenantID     string         `gorm:"type:text;not null;index:idx_jobs_dedupe,unique" json:"tenant_id"`
	DocumentID   string         `gorm:"type:text;not null;index:idx_jobs_dedupe,unique" json:"document_id"`
	QueueName    string         `gorm:"type:text;not null;index:idx_jobs_dedupe,unique;index:idx_jobs_queue_status" json:"queue_name"`
	InputFormat  DocumentFormat `gorm:"type:text;not null;index:idx_jobs_dedupe,unique" json:"input_format"`
	BlobID       BlobID         `gorm:"type:text;not null" json:"blob_id"`
	FileName     string         `gorm:"type:text" json:"file_name,omitempty"`
	Status       JobStatus      `gorm:"type:text;index:idx_jobs_queue_status;default:queued" json:"status"`
	AssignmentID string         `gorm:"type:text" json:"assignment_id,omitempty"`
	Attempts     int            `gorm:"default:0" json:"attempts"`
	Parameters   ParamMap       `gorm:"type:text" json:"parameters,omitempty"`
	Message      string         `gorm:"type:text" json:"message,omitempty"`
	AssignedAt   *time.Time     `json:"assigned_at,omitempty"`
	HeartbeatAt  *time.Time     `json:"heartbeat_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TableName returns the database table name for QueuedJob.
func (QueuedJob) TableName() string {
	return "queued_jobs"
}

// JobKey builds the stable composite identity used as the job's primary key.
func JobKey(tenantID, documentID, queueName string, inputFormat DocumentFormat) string {
	return fmt.Sprintf("%s:%s:%s:%s", tenantID, documentID, queueName, inputFormat)
}

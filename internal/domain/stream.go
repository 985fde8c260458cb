package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// StreamEventType tags entries of the per-tenant document event stream.
type StreamEventType string

const (
	// EventDocumentCreated is raised when a new document aggregate is created.
	EventDocumentCreated StreamEventType = "document_created"
	// EventFormatAdded is raised when a new format becomes available on a
	// document. The queue engine dispatches only on this event type.
	EventFormatAdded StreamEventType = "format_added"
	// EventFormatDeleted is raised when a format is removed from a document.
	EventFormatDeleted StreamEventType = "format_deleted"
)

// FormatSet stores the set of formats existing on a document as JSON.
type FormatSet []DocumentFormat

// Contains reports whether the set holds the given format.
func (s FormatSet) Contains(f DocumentFormat) bool {
	for _, have := range s {
		if have.Equals(f) {
			return true
		}
	}
	return false
}

// Value implements the driver.Valuer interface for database serialization.
func (s FormatSet) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (s *FormatSet) Scan(value interface{}) error {
	if value == nil {
		*s = FormatSet{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan FormatSet")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, s)
}

// StreamEvent is one entry of the ordered, checkpointable document event
// stream consumed by the queue engine. The stream is produced by the external
// domain layer; this module only reads it (and appends to it in local mode
// through the command bus).
type StreamEvent struct {
	Sequence   int64           `gorm:"primaryKey;autoIncrement" json:"sequence"`
	TenantID   string          `gorm:"type:text;not null;index:idx_stream_tenant" json:"tenant_id"`
	EventType  StreamEventType `gorm:"type:text;not null" json:"event_type"`
	DocumentID string          `gorm:"type:text;not null" json:"document_id"`
	Format     DocumentFormat  `gorm:"type:text" json:"format,omitempty"`
	BlobID     BlobID          `gorm:"type:text" json:"blob_id,omitempty"`
	// PipelineID is the pipeline that produced the format ("original" events
	// carry the empty pipeline). Queue matching runs against this value.
	PipelineID PipelineID `gorm:"type:text" json:"pipeline_id,omitempty"`
	// FileName is the logical file name of the blob; its extension feeds the
	// queue extension filter.
	FileName string `gorm:"type:text" json:"file_name,omitempty"`
	// Formats is the set of formats existing on the document at emission
	// time, used for required-format matching.
	Formats   FormatSet `gorm:"type:text" json:"formats,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for StreamEvent.
func (StreamEvent) TableName() string {
	return "stream_events"
}

package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldTenantID is the tenant whose stream/jobs are being processed
	FieldTenantID = "tenant_id"

	// FieldQueue is the queue name
	FieldQueue = "queue"

	// FieldJobID is the queued job ID
	FieldJobID = "job_id"

	// FieldDocumentID is the document the work belongs to
	FieldDocumentID = "document_id"

	// FieldFormat is the document format being produced or consumed
	FieldFormat = "format"

	// FieldComponent is the component/module name
	FieldComponent = "component"
)

// ============================================
// Standard Metric Fields (Entry level)
// These fields are used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldCheckpoint is a stream checkpoint value
	FieldCheckpoint = "checkpoint"
)

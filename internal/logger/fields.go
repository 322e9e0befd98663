package logger

// Fields is a shorthand for structured log fields.
type Fields map[string]interface{}

// Tracing fields, propagated through the call chain via context.
const (
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"
	FieldBatchID   = "batch_id"
	FieldComponent = "component"
	FieldSource    = "source"
)

// Metric-ish fields, attached per log line.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldAttempt    = "attempt"
	FieldPage       = "page"
	FieldStatus     = "status"
)

package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Standard tracing fields, propagated through the call chain via context.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the scan job ID
	FieldJobID = "job_id"

	// FieldChunkID is the chunk ID within a scan job
	FieldChunkID = "chunk_id"

	// FieldTenantID is the owning tenant of the request or job
	FieldTenantID = "tenant_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldCapability is the gateway capability being exercised
	FieldCapability = "capability"

	// FieldUPC is the universal product code being resolved
	FieldUPC = "upc"
)

// Standard metric fields, used for aggregation and alerting.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldSize is a response or payload size in bytes
	FieldSize = "size"
)

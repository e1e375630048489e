package tracing

// Attribute keys for Overpass operations
const (
	// MCP tool attributes
	AttrToolName   = "mcp.tool.name"
	AttrToolStatus = "mcp.tool.status"

	// Query attributes
	AttrServerURL        = "overpass.server.url"
	AttrQueryOutput      = "overpass.query.output"
	AttrQueryElements    = "overpass.query.element_count"
	AttrRetryAttempts    = "overpass.retry.attempts"
	AttrRetryMaxAttempts = "overpass.retry.max_attempts"

	// Slot gating attributes
	AttrSlotWaitMs = "overpass.slot.wait_ms"

	// HTTP attributes
	AttrHTTPStatusCode = "http.status_code"
)

// Status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

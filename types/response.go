package types

// FieldViolation is one rejected request field.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorDetail is the error part of a failed response. ErrorCode is the
// application code, which may differ from the HTTP status.
type ErrorDetail struct {
	Timestamp    string           `json:"timestamp"`
	Path         string           `json:"path"`
	TraceID      string           `json:"trace_id,omitempty"`
	ErrorMessage string           `json:"error_message"`
	ErrorCode    int              `json:"error_code"`
	Violations   []FieldViolation `json:"violations,omitempty"`
}

// ErrorResponse is the envelope of every failed request.
type ErrorResponse struct {
	StatusCode int         `json:"status_code"`
	IsSuccess  bool        `json:"is_success"`
	Error      ErrorDetail `json:"error,omitempty"`
}

// SuccessResponse is the envelope of every successful request.
type SuccessResponse[T any] struct {
	StatusCode int  `json:"status_code"`
	IsSuccess  bool `json:"is_success"`
	Data       T    `json:"data,omitempty"`
}

// NewErrorDetail builds an error detail stamped with timestamp.
func NewErrorDetail(timestamp, path, traceID string, code int, message string) ErrorDetail {
	return ErrorDetail{
		Timestamp:    timestamp,
		Path:         path,
		TraceID:      traceID,
		ErrorMessage: message,
		ErrorCode:    code,
	}
}

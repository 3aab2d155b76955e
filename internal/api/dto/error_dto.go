package dto

// Envelope wraps every successful response body.
type Envelope[T any] struct {
	Data T `json:"data"`
}

// ErrorBody is the stable error shape.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorEnvelope wraps every error response body.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

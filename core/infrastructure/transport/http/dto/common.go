package dto

// HealthResponse represents a health check response
type HealthResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is the body of every failed product request.
type ErrorResponse struct {
	Error string `json:"error"`
}

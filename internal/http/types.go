package http

import "time"

// AskRequest is the request body for POST /ask.
type AskRequest struct {
	Question string `json:"question"`
	// Mode is accepted for compatibility and does not change the answer.
	Mode string `json:"mode,omitempty"`
}

// AskResponse is the response body for a successful POST /ask.
type AskResponse struct {
	Answer string `json:"answer"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the response body for GET /ready.
type ReadyResponse struct {
	Status         string    `json:"status"`
	BuildID        string    `json:"build_id,omitempty"`
	Chunks         int       `json:"chunks"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
	BuiltAt        time.Time `json:"built_at,omitzero"`
}

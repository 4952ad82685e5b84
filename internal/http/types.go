package http

import (
	"github.com/fyrsmithlabs/repolens/internal/chunking"
)

// Response headers carrying chunk metadata on the analyze endpoint.
const (
	HeaderTotalChunks  = "X-Total-Chunks"
	HeaderCurrentChunk = "X-Current-Chunk"
	HeaderHasMore      = "X-Has-More"
	HeaderRunID        = "X-Run-ID"
)

// SSE event names on the index endpoint.
const (
	EventProgress  = "progress"
	EventCompleted = "completed"
	EventError     = "error"
)

// ErrorResponse is the body of every JSON error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// IndexRequest is the request body for POST /api/v1/index. The provider
// token travels in the Authorization header.
type IndexRequest struct {
	Repository string `json:"repository"`
	Provider   string `json:"provider"`
}

// IndexProgress is the data of a progress event.
type IndexProgress struct {
	RunID    string  `json:"run_id"`
	Progress float64 `json:"progress"`
}

// IndexCompleted is the data of a completed event.
type IndexCompleted struct {
	RunID        string                `json:"run_id"`
	Repository   string                `json:"repository"`
	Branch       string                `json:"branch"`
	FilesIndexed int                   `json:"files_indexed"`
	FilesSkipped int                   `json:"files_skipped"`
	Files        []chunking.FileRecord `json:"files"`
}

// IndexFailed is the data of an error event.
type IndexFailed struct {
	RunID string `json:"run_id"`
	Error string `json:"error"`
}

// ScrubRequest is the request body for POST /api/v1/scrub.
type ScrubRequest struct {
	Content string `json:"content"`
}

// ScrubResponse is the response body for POST /api/v1/scrub.
type ScrubResponse struct {
	Content  string    `json:"content"`
	Findings []Finding `json:"findings"`
}

// Finding is one redacted secret.
type Finding struct {
	RuleID string `json:"rule_id"`
	Line   int    `json:"line"`
}

package analysis

import "fmt"

// Validation messages returned to callers.
const (
	MsgRepositoryRequired = "Repository information is required"
	MsgInvalidChunkIndex  = "Invalid chunk index"
)

// ValidationError is a caller mistake; it maps to a 400 response.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// BackendError is a failed or unusable chat-completion call.
type BackendError struct {
	// StatusCode is the backend's HTTP status, or 0 when no response arrived.
	StatusCode int
	Err        error
}

func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("analysis backend returned status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("analysis backend request failed: %v", e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

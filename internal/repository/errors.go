package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrNoIndexableFiles is returned when filtering leaves nothing to fetch.
	ErrNoIndexableFiles = errors.New("no indexable files found in repository")

	// ErrUnsupportedProvider is returned for an unknown provider kind.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrInvalidRepository is returned for a malformed repository identifier.
	ErrInvalidRepository = errors.New("invalid repository identifier")
)

// UpstreamFetchError is a fatal failure of a structural provider call
// (default branch, ref or tree lookup).
type UpstreamFetchError struct {
	Provider   Kind
	Repository string
	Op         string
	Err        error
}

func (e *UpstreamFetchError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Repository, e.Op, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error {
	return e.Err
}

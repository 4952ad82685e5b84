// Package events publishes repository indexing lifecycle events to NATS.
//
// Events for one run are published to:
//   - repolens.index.{run_id}.progress
//   - repolens.index.{run_id}.completed
//   - repolens.index.{run_id}.failed
//
// Subscribers can follow a run with RunSubject(runID) + ".*".
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// SubjectPrefix is the root of every indexing subject.
const SubjectPrefix = "repolens.index"

// Event kinds, used as the final subject token.
const (
	KindProgress  = "progress"
	KindCompleted = "completed"
	KindFailed    = "failed"
)

// ProgressEvent reports the fraction of a run's files processed so far.
type ProgressEvent struct {
	RunID      string    `json:"run_id"`
	Repository string    `json:"repository"`
	Progress   float64   `json:"progress"`
	Timestamp  time.Time `json:"timestamp"`
}

// CompletedEvent reports a finished run.
type CompletedEvent struct {
	RunID        string    `json:"run_id"`
	Repository   string    `json:"repository"`
	Provider     string    `json:"provider"`
	Branch       string    `json:"branch"`
	FilesTotal   int       `json:"files_total"`
	FilesIndexed int       `json:"files_indexed"`
	FilesSkipped int       `json:"files_skipped"`
	Timestamp    time.Time `json:"timestamp"`
}

// FailedEvent reports a run that ended with an error.
type FailedEvent struct {
	RunID      string    `json:"run_id"`
	Repository string    `json:"repository"`
	Error      string    `json:"error"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher receives indexing lifecycle events.
type Publisher interface {
	Progress(ctx context.Context, ev ProgressEvent) error
	Completed(ctx context.Context, ev CompletedEvent) error
	Failed(ctx context.Context, ev FailedEvent) error
}

// RunSubject returns the subject prefix for a run.
func RunSubject(runID string) string {
	return SubjectPrefix + "." + runID
}

// Subject returns the full subject for a run and event kind.
func Subject(runID, kind string) string {
	return RunSubject(runID) + "." + kind
}

// NATSPublisher publishes events as JSON to NATS core subjects.
type NATSPublisher struct {
	nc     *nats.Conn
	logger *zap.Logger
}

// NewNATSPublisher creates a publisher on an established connection.
func NewNATSPublisher(nc *nats.Conn, logger *zap.Logger) *NATSPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSPublisher{nc: nc, logger: logger}
}

// Progress publishes a progress event.
func (p *NATSPublisher) Progress(_ context.Context, ev ProgressEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return p.publish(ev.RunID, KindProgress, ev)
}

// Completed publishes a completion event.
func (p *NATSPublisher) Completed(_ context.Context, ev CompletedEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return p.publish(ev.RunID, KindCompleted, ev)
}

// Failed publishes a failure event.
func (p *NATSPublisher) Failed(_ context.Context, ev FailedEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return p.publish(ev.RunID, KindFailed, ev)
}

func (p *NATSPublisher) publish(runID, kind string, payload interface{}) error {
	if runID == "" {
		return fmt.Errorf("publish %s event: run id is required", kind)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", kind, err)
	}
	subject := Subject(runID, kind)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s event: %w", kind, err)
	}
	p.logger.Debug("published index event", zap.String("subject", subject))
	return nil
}

// NopPublisher discards all events.
type NopPublisher struct{}

func (NopPublisher) Progress(context.Context, ProgressEvent) error   { return nil }
func (NopPublisher) Completed(context.Context, CompletedEvent) error { return nil }
func (NopPublisher) Failed(context.Context, FailedEvent) error       { return nil }

var (
	_ Publisher = (*NATSPublisher)(nil)
	_ Publisher = NopPublisher{}
)

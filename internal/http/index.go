package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repolens/internal/events"
	"github.com/fyrsmithlabs/repolens/internal/logging"
	"github.com/fyrsmithlabs/repolens/internal/repository"
)

type indexOutcome struct {
	result *repository.IndexResult
	err    error
}

// handleIndex indexes a repository and streams its progress as SSE.
//
//	event: progress
//	data: {"run_id":"...","progress":0.5}
//
//	event: completed
//	data: {"run_id":"...","repository":"o/r","branch":"main",...,"files":[...]}
//
// Request errors are answered with JSON before the stream starts; failures
// during the run arrive as an error event.
func (s *Server) handleIndex(c echo.Context) error {
	var body IndexRequest
	if err := c.Bind(&body); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(body.Repository) == "" {
		return jsonError(c, http.StatusBadRequest, "repository is required")
	}
	kind, err := repository.ParseKind(body.Provider)
	if err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	token, ok := bearerToken(c.Request())
	if !ok {
		return jsonError(c, http.StatusUnauthorized, "provider access token is required")
	}

	runID := uuid.New().String()
	ctx := logging.WithRunID(c.Request().Context(), runID)
	req := repository.IndexRequest{
		Repository: body.Repository,
		Token:      token,
		Provider:   kind,
		RunID:      runID,
	}

	c.Response().Header().Set(HeaderRunID, runID)
	startEventStream(c)

	progress := make(chan float64)
	done := make(chan indexOutcome, 1)
	go func() {
		res, err := s.indexer.Index(ctx, req, progress)
		done <- indexOutcome{result: res, err: err}
	}()

	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case p := <-progress:
			s.writeEvent(c, EventProgress, IndexProgress{RunID: runID, Progress: p})

		case out := <-done:
			if out.err != nil {
				s.logger.Warn("index run failed", logging.FieldsFor(ctx, zap.Error(out.err))...)
				s.writeEvent(c, EventError, IndexFailed{RunID: runID, Error: indexErrorMessage(out.err)})
				return nil
			}
			r := out.result
			s.writeEvent(c, EventCompleted, IndexCompleted{
				RunID:        runID,
				Repository:   r.Repository,
				Branch:       r.Branch,
				FilesIndexed: r.FilesIndexed,
				FilesSkipped: r.FilesSkipped,
				Files:        r.Corpus.Files(),
			})
			return nil

		case <-ticker.C:
			fmt.Fprint(c.Response(), ": heartbeat\n\n")
			c.Response().Flush()

		case <-ctx.Done():
			return nil
		}
	}
}

// handleIndexEvents relays a run's NATS events as SSE until the run ends or
// the client disconnects.
func (s *Server) handleIndexEvents(c echo.Context) error {
	runID := c.Param("run_id")
	if _, err := uuid.Parse(runID); err != nil {
		return jsonError(c, http.StatusBadRequest, "invalid run id")
	}

	msgs := make(chan *nats.Msg, 16)
	sub, err := s.nc.ChanSubscribe(events.RunSubject(runID)+".*", msgs)
	if err != nil {
		s.logger.Error("event subscription failed", zap.String("run_id", runID), zap.Error(err))
		return jsonError(c, http.StatusInternalServerError, "event stream unavailable")
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	startEventStream(c)

	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-msgs:
			kind := msg.Subject[strings.LastIndex(msg.Subject, ".")+1:]
			name := kind
			if kind == events.KindFailed {
				name = EventError
			}
			fmt.Fprintf(c.Response(), "event: %s\n", name)
			fmt.Fprintf(c.Response(), "data: %s\n\n", msg.Data)
			c.Response().Flush()

			if kind == events.KindCompleted || kind == events.KindFailed {
				return nil
			}

		case <-ticker.C:
			fmt.Fprint(c.Response(), ": heartbeat\n\n")
			c.Response().Flush()

		case <-c.Request().Context().Done():
			return nil
		}
	}
}

func (s *Server) writeEvent(c echo.Context, name string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to encode event", zap.String("event", name), zap.Error(err))
		return
	}
	fmt.Fprintf(c.Response(), "event: %s\n", name)
	fmt.Fprintf(c.Response(), "data: %s\n\n", payload)
	c.Response().Flush()
}

// indexErrorMessage keeps upstream detail out of client-facing messages.
func indexErrorMessage(err error) string {
	var upstream *repository.UpstreamFetchError
	switch {
	case errors.Is(err, repository.ErrNoIndexableFiles):
		return "no indexable files found"
	case errors.As(err, &upstream):
		return fmt.Sprintf("failed to %s from %s", upstream.Op, upstream.Provider)
	case errors.Is(err, repository.ErrInvalidRepository):
		return "invalid repository identifier"
	default:
		return "indexing failed"
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get(echo.HeaderAuthorization)
	scheme, token, found := strings.Cut(auth, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repolens/internal/analysis"
	"github.com/fyrsmithlabs/repolens/internal/logging"
)

const streamCopyBuffer = 32 * 1024

// handleAnalyze streams the analysis of one chunk.
//
// The response is 200 with the backend's event stream, 400 for validation
// errors, or 500 when the backend fails before streaming starts.
func (s *Server) handleAnalyze(c echo.Context) error {
	ctx := c.Request().Context()

	var req analysis.Request
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid analyze request", logging.FieldsFor(ctx, zap.Error(err))...)
		return jsonError(c, http.StatusBadRequest, "invalid request body")
	}

	res, err := s.analyzer.Analyze(ctx, req)
	if err != nil {
		var ve *analysis.ValidationError
		if errors.As(err, &ve) {
			return jsonError(c, http.StatusBadRequest, ve.Message)
		}
		s.logger.Error("analysis failed", logging.FieldsFor(ctx, zap.Error(err))...)
		return jsonError(c, http.StatusInternalServerError, "Failed to analyze repository")
	}
	defer res.Body.Close()

	h := c.Response().Header()
	h.Set(HeaderTotalChunks, strconv.Itoa(res.TotalChunks))
	h.Set(HeaderCurrentChunk, strconv.Itoa(res.ChunkIndex))
	h.Set(HeaderHasMore, strconv.FormatBool(res.HasMore))
	startEventStream(c)

	if err := copyFlush(c.Response(), res.Body); err != nil {
		s.logger.Warn("analysis stream ended early",
			logging.FieldsFor(ctx, zap.Int("chunk_index", res.ChunkIndex), zap.Error(err))...)
	}
	return nil
}

// copyFlush copies src to the response, flushing after every write.
func copyFlush(w *echo.Response, src io.Reader) error {
	buf := make([]byte, streamCopyBuffer)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			w.Flush()
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

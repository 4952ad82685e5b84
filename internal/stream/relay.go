// Package stream relays server-sent-event bodies from the analysis backend
// to HTTP clients and decodes chat-completion deltas from them.
package stream

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"
)

const relayBufferSize = 32 * 1024

// Relay returns a reader that yields src's bytes as soon as each read of
// src completes, without buffering the whole body.
//
// When src reaches EOF the returned reader reaches EOF. A read error on src
// is logged and the returned reader ends with a clean EOF, so bytes already
// relayed stand. Cancelling ctx or closing the returned reader closes src,
// which aborts the upstream request.
func Relay(ctx context.Context, src io.ReadCloser, logger *zap.Logger) io.ReadCloser {
	if logger == nil {
		logger = zap.NewNop()
	}

	pr, pw := io.Pipe()
	r := &relayReader{PipeReader: pr, src: src}

	go func() {
		defer r.closeSource()

		stop := context.AfterFunc(ctx, func() {
			r.closeSource()
			_ = pw.CloseWithError(ctx.Err())
		})
		defer stop()

		buf := make([]byte, relayBufferSize)
		var relayed int64
		for {
			n, err := src.Read(buf)
			if n > 0 {
				if _, werr := pw.Write(buf[:n]); werr != nil {
					logger.Debug("stream consumer went away", zap.Int64("bytes", relayed), zap.Error(werr))
					return
				}
				relayed += int64(n)
			}
			if err == nil {
				continue
			}

			if errors.Is(err, io.EOF) {
				_ = pw.Close()
				return
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				_ = pw.CloseWithError(ctxErr)
				return
			}
			logger.Error("stream relay read failed", zap.Int64("bytes", relayed), zap.Error(err))
			_ = pw.Close()
			return
		}
	}()

	return r
}

type relayReader struct {
	*io.PipeReader
	src       io.Closer
	closeOnce sync.Once
}

func (r *relayReader) closeSource() {
	r.closeOnce.Do(func() {
		_ = r.src.Close()
	})
}

// Close stops the relay and closes the source.
func (r *relayReader) Close() error {
	err := r.PipeReader.Close()
	r.closeSource()
	return err
}

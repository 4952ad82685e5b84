package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// maxErrorBody bounds how much of a failed backend response is kept.
const maxErrorBody = 4 * 1024

// backendClient posts streaming chat-completion requests and hands back the
// raw event stream.
type backendClient struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// completionBody always carries temperature; go-openai omits a zero value,
// which would let the backend substitute its own default.
type completionBody struct {
	openai.ChatCompletionRequest
	Temperature float32 `json:"temperature"`
}

func (b *backendClient) stream(ctx context.Context, req openai.ChatCompletionRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(completionBody{ChatCompletionRequest: req, Temperature: req.Temperature})
	if err != nil {
		return nil, fmt.Errorf("failed to encode completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
	if err != nil {
		return nil, &BackendError{Err: fmt.Errorf("failed to build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if b.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, &BackendError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg = bytes.TrimSpace(msg)
		if len(msg) == 0 {
			msg = []byte(http.StatusText(resp.StatusCode))
		}
		return nil, &BackendError{StatusCode: resp.StatusCode, Err: errors.New(string(msg))}
	}
	return resp.Body, nil
}

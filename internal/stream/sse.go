package stream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// DoneSentinel marks the end of a chat-completion event stream.
const DoneSentinel = "[DONE]"

const maxEventLine = 1024 * 1024

// DecodeDeltas reads a chat-completion SSE stream and calls fn with each
// non-empty delta content fragment in order. Lines that are not data
// events, or whose payload does not parse, are skipped. It returns when the
// [DONE] sentinel is seen, the stream ends, or fn returns an error.
func DecodeDeltas(r io.Reader, fn func(content string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)

	for scanner.Scan() {
		payload, ok := dataPayload(scanner.Text())
		if !ok {
			continue
		}
		if payload == DoneSentinel {
			return nil
		}

		var chunk openai.ChatCompletionStreamResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if err := fn(choice.Delta.Content); err != nil {
				return err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return nil
}

// dataPayload extracts the payload of a "data:" line.
func dataPayload(line string) (string, bool) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	return payload, payload != ""
}

// Collect concatenates every delta in the stream.
func Collect(r io.Reader) (string, error) {
	var b strings.Builder
	err := DecodeDeltas(r, func(content string) error {
		b.WriteString(content)
		return nil
	})
	return b.String(), err
}

// Event is one server-sent event.
type Event struct {
	Name string
	Data string
}

// ReadEvents parses a generic SSE stream and calls fn for each dispatched
// event. Multiple data lines are joined with "\n". Comment lines (such as
// heartbeats) are ignored. An event without a name is reported as
// "message".
func ReadEvents(r io.Reader, fn func(Event) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)

	var name string
	var data []string
	dispatch := func() error {
		defer func() {
			name, data = "", nil
		}()
		if data == nil {
			return nil
		}
		if name == "" {
			name = "message"
		}
		return fn(Event{Name: name, Data: strings.Join(data, "\n")})
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case line == "":
			if err := dispatch(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			v := strings.TrimPrefix(line, "data:")
			data = append(data, strings.TrimPrefix(v, " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return dispatch()
}

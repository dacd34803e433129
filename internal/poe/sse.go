package poe

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"echobot/internal/domain"
)

// Server-sent event names of the bot protocol.
const (
	EventMeta            = "meta"
	EventText            = "text"
	EventReplaceResponse = "replace_response"
	EventSuggestedReply  = "suggested_reply"
	EventJSON            = "json"
	EventError           = "error"
	EventDone            = "done"
	EventPing            = "ping"
)

type textPayload struct {
	Text string `json:"text"`
}

type suggestedReplyPayload struct {
	Text string              `json:"text"`
	Data *suggestedReplyData `json:"data,omitempty"`
}

type suggestedReplyData struct {
	DisplayText string `json:"display_text"`
}

type errorPayload struct {
	Text       string `json:"text"`
	AllowRetry bool   `json:"allow_retry"`
	ErrorType  string `json:"error_type,omitempty"`
}

type metaPayload struct {
	ContentType      string `json:"content_type"`
	Linkify          bool   `json:"linkify"`
	SuggestedReplies bool   `json:"suggested_replies"`
}

// EventWriter writes protocol events to a streaming HTTP response.
type EventWriter struct {
	w       io.Writer
	flusher http.Flusher
}

// NewEventWriter prepares rw for an event stream. The status line is written
// immediately so the platform sees the stream open before any upstream call.
func NewEventWriter(rw http.ResponseWriter) (*EventWriter, error) {
	flusher, ok := rw.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	rw.Header().Set("Content-Type", "text/event-stream")
	rw.Header().Set("Cache-Control", "no-cache")
	rw.Header().Set("Connection", "keep-alive")
	rw.Header().Set("X-Accel-Buffering", "no")
	rw.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &EventWriter{w: rw, flusher: flusher}, nil
}

func (e *EventWriter) write(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}

func (e *EventWriter) Meta() error {
	return e.write(EventMeta, metaPayload{ContentType: "text/markdown", Linkify: true})
}

// Partial writes one element of a bot reply as text, replace_response or
// suggested_reply.
func (e *EventWriter) Partial(p domain.PartialResponse) error {
	switch {
	case p.IsSuggestedReply:
		payload := suggestedReplyPayload{Text: p.Text}
		if p.DisplayText != "" {
			payload.Data = &suggestedReplyData{DisplayText: p.DisplayText}
		}
		return e.write(EventSuggestedReply, payload)
	case p.IsReplaceResponse:
		return e.write(EventReplaceResponse, textPayload{Text: p.Text})
	default:
		return e.write(EventText, textPayload{Text: p.Text})
	}
}

func (e *EventWriter) Error(text string) error {
	return e.write(EventError, errorPayload{Text: text})
}

func (e *EventWriter) Done() error {
	return e.write(EventDone, struct{}{})
}

// event is one dispatched server-sent event.
type event struct {
	Name string
	Data string
}

// readEvents parses an event stream and calls fn for every complete event.
// Comment lines and unknown fields are skipped. A stream that ends without a
// trailing blank line still dispatches its last event.
func readEvents(r io.Reader, fn func(event) (stop bool, err error)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		name string
		data []string
	)
	dispatch := func() (bool, error) {
		if name == "" && len(data) == 0 {
			return false, nil
		}
		ev := event{Name: name, Data: strings.Join(data, "\n")}
		if ev.Name == "" {
			ev.Name = "message"
		}
		name, data = "", nil
		return fn(ev)
	}

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			stop, err := dispatch()
			if err != nil || stop {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			data = append(data, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	_, err := dispatch()
	return err
}

package poe

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echobot/internal/domain"
)

func collectEvents(t *testing.T, stream string) []event {
	t.Helper()
	var got []event
	err := readEvents(strings.NewReader(stream), func(ev event) (bool, error) {
		got = append(got, ev)
		return false, nil
	})
	require.NoError(t, err)
	return got
}

func TestReadEvents(t *testing.T) {
	stream := ": comment\r\n" +
		"event: meta\r\ndata: {\"content_type\":\"text/markdown\"}\r\n\r\n" +
		"event: text\ndata: {\"text\":\"a\"}\n\n" +
		"data: line1\ndata: line2\n\n" +
		"event: done\ndata: {}"

	got := collectEvents(t, stream)
	require.Len(t, got, 4)
	assert.Equal(t, event{Name: "meta", Data: `{"content_type":"text/markdown"}`}, got[0])
	assert.Equal(t, event{Name: "text", Data: `{"text":"a"}`}, got[1])
	assert.Equal(t, event{Name: "message", Data: "line1\nline2"}, got[2])
	assert.Equal(t, event{Name: "done", Data: "{}"}, got[3])
}

func TestReadEventsStop(t *testing.T) {
	stream := "event: done\ndata: {}\n\nevent: text\ndata: {\"text\":\"late\"}\n\n"
	n := 0
	err := readEvents(strings.NewReader(stream), func(ev event) (bool, error) {
		n++
		return ev.Name == EventDone, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEventWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewEventWriter(rec)
	require.NoError(t, err)

	require.NoError(t, w.Meta())
	require.NoError(t, w.Partial(domain.PartialResponse{Text: "hi"}))
	require.NoError(t, w.Partial(domain.PartialResponse{Text: "new", IsReplaceResponse: true}))
	require.NoError(t, w.Partial(domain.PartialResponse{Text: "a long suggested reply text", IsSuggestedReply: true, DisplayText: "a long suggested rep..."}))
	require.NoError(t, w.Partial(domain.PartialResponse{Text: "short", IsSuggestedReply: true}))
	require.NoError(t, w.Error("boom"))
	require.NoError(t, w.Done())

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	got := collectEvents(t, rec.Body.String())
	require.Len(t, got, 7)
	assert.Equal(t, `{"content_type":"text/markdown","linkify":true,"suggested_replies":false}`, got[0].Data)
	assert.Equal(t, event{Name: EventText, Data: `{"text":"hi"}`}, got[1])
	assert.Equal(t, event{Name: EventReplaceResponse, Data: `{"text":"new"}`}, got[2])
	assert.Equal(t, event{Name: EventSuggestedReply, Data: `{"text":"a long suggested reply text","data":{"display_text":"a long suggested rep..."}}`}, got[3])
	assert.Equal(t, event{Name: EventSuggestedReply, Data: `{"text":"short"}`}, got[4])
	assert.Equal(t, event{Name: EventError, Data: `{"text":"boom","allow_retry":false}`}, got[5])
	assert.Equal(t, event{Name: EventDone, Data: `{}`}, got[6])
}

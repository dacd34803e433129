package bot

import (
	"context"
	"io"
	"log/slog"

	"echobot/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder is a domain.Responder that keeps everything it is given.
type recorder struct {
	sent      []domain.PartialResponse
	attached  []domain.Artifact
	attachErr error
}

func (r *recorder) Send(_ context.Context, p domain.PartialResponse) error {
	r.sent = append(r.sent, p)
	return nil
}

func (r *recorder) Attach(_ context.Context, a domain.Artifact) error {
	if r.attachErr != nil {
		return r.attachErr
	}
	r.attached = append(r.attached, a)
	return nil
}

func (r *recorder) texts() []string {
	var out []string
	for _, p := range r.sent {
		if !p.IsSuggestedReply {
			out = append(out, p.Text)
		}
	}
	return out
}

type call struct {
	bot string
	req *domain.QueryRequest
}

// fakeCaller answers chained bot calls from a script keyed by bot name.
type fakeCaller struct {
	calls   []call
	scripts map[string][]domain.PartialResponse
	errs    map[string]error
}

func (f *fakeCaller) Stream(_ context.Context, bot string, req *domain.QueryRequest, fn func(domain.PartialResponse) error) error {
	f.calls = append(f.calls, call{bot: bot, req: req})
	for _, p := range f.scripts[bot] {
		if err := fn(p); err != nil {
			return err
		}
	}
	return f.errs[bot]
}

type fakeStability struct {
	got *domain.StabilityParams
	art *domain.Artifact
	err error
}

func (f *fakeStability) Generate(_ context.Context, p domain.StabilityParams) (*domain.Artifact, error) {
	f.got = &p
	return f.art, f.err
}

type fakeFireworks struct {
	got *domain.FireworksParams
	art *domain.Artifact
	err error
}

func (f *fakeFireworks) Generate(_ context.Context, p domain.FireworksParams) (*domain.Artifact, error) {
	f.got = &p
	return f.art, f.err
}

type fakeFetcher struct {
	data map[string][]byte
	err  error
	urls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.urls = append(f.urls, url)
	if f.err != nil {
		return nil, f.err
	}
	return f.data[url], nil
}

func query(content string, attachmentURLs ...string) *domain.QueryRequest {
	msg := domain.ProtocolMessage{Role: "user", Content: content}
	for _, u := range attachmentURLs {
		msg.Attachments = append(msg.Attachments, domain.Attachment{URL: u})
	}
	return &domain.QueryRequest{
		Version:        "1.0",
		Type:           domain.RequestQuery,
		Query:          []domain.ProtocolMessage{{Role: "user", Content: "earlier"}, msg},
		UserID:         "u1",
		ConversationID: "c1",
		MessageID:      "m1",
		AccessKey:      "key",
	}
}

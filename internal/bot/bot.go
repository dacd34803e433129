// Package bot holds the two chat bots served by echobot: the echo bot, which
// routes commands to image providers and other bots, and the stego bot.
package bot

import (
	"context"

	"echobot/internal/domain"
)

// StabilityGenerator produces an image from /generate parameters.
type StabilityGenerator interface {
	Generate(ctx context.Context, p domain.StabilityParams) (*domain.Artifact, error)
}

// FireworksGenerator produces an image from /fireworks parameters.
type FireworksGenerator interface {
	Generate(ctx context.Context, p domain.FireworksParams) (*domain.Artifact, error)
}

// Fetcher downloads a user attachment.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// relay returns a stream callback that forwards every partial response to out.
func relay(ctx context.Context, out domain.Responder) func(domain.PartialResponse) error {
	return func(p domain.PartialResponse) error {
		return out.Send(ctx, p)
	}
}

// collectText returns a stream callback that appends the text of every
// partial response to buf, suggested replies and replacements included.
func collectText(buf *[]byte) func(domain.PartialResponse) error {
	return func(p domain.PartialResponse) error {
		*buf = append(*buf, p.Text...)
		return nil
	}
}

func text(s string) domain.PartialResponse {
	return domain.PartialResponse{Text: s}
}

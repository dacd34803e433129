package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"echobot/internal/command"
	"echobot/internal/domain"
	"echobot/internal/metrics"
	"echobot/internal/provider"
	"echobot/internal/stego"
)

const (
	stegoFilename = "hidden_message_image.png"

	msgNoAttachment    = "No image attachment found."
	msgDownloadFailed  = "Failed to download the image attachment."
	msgHidden          = "Image with hidden message generated and attached."
	msgRevealFailed    = "Failed to reveal the hidden message from the image."
	msgGenericFailure  = "An error occurred while processing your request. Please try again."
	msgRevealedMessage = "Revealed message: "
)

const stegoIntroduction = "I hide text inside images.\n\n" +
	"`/hide <message>` with an attached picture embeds the message and sends the picture back.\n\n" +
	"`/reveal` with an attached picture shows the message hidden in it.\n\n" +
	"Nothing is encrypted, so do not use this for secrets."

type StegoConfig struct {
	DefaultBot string
	Caller     domain.BotCaller
	Fetcher    Fetcher
	Logger     *slog.Logger
}

// Stego hides messages in image attachments and reveals them. Every failure
// is reported to the user as chat text.
type Stego struct {
	defaultBot string
	caller     domain.BotCaller
	fetcher    Fetcher
	logger     *slog.Logger
}

func NewStego(cfg StegoConfig) *Stego {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Stego{
		defaultBot: cfg.DefaultBot,
		caller:     cfg.Caller,
		fetcher:    cfg.Fetcher,
		logger:     cfg.Logger,
	}
}

func (s *Stego) Name() string { return "stego" }

func (s *Stego) Settings() domain.SettingsResponse {
	return domain.SettingsResponse{
		ServerBotDependencies: map[string]int{s.defaultBot: 1},
		AllowAttachments:      true,
		IntroductionMessage:   stegoIntroduction,
	}
}

func (s *Stego) Respond(ctx context.Context, req *domain.QueryRequest, out domain.Responder) error {
	last := req.LastMessage()
	spec := command.StegoCommands.Classify(last.Content)
	metrics.CommandTotal(s.Name(), string(spec.Kind)).Inc()
	logger := s.logger.With("command", spec.Kind, "message_id", req.MessageID)

	var err error
	switch spec.Kind {
	case command.Hide:
		err = s.hide(ctx, strings.TrimSpace(spec.Argument(last.Content)), last, out, logger)
	case command.Reveal:
		err = s.reveal(ctx, last, out, logger)
	default:
		logger.Info("forwarding to default bot", "bot", s.defaultBot)
		err = s.caller.Stream(ctx, s.defaultBot, req, relay(ctx, out))
	}
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	logger.Error("stego request failed", "err", err)
	return out.Send(ctx, text(msgGenericFailure))
}

// download fetches the first attachment. ok is false when a reply has already
// been sent in its place.
func (s *Stego) download(ctx context.Context, msg domain.ProtocolMessage, out domain.Responder, logger *slog.Logger) (data []byte, ok bool, err error) {
	if len(msg.Attachments) == 0 {
		logger.Warn("no image attachment found")
		return nil, false, out.Send(ctx, text(msgNoAttachment))
	}
	data, err = s.fetcher.Fetch(ctx, msg.Attachments[0].URL)
	var dlErr *provider.DownloadError
	if errors.As(err, &dlErr) {
		logger.Error("attachment download failed", "url", dlErr.URL, "status", dlErr.StatusCode)
		return nil, false, out.Send(ctx, text(msgDownloadFailed))
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *Stego) hide(ctx context.Context, message string, msg domain.ProtocolMessage, out domain.Responder, logger *slog.Logger) error {
	data, ok, err := s.download(ctx, msg, out, logger)
	if !ok {
		return err
	}
	encoded, err := stego.Hide(data, message)
	if err != nil {
		return err
	}
	if err := out.Attach(ctx, domain.Artifact{Data: encoded, Filename: stegoFilename, ContentType: "image/png"}); err != nil {
		return err
	}
	logger.Info("message hidden", "message_len", len(message), "bytes", len(encoded))
	return out.Send(ctx, text(msgHidden))
}

func (s *Stego) reveal(ctx context.Context, msg domain.ProtocolMessage, out domain.Responder, logger *slog.Logger) error {
	data, ok, err := s.download(ctx, msg, out, logger)
	if !ok {
		return err
	}
	revealed, err := stego.Reveal(data)
	if err != nil {
		logger.Error("error revealing message from image", "err", err)
		return out.Send(ctx, text(msgRevealFailed))
	}
	logger.Info("message revealed", "message_len", len(revealed))
	return out.Send(ctx, text(msgRevealedMessage+revealed))
}

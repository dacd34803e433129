package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"echobot/internal/command"
	"echobot/internal/domain"
	"echobot/internal/metrics"
	"echobot/internal/provider"
)

const (
	msgImageGenerated     = "Image generated and attached."
	msgFireworksGenerated = "Image generated using Fireworks AI API and attached."

	defaultImageStrength = 0.5
)

const echoIntroduction = `# EchoBot

Commands:

- ` + "`/generate <prompt>`" + ` creates an image with Stability AI. Attach an image to transform it instead.
  Optional lines: ` + "`Negative Prompt:`, `Strength:`, `Model:`, `Seed:`, `Output Format:`, `Aspect Ratio:`" + `
- ` + "`/fireworks <prompt>`" + ` creates an image with Fireworks AI.
  Optional lines: ` + "`Negative Prompt:`, `Height:`, `Width:`, `CFG Scale:`, `Sampler:`, `Samples:`, `Seed:`, `Steps:`, `Safety Check:`, `Output Image Format:`" + `
- ` + "`/enhance <text>`" + ` rewrites your prompt and runs the result.
- ` + "`/mojo <text>`" + ` talks to Mojo.

Anything else is answered by the default bot.`

// EchoBots names the bots the echo bot chains to.
type EchoBots struct {
	Default  string
	Rewriter string
	Executor string
	Mojo     string
}

type EchoConfig struct {
	Bots      EchoBots
	Caller    domain.BotCaller
	Stability StabilityGenerator
	Fireworks FireworksGenerator
	Fetcher   Fetcher
	Logger    *slog.Logger
}

// Echo dispatches slash commands to image providers and chained bots, then
// offers the user's own message back as a suggested reply.
type Echo struct {
	bots      EchoBots
	caller    domain.BotCaller
	stability StabilityGenerator
	fireworks FireworksGenerator
	fetcher   Fetcher
	logger    *slog.Logger
}

func NewEcho(cfg EchoConfig) *Echo {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Echo{
		bots:      cfg.Bots,
		caller:    cfg.Caller,
		stability: cfg.Stability,
		fireworks: cfg.Fireworks,
		fetcher:   cfg.Fetcher,
		logger:    cfg.Logger,
	}
}

func (e *Echo) Name() string { return "echo" }

func (e *Echo) Settings() domain.SettingsResponse {
	deps := map[string]int{}
	for _, name := range []string{e.bots.Default, e.bots.Rewriter, e.bots.Executor, e.bots.Mojo} {
		deps[name] = 1
	}
	return domain.SettingsResponse{
		ServerBotDependencies: deps,
		AllowAttachments:      true,
		IntroductionMessage:   echoIntroduction,
	}
}

// Respond handles one query. Errors returned from here are fatal: the reply
// ends without the trailing suggested reply.
func (e *Echo) Respond(ctx context.Context, req *domain.QueryRequest, out domain.Responder) error {
	start := time.Now()
	content := req.LastMessage().Content
	spec := command.EchoCommands.Classify(content)
	metrics.CommandTotal(e.Name(), string(spec.Kind)).Inc()

	logger := e.logger.With("command", spec.Kind, "message_id", req.MessageID)
	logger.Debug("dispatching message", "content_len", len(content))

	var err error
	switch spec.Kind {
	case command.Generate:
		err = e.generate(ctx, spec, req, out, logger)
	case command.Fireworks:
		err = e.fireworksImage(ctx, spec, content, out, logger)
	case command.Enhance:
		err = e.enhance(ctx, spec, req, out, logger)
	case command.Mojo:
		arg := strings.TrimSpace(spec.Argument(content))
		logger.Info("forwarding to mojo bot", "bot", e.bots.Mojo)
		err = e.caller.Stream(ctx, e.bots.Mojo, req.Derive(arg), relay(ctx, out))
	default:
		logger.Info("forwarding to default bot", "bot", e.bots.Default)
		err = e.caller.Stream(ctx, e.bots.Default, req, relay(ctx, out))
	}
	if err != nil {
		return err
	}

	if err := out.Send(ctx, domain.PartialResponse{
		Text:             content,
		IsSuggestedReply: true,
		DisplayText:      command.SuggestedReplyLabel(content),
	}); err != nil {
		return err
	}
	logger.Info("request processed", "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func (e *Echo) generate(ctx context.Context, spec command.Spec, req *domain.QueryRequest, out domain.Responder, logger *slog.Logger) error {
	params, err := command.ParseGenerate(spec, req.LastMessage().Content)
	if err != nil {
		return err
	}

	if atts := req.LastMessage().Attachments; len(atts) > 0 {
		data, err := e.fetcher.Fetch(ctx, atts[0].URL)
		if err != nil {
			return err
		}
		params.Image = data
		if params.Strength == nil {
			s := defaultImageStrength
			params.Strength = &s
		}
	}

	logger.Info("generating image", "prompt", params.Prompt, "negative_prompt", params.NegativePrompt, "image_input", len(params.Image) > 0)
	art, err := e.stability.Generate(ctx, params)
	if err == nil {
		err = out.Attach(ctx, *art)
	}
	if err != nil {
		if errors.Is(err, provider.ErrMissingCredential) {
			return err
		}
		logger.Error("image generation failed", "err", err)
		return out.Send(ctx, text(err.Error()))
	}
	return out.Send(ctx, text(msgImageGenerated))
}

func (e *Echo) fireworksImage(ctx context.Context, spec command.Spec, content string, out domain.Responder, logger *slog.Logger) error {
	params, err := command.ParseFireworks(spec, content)
	if err != nil {
		return err
	}

	logger.Info("generating image with fireworks", "prompt", params.Prompt, "negative_prompt", params.NegativePrompt)
	art, err := e.fireworks.Generate(ctx, params)
	if err == nil {
		err = out.Attach(ctx, *art)
	}
	if err != nil {
		if errors.Is(err, provider.ErrMissingCredential) {
			return err
		}
		logger.Error("fireworks generation failed", "err", err)
		return out.Send(ctx, text("Error: "+err.Error()))
	}
	return out.Send(ctx, text(msgFireworksGenerated))
}

// enhance runs the two-stage prompt chain: the rewriter bot turns the user's
// text into a prompt wrapped in <final prompt> markers, and the executor bot
// answers that prompt.
func (e *Echo) enhance(ctx context.Context, spec command.Spec, req *domain.QueryRequest, out domain.Responder, logger *slog.Logger) error {
	input := spec.Argument(req.LastMessage().Content)
	logger.Info("enhancing input text", "rewriter", e.bots.Rewriter, "input_len", len(input))

	var rewritten []byte
	if err := e.caller.Stream(ctx, e.bots.Rewriter, req.Derive(input), collectText(&rewritten)); err != nil {
		return fmt.Errorf("rewrite prompt: %w", err)
	}
	finalPrompt := command.ExtractFinalPrompt(string(rewritten))
	logger.Info("extracted final prompt", "prompt", finalPrompt)

	var answer []byte
	if err := e.caller.Stream(ctx, e.bots.Executor, req.Derive(finalPrompt), collectText(&answer)); err != nil {
		return fmt.Errorf("run enhanced prompt: %w", err)
	}
	logger.Debug("executor response", "bot", e.bots.Executor, "len", len(answer))

	return out.Send(ctx, text(fmt.Sprintf("Here is the response from %s based on your enhanced prompt:\n\n%s", e.bots.Executor, answer)))
}

package poe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"echobot/internal/domain"
	"echobot/internal/metrics"
	"echobot/internal/provider"
)

const (
	DefaultAPIBase = "https://api.poe.com/bot/"

	// missingAccessKey is the placeholder the platform puts in requests when
	// the bot has no key configured.
	missingAccessKey = "<missing>"
)

// BotError is a failure reported by a chained bot, either as a non-200 status
// or as an error event inside the stream.
type BotError struct {
	Bot        string
	StatusCode int // 0 when reported in-stream
	Message    string
}

func (e *BotError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("bot %s: HTTP %d: %s", e.Bot, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("bot %s: %s", e.Bot, e.Message)
}

// Client calls other bots hosted on the platform and streams their replies.
type Client struct {
	apiBase      string
	accessKeyEnv string
	client       *http.Client
	logger       *slog.Logger
}

type ClientConfig struct {
	APIBase      string // bot name is appended verbatim
	AccessKeyEnv string // fallback when the request carries no key
	Timeout      time.Duration
	Logger       *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		apiBase:      cfg.APIBase,
		accessKeyEnv: cfg.AccessKeyEnv,
		client:       provider.SharedHTTPClient(cfg.Timeout),
		logger:       cfg.Logger,
	}
}

// accessKey prefers the key carried by the request and falls back to the
// configured environment variable.
func (c *Client) accessKey(req *domain.QueryRequest) (string, error) {
	if req.AccessKey != "" && req.AccessKey != missingAccessKey {
		return req.AccessKey, nil
	}
	return provider.Credential(c.accessKeyEnv)
}

// Stream sends req to botName and calls fn for every text, replace_response
// and suggested_reply event until the bot signals done.
func (c *Client) Stream(ctx context.Context, botName string, req *domain.QueryRequest, fn func(domain.PartialResponse) error) error {
	key, err := c.accessKey(req)
	if err != nil {
		return err
	}

	// The key travels in the header only.
	out := *req
	out.AccessKey = ""
	body, err := json.Marshal(&out)
	if err != nil {
		return fmt.Errorf("marshal query: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+botName, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+key)

	c.logger.Info("chained bot call", "bot", botName, "messages", len(req.Query))

	start := time.Now()
	defer func() { metrics.ProviderLatency("poe").Observe(time.Since(start).Seconds()) }()

	resp, err := c.client.Do(httpReq)
	if err != nil {
		metrics.ProviderErrors("poe").Inc()
		return fmt.Errorf("call bot %s: %w", botName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.ProviderErrors("poe").Inc()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return &BotError{Bot: botName, StatusCode: resp.StatusCode, Message: string(msg)}
	}

	done := false
	err = readEvents(resp.Body, func(ev event) (bool, error) {
		switch ev.Name {
		case EventText, EventReplaceResponse:
			var p textPayload
			if err := json.Unmarshal([]byte(ev.Data), &p); err != nil {
				return true, fmt.Errorf("decode %s event from %s: %w", ev.Name, botName, err)
			}
			return false, fn(domain.PartialResponse{Text: p.Text, IsReplaceResponse: ev.Name == EventReplaceResponse})
		case EventSuggestedReply:
			var p suggestedReplyPayload
			if err := json.Unmarshal([]byte(ev.Data), &p); err != nil {
				return true, fmt.Errorf("decode suggested_reply event from %s: %w", botName, err)
			}
			partial := domain.PartialResponse{Text: p.Text, IsSuggestedReply: true}
			if p.Data != nil {
				partial.DisplayText = p.Data.DisplayText
			}
			return false, fn(partial)
		case EventError:
			var p errorPayload
			_ = json.Unmarshal([]byte(ev.Data), &p)
			if p.Text == "" {
				p.Text = ev.Data
			}
			metrics.ProviderErrors("poe").Inc()
			return true, &BotError{Bot: botName, Message: p.Text}
		case EventDone:
			done = true
			return true, nil
		default:
			// meta, json, ping
			return false, nil
		}
	})
	if err != nil {
		return err
	}
	if !done {
		c.logger.Warn("bot stream ended without done event", "bot", botName)
	}
	return nil
}

package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"echobot/internal/domain"
	"echobot/internal/metrics"
)

const (
	ModeTextToImage  = "text-to-image"
	ModeImageToImage = "image-to-image"

	stabilityPrefix = "generated_image"
)

// Stability generates images through the Stability AI stable-image REST API.
type Stability struct {
	apiBase   string
	apiKeyEnv string
	client    *http.Client
	logger    *slog.Logger
	now       func() time.Time
}

type StabilityConfig struct {
	APIBase   string // e.g. https://api.stability.ai/v2beta/stable-image/generate
	APIKeyEnv string
	Timeout   time.Duration
	Logger    *slog.Logger
	Now       func() time.Time // clock used for artifact names (default time.Now)
}

func NewStability(cfg StabilityConfig) *Stability {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.stability.ai/v2beta/stable-image/generate"
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "STABILITY_API_KEY"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Stability{
		apiBase:   strings.TrimRight(cfg.APIBase, "/"),
		apiKeyEnv: cfg.APIKeyEnv,
		client:    SharedHTTPClient(cfg.Timeout),
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
}

// Endpoint returns the generation endpoint for a model. Only the literal
// model "sd" selects the core endpoint.
func (s *Stability) Endpoint(model string) string {
	if model == "sd" {
		return s.apiBase + "/core"
	}
	return s.apiBase + "/sd3"
}

// Generate sends one generation request. A non-200 answer becomes an error
// whose message is the raw response body.
func (s *Stability) Generate(ctx context.Context, p domain.StabilityParams) (*domain.Artifact, error) {
	apiKey, err := Credential(s.apiKeyEnv)
	if err != nil {
		return nil, err
	}

	body, contentType, err := s.buildForm(p)
	if err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}

	endpoint := s.Endpoint(p.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "image/*")

	s.logger.Info("stability request", "endpoint", endpoint, "mode", mode(p), "prompt_len", len(p.Prompt))

	start := time.Now()
	resp, err := s.client.Do(req)
	metrics.ProviderLatency("stability").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProviderErrors("stability").Inc()
		return nil, fmt.Errorf("stability request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read stability response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.ProviderErrors("stability").Inc()
		s.logger.Error("stability error response", "status", resp.StatusCode, "body", string(data))
		return nil, &UpstreamError{Provider: "stability", StatusCode: resp.StatusCode, Body: string(data)}
	}

	ext := p.OutputFormat
	if ext == "" {
		ext = "jpeg"
	}
	art := &domain.Artifact{
		Data:        data,
		Filename:    ArtifactName(s.now(), stabilityPrefix, ext),
		ContentType: imageContentType(ext),
	}
	s.logger.Info("stability image generated", "filename", art.Filename, "bytes", len(data))
	return art, nil
}

func mode(p domain.StabilityParams) string {
	if len(p.Image) > 0 {
		return ModeImageToImage
	}
	return ModeTextToImage
}

func (s *Stability) buildForm(p domain.StabilityParams) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{{"prompt", p.Prompt}}
	if p.Model != "" {
		fields = append(fields, [2]string{"model", p.Model})
	}
	if p.Seed != nil {
		fields = append(fields, [2]string{"seed", strconv.FormatInt(*p.Seed, 10)})
	}
	if p.OutputFormat != "" {
		fields = append(fields, [2]string{"output_format", p.OutputFormat})
	}
	if p.NegativePrompt != "" {
		fields = append(fields, [2]string{"negative_prompt", p.NegativePrompt})
	}
	if p.AspectRatio != "" {
		fields = append(fields, [2]string{"aspect_ratio", p.AspectRatio})
	}
	fields = append(fields, [2]string{"mode", mode(p)})
	if len(p.Image) > 0 && p.Strength != nil {
		fields = append(fields, [2]string{"strength", strconv.FormatFloat(*p.Strength, 'f', -1, 64)})
	}
	// The API rejects bodies that are not multipart, so an empty placeholder
	// part is always present.
	fields = append(fields, [2]string{"none", ""})

	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	if len(p.Image) > 0 {
		part, err := createImagePart(w, "image", "image.png", "image/png")
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(p.Image); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"echobot/internal/domain"
	"echobot/internal/metrics"
)

const (
	fireworksPrefix  = "fireworks_generated_image"
	finishFiltered   = "CONTENT_FILTERED"
	defaultFWModel   = "stable-diffusion-xl-1024-v1-0"
	defaultFWAPIBase = "https://api.fireworks.ai/inference/v1/image_generation/accounts/fireworks/models"
)

// Fireworks generates images through the Fireworks AI image generation API.
type Fireworks struct {
	apiBase   string
	model     string
	apiKeyEnv string
	client    *http.Client
	logger    *slog.Logger
	now       func() time.Time
}

type FireworksConfig struct {
	APIBase   string
	Model     string
	APIKeyEnv string
	Timeout   time.Duration
	Logger    *slog.Logger
	Now       func() time.Time
}

func NewFireworks(cfg FireworksConfig) *Fireworks {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultFWAPIBase
	}
	if cfg.Model == "" {
		cfg.Model = defaultFWModel
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "FIREWORKS_API_KEY"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Fireworks{
		apiBase:   strings.TrimRight(cfg.APIBase, "/"),
		model:     cfg.Model,
		apiKeyEnv: cfg.APIKeyEnv,
		client:    SharedHTTPClient(cfg.Timeout),
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
}

// fireworksRequest is the JSON body sent to the API. Optional fields are
// omitted when the user did not set them. A parsed Samples value is not sent:
// only the first image of a response is used.
type fireworksRequest struct {
	Prompt            string  `json:"prompt"`
	CFGScale          float64 `json:"cfg_scale"`
	Height            int     `json:"height"`
	Width             int     `json:"width"`
	Sampler           string  `json:"sampler,omitempty"`
	Steps             int     `json:"steps"`
	Seed              int64   `json:"seed"`
	SafetyCheck       bool    `json:"safety_check"`
	OutputImageFormat string  `json:"output_image_format"`
	NegativePrompt    string  `json:"negative_prompt,omitempty"`
}

type fireworksImage struct {
	Base64       string `json:"base64"`
	FinishReason string `json:"finishReason"`
	Seed         int64  `json:"seed"`
}

func newFireworksRequest(p domain.FireworksParams) fireworksRequest {
	r := fireworksRequest{
		Prompt:            p.Prompt,
		CFGScale:          7.0,
		Height:            1024,
		Width:             1024,
		Sampler:           p.Sampler,
		Steps:             50,
		SafetyCheck:       true,
		OutputImageFormat: "JPEG",
		NegativePrompt:    p.NegativePrompt,
	}
	if p.CFGScale != nil {
		r.CFGScale = *p.CFGScale
	}
	if p.Height != nil {
		r.Height = *p.Height
	}
	if p.Width != nil {
		r.Width = *p.Width
	}
	if p.Steps != nil {
		r.Steps = *p.Steps
	}
	if p.Seed != nil {
		r.Seed = *p.Seed
	}
	if p.SafetyCheck != nil {
		r.SafetyCheck = *p.SafetyCheck
	}
	if p.OutputImageFormat != "" {
		r.OutputImageFormat = p.OutputImageFormat
	}
	return r
}

// Generate requests one image and decodes the first result.
func (f *Fireworks) Generate(ctx context.Context, p domain.FireworksParams) (*domain.Artifact, error) {
	apiKey, err := Credential(f.apiKeyEnv)
	if err != nil {
		return nil, err
	}

	body := newFireworksRequest(p)
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := f.apiBase + "/" + f.model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	f.logger.Info("fireworks request", "model", f.model, "steps", body.Steps, "size", fmt.Sprintf("%dx%d", body.Width, body.Height))

	start := time.Now()
	resp, err := f.client.Do(req)
	metrics.ProviderLatency("fireworks").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProviderErrors("fireworks").Inc()
		return nil, fmt.Errorf("fireworks request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read fireworks response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.ProviderErrors("fireworks").Inc()
		f.logger.Error("fireworks error response", "status", resp.StatusCode, "body", string(respBody))
		return nil, &UpstreamError{Provider: "fireworks", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var images []fireworksImage
	if err := json.Unmarshal(respBody, &images); err != nil {
		return nil, fmt.Errorf("decode fireworks response: %w", err)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("no return image, empty response")
	}
	img := images[0]
	if img.Base64 == "" || img.FinishReason == finishFiltered {
		return nil, fmt.Errorf("no return image, %s", img.FinishReason)
	}

	raw, err := base64.StdEncoding.DecodeString(img.Base64)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	ext := strings.ToLower(body.OutputImageFormat)
	art := &domain.Artifact{
		Data:        raw,
		Filename:    ArtifactName(f.now(), fireworksPrefix, ext),
		ContentType: imageContentType(ext),
	}
	f.logger.Info("fireworks image generated", "filename", art.Filename, "seed", img.Seed, "bytes", len(raw))
	return art, nil
}

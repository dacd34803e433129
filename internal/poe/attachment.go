package poe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"echobot/internal/domain"
	"echobot/internal/metrics"
	"echobot/internal/provider"
)

const DefaultAttachmentURL = "https://www.quora.com/poe_api/file_attachment_3RD_PARTY_POST"

// UploadResult is the platform's answer to an attachment upload.
type UploadResult struct {
	AttachmentURL string `json:"attachment_url"`
	MIMEType      string `json:"mime_type"`
	InlineRef     string `json:"inline_ref"`
}

// Uploader attaches files to a bot message.
type Uploader struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func NewUploader(url string, timeout time.Duration, logger *slog.Logger) *Uploader {
	if url == "" {
		url = DefaultAttachmentURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{url: url, client: provider.SharedHTTPClient(timeout), logger: logger}
}

// Upload posts art as a non-inline attachment of the message messageID.
// Unlike bot calls, the access key is sent without a Bearer prefix.
func (u *Uploader) Upload(ctx context.Context, accessKey, messageID string, art domain.Artifact) (*UploadResult, error) {
	if accessKey == "" || accessKey == missingAccessKey {
		return nil, fmt.Errorf("%w: no access key for attachment upload", provider.ErrMissingCredential)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range [][2]string{
		{"message_id", messageID},
		{"is_inline", "false"},
		{"download_filename", art.Filename},
	} {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("build form: %w", err)
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, art.Filename))
	ct := art.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}
	if _, err := part.Write(art.Data); err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, &buf)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", accessKey)

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload attachment: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		u.logger.Error("attachment upload failed", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("upload attachment: HTTP %d: %s", resp.StatusCode, body)
	}

	var result UploadResult
	if len(body) > 0 {
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("decode upload response: %w", err)
		}
	}
	metrics.AttachmentBytes.Add(int64(len(art.Data)))
	u.logger.Info("attachment uploaded", "filename", art.Filename, "bytes", len(art.Data), "message_id", messageID)
	return &result, nil
}

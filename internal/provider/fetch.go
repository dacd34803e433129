package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

const maxAttachmentBytes = 50 << 20

// DownloadError reports an attachment URL that answered with a non-200 status.
type DownloadError struct {
	URL        string
	StatusCode int
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("failed to download attachment from URL: %s (HTTP %d)", e.URL, e.StatusCode)
}

// Fetcher downloads user attachments.
type Fetcher struct {
	client *http.Client
	logger *slog.Logger
}

func NewFetcher(client *http.Client, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = SharedHTTPClient(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{client: client, logger: logger}
}

// Fetch GETs url once and returns the body. Any status other than 200
// yields a *DownloadError; there is no retry.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	defer resp.Body.Close()

	f.logger.Debug("attachment download", "url", url, "status", resp.StatusCode)
	if resp.StatusCode != http.StatusOK {
		return nil, &DownloadError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	if len(data) > maxAttachmentBytes {
		return nil, fmt.Errorf("attachment exceeds %d bytes", maxAttachmentBytes)
	}
	return data, nil
}

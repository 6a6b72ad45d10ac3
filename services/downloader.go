package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sahilchouksey/exam-harvester/services/crawler"
)

// HTTPDownloader saves attachments to local files
type HTTPDownloader struct {
	httpClient *http.Client
	userAgent  string
}

func NewHTTPDownloader(timeout time.Duration, userAgent string) *HTTPDownloader {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if userAgent == "" {
		userAgent = crawler.DefaultUserAgent
	}
	return &HTTPDownloader{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
	}
}

// Download streams rawURL into dest, creating parent directories. A partial
// file is removed on failure.
func (d *HTTPDownloader) Download(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: HTTP %d", rawURL, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	f, err := os.Create(dest)
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return fmt.Errorf("download %s: %w", rawURL, err)
	}
	return f.Close()
}

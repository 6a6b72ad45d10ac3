// Package crawler reads the exam catalog of pciconcursos.com.br: paginated
// category listings, per-exam detail pages and their PDF attachments.
package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL   = "https://www.pciconcursos.com.br"
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.114 Safari/537.36"
	maxCatalogPages  = 10000
)

// CatalogEntry is one exam row of a category listing, enriched in place by
// ResolveDetails.
type CatalogEntry struct {
	Identifier        string `json:"identifier"` // detail page URL
	DisplayName       string `json:"display_name"`
	Position          string `json:"position"`
	Year              string `json:"year"`
	Institution       string `json:"institution"`        // órgão
	AdministeringBody string `json:"administering_body"` // banca
	EducationLevel    string `json:"education_level"`
	DetailURL         string `json:"detail_url"`
	Category          string `json:"category"`
}

// Details is what the detail page adds to a catalog entry
type Details struct {
	Title             string
	Position          string
	Year              string
	Institution       string
	AdministeringBody string
	EducationLevel    string
	BookletURL        string
	AnswerKeyURL      string
	AttachmentURLs    []string
}

// Merge returns a copy of e with every non-empty detail field applied.
func (e CatalogEntry) Merge(d *Details) CatalogEntry {
	if d == nil {
		return e
	}
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&e.Position, d.Position)
	set(&e.Year, d.Year)
	set(&e.Institution, d.Institution)
	set(&e.AdministeringBody, d.AdministeringBody)
	set(&e.EducationLevel, d.EducationLevel)
	if e.Position == "" {
		e.Position = e.DisplayName
	}
	return e
}

// Config holds configuration for a PCICrawler
type Config struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	PageDelay  time.Duration // pause between listing pages
	Classifier AttachmentClassifier
	HTTPClient *http.Client
}

// PCICrawler implements catalog listing and detail resolution
type PCICrawler struct {
	baseURL    *url.URL
	userAgent  string
	pageDelay  time.Duration
	classifier AttachmentClassifier
	httpClient *http.Client
}

// NewPCICrawler creates a crawler, filling unset config with defaults
func NewPCICrawler(config Config) (*PCICrawler, error) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.Timeout == 0 {
		config.Timeout = 20 * time.Second
	}
	if config.PageDelay < 0 {
		config.PageDelay = 0
	}
	if config.Classifier == nil {
		config.Classifier = DefaultKeywordClassifier()
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: config.Timeout}
	}

	base, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", config.BaseURL, err)
	}

	return &PCICrawler{
		baseURL:    base,
		userAgent:  config.UserAgent,
		pageDelay:  config.PageDelay,
		classifier: config.Classifier,
		httpClient: config.HTTPClient,
	}, nil
}

func (c *PCICrawler) fetchHTML(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	return string(body), nil
}

// resolve turns href into an absolute URL relative to base
func (c *PCICrawler) resolve(base, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	b := c.baseURL
	if base != "" {
		if parsed, err := url.Parse(base); err == nil {
			b = parsed
		}
	}
	return b.ResolveReference(ref).String()
}

// CategoryFromURL returns the last path segment of a category URL
func CategoryFromURL(categoryURL string) string {
	u, err := url.Parse(categoryURL)
	path := categoryURL
	if err == nil {
		path = u.Path
	}
	path = strings.Trim(path, "/")
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

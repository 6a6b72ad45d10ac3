package services

import (
	"context"
	"fmt"
	"sync"
)

// BlobDownloader fetches a stored attachment by its storage URI
type BlobDownloader interface {
	DownloadURI(ctx context.Context, uri string) ([]byte, error)
}

// AttachmentTexts extracts and memoizes attachment text so the windows of one
// document download and parse each PDF once. Safe for concurrent use.
type AttachmentTexts struct {
	blobs     BlobDownloader
	extractor *PDFExtractor

	mu    sync.Mutex
	texts map[string]string
}

func NewAttachmentTexts(blobs BlobDownloader, extractor *PDFExtractor) *AttachmentTexts {
	if extractor == nil {
		extractor = NewPDFExtractor()
	}
	return &AttachmentTexts{
		blobs:     blobs,
		extractor: extractor,
		texts:     make(map[string]string),
	}
}

// DocumentText returns the extracted text of the PDF stored at uri
func (a *AttachmentTexts) DocumentText(ctx context.Context, uri string) (string, error) {
	a.mu.Lock()
	text, ok := a.texts[uri]
	a.mu.Unlock()
	if ok {
		return text, nil
	}

	content, err := a.blobs.DownloadURI(ctx, uri)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", uri, err)
	}

	text, err = a.extractor.ExtractText(content)
	if err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", uri, err)
	}

	a.mu.Lock()
	a.texts[uri] = text
	a.mu.Unlock()

	return text, nil
}

// Release drops memoized text once a document is done
func (a *AttachmentTexts) Release(uris ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, uri := range uris {
		delete(a.texts, uri)
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/sahilchouksey/exam-harvester/model"
	"github.com/sahilchouksey/exam-harvester/services/crawler"
	"github.com/sahilchouksey/exam-harvester/services/digitalocean"
)

// Outcome reason tags
const (
	ReasonDetailFetchFailed = "detail_fetch_failed"
	ReasonNoBookletUpload   = "no_booklet_upload"
	ReasonAnalysisFailed    = "analysis_failed"
	ReasonAnalysisPartial   = "analysis_partial"
	ReasonNoValidQuestions  = "no_valid_questions"
	ReasonWorkerPanic       = "worker_panic"
	ReasonCancelled         = "cancelled"

	// set after the bulk write returns
	ReasonWriteFailed    = "write_failed"
	ReasonNothingWritten = "no_rows_written"
)

var ErrNoBookletUpload = errors.New("exam booklet was not uploaded")

// DetailResolver enriches a catalog entry from its detail page
type DetailResolver interface {
	ResolveDetails(ctx context.Context, entry crawler.CatalogEntry) (*crawler.Details, error)
}

// AttachmentDownloader saves a remote attachment to a local path
type AttachmentDownloader interface {
	Download(ctx context.Context, rawURL, dest string) error
}

// ObjectStore uploads a local file and returns its storage URI
type ObjectStore interface {
	UploadLocalFile(ctx context.Context, localPath, key string) (string, error)
}

// TextReleaser frees memoized attachment text after a document is done
type TextReleaser interface {
	Release(uris ...string)
}

// Document is a catalog entry after detail resolution and upload
type Document struct {
	crawler.CatalogEntry
	BookletURL          string
	AnswerKeyURL        string
	AttachmentURLs      []string
	BookletStorageURI   string
	AnswerKeyStorageURI string
}

// DocumentResult is the aggregated output of one document
type DocumentResult struct {
	Document  Document
	Questions []model.QuestionExtraction
	Partial   bool // a window failed after earlier windows succeeded
}

// Outcome is what a DocumentWorker returns for every entry. Result is nil
// when nothing usable was produced; Reason is empty on full success.
type Outcome struct {
	Result   *DocumentResult
	Reason   string
	Err      error
	Found    int
	Valid    int
	Calls    int
	Duration time.Duration
}

// DocumentWorkerConfig holds the collaborators of a DocumentWorker
type DocumentWorkerConfig struct {
	Resolver    DetailResolver
	Downloader  AttachmentDownloader
	Store       ObjectStore
	Analyzer    *BatchAnalyzer
	Texts       TextReleaser // optional
	DownloadDir string
	KeepPartial bool
}

// DocumentWorker processes one catalog entry end to end. It holds no mutable
// state, so one instance serves every pool goroutine.
type DocumentWorker struct {
	resolver    DetailResolver
	downloader  AttachmentDownloader
	store       ObjectStore
	analyzer    *BatchAnalyzer
	texts       TextReleaser
	downloadDir string
	keepPartial bool
}

func NewDocumentWorker(config DocumentWorkerConfig) *DocumentWorker {
	return &DocumentWorker{
		resolver:    config.Resolver,
		downloader:  config.Downloader,
		store:       config.Store,
		analyzer:    config.Analyzer,
		texts:       config.Texts,
		downloadDir: config.DownloadDir,
		keepPartial: config.KeepPartial,
	}
}

// Process never panics; every failure becomes an Outcome with a reason tag.
func (w *DocumentWorker) Process(ctx context.Context, entry crawler.CatalogEntry) (out Outcome) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("DocumentWorker: panic while processing %s: %v\n%s", entry.Identifier, r, debug.Stack())
			out = Outcome{Reason: ReasonWorkerPanic, Err: fmt.Errorf("panic: %v", r)}
		}
		out.Duration = time.Since(started)
	}()

	if err := ctx.Err(); err != nil {
		return Outcome{Reason: ReasonCancelled, Err: err}
	}

	details, err := w.resolver.ResolveDetails(ctx, entry)
	if err != nil {
		return Outcome{Reason: ReasonDetailFetchFailed, Err: err}
	}

	doc := Document{
		CatalogEntry:   entry.Merge(details),
		BookletURL:     details.BookletURL,
		AnswerKeyURL:   details.AnswerKeyURL,
		AttachmentURLs: details.AttachmentURLs,
	}

	category := SanitizeFileName(doc.Category)
	if category == "" {
		category = "geral"
	}
	slug := documentSlug(doc.Identifier, doc.DisplayName)

	if doc.BookletURL != "" {
		doc.BookletStorageURI = w.stage(ctx, doc.BookletURL, bookletFilePrefix, category, slug)
	}
	if doc.AnswerKeyURL != "" {
		doc.AnswerKeyStorageURI = w.stage(ctx, doc.AnswerKeyURL, answerFilePrefix, category, slug)
	}

	if doc.BookletStorageURI == "" {
		return Outcome{Reason: ReasonNoBookletUpload, Err: ErrNoBookletUpload}
	}

	batch := w.analyzer.AnalyzeDocument(ctx, doc.BookletStorageURI, doc.AnswerKeyStorageURI, examMetadata(doc))
	if w.texts != nil {
		w.texts.Release(doc.BookletStorageURI, doc.AnswerKeyStorageURI)
	}

	out = Outcome{Found: batch.Found, Valid: batch.Valid, Calls: batch.Calls}

	if batch.Err != nil {
		out.Err = batch.Err
		if !w.keepPartial || len(batch.Questions) == 0 {
			out.Reason = ReasonAnalysisFailed
			return out
		}
		out.Reason = ReasonAnalysisPartial
	}

	if len(batch.Questions) == 0 {
		out.Reason = ReasonNoValidQuestions
		return out
	}

	out.Result = &DocumentResult{
		Document:  doc,
		Questions: batch.Questions,
		Partial:   out.Reason == ReasonAnalysisPartial,
	}
	return out
}

// stage downloads rawURL and uploads it; an empty URI means either step failed
func (w *DocumentWorker) stage(ctx context.Context, rawURL, prefix, category, slug string) string {
	fileName := attachmentFileName(prefix, rawURL)
	localPath := filepath.Join(w.downloadDir, category, slug, fileName)

	if err := w.downloader.Download(ctx, rawURL, localPath); err != nil {
		log.Printf("DocumentWorker: download failed for %s: %v", rawURL, err)
		return ""
	}

	uri, err := w.store.UploadLocalFile(ctx, localPath, storageKey(category, slug, fileName))
	if err != nil {
		log.Printf("DocumentWorker: upload failed for %s: %v", localPath, err)
		return ""
	}
	return uri
}

func examMetadata(doc Document) digitalocean.ExamMetadata {
	return digitalocean.ExamMetadata{
		DisplayName:       doc.DisplayName,
		Year:              doc.Year,
		Institution:       doc.Institution,
		AdministeringBody: doc.AdministeringBody,
		EducationLevel:    doc.EducationLevel,
	}
}

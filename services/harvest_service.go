package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sahilchouksey/exam-harvester/model"
	"github.com/sahilchouksey/exam-harvester/services/crawler"
)

var ErrRunInProgress = errors.New("a harvest run is already in progress")

// CatalogSource lists the catalog entries of one category
type CatalogSource interface {
	Crawl(ctx context.Context, categoryURL string, limit int) ([]crawler.CatalogEntry, error)
}

// DocumentProcessor turns one catalog entry into an Outcome without panicking
type DocumentProcessor interface {
	Process(ctx context.Context, entry crawler.CatalogEntry) Outcome
}

// FailureLog receives one line per failed document
type FailureLog interface {
	Logf(format string, args ...interface{})
}

// HarvestServiceConfig wires the collaborators of a HarvestService
type HarvestServiceConfig struct {
	DB        *gorm.DB
	Catalog   CatalogSource
	Processor DocumentProcessor
	Ledger    RunLedger  // optional
	Failures  FailureLog // optional
	Writer    QuestionWriterConfig
	Workers   int
}

// RunOptions selects what one run harvests
type RunOptions struct {
	CategoryURLs []string
	Limit        int    // documents per category; 0 means all
	Trigger      string // manual, cron
}

// HarvestService runs the three phases of a harvest: concurrent document
// analysis, sequential taxonomy population and a single bulk write.
type HarvestService struct {
	db        *gorm.DB
	catalog   CatalogSource
	processor DocumentProcessor
	ledger    RunLedger
	failures  FailureLog
	writer    QuestionWriterConfig
	workers   int

	running atomic.Bool
	mu      sync.RWMutex
	current *HarvestStats
}

func NewHarvestService(config HarvestServiceConfig) *HarvestService {
	if config.Ledger == nil {
		config.Ledger = noopLedger{}
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	return &HarvestService{
		db:        config.DB,
		catalog:   config.Catalog,
		processor: config.Processor,
		ledger:    config.Ledger,
		failures:  config.Failures,
		writer:    config.Writer,
		workers:   config.Workers,
	}
}

// Current returns the stats of the running or last run, or nil before the first run
func (s *HarvestService) Current() *HarvestStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Running reports whether a run is in progress
func (s *HarvestService) Running() bool {
	return s.running.Load()
}

// Run executes one harvest. Runs never overlap; a second call while one is in
// progress returns ErrRunInProgress.
func (s *HarvestService) Run(ctx context.Context, opts RunOptions) (StatsSnapshot, error) {
	if !s.running.CompareAndSwap(false, true) {
		return StatsSnapshot{}, ErrRunInProgress
	}
	defer s.running.Store(false)

	if opts.Trigger == "" {
		opts.Trigger = "manual"
	}

	stats := NewHarvestStats(uuid.NewString())
	s.mu.Lock()
	s.current = stats
	s.mu.Unlock()

	run := &model.HarvestRun{
		ID:         stats.RunID,
		Categories: strings.Join(opts.CategoryURLs, ","),
		Trigger:    opts.Trigger,
		Status:     model.HarvestRunStarted,
		StartedAt:  stats.StartedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		log.Printf("HarvestService: failed to record run start: %v", err)
	}

	err := s.run(ctx, opts, stats)

	if err != nil {
		stats.SetPhase(PhaseFailed)
	} else {
		stats.SetPhase(PhaseDone)
	}
	snap := stats.Snapshot()
	s.finishRun(run, snap, err)

	snap.WriteSummary(os.Stdout)
	return snap, err
}

func (s *HarvestService) run(ctx context.Context, opts RunOptions, stats *HarvestStats) error {
	stats.SetPhase(PhaseCrawling)
	entries, err := s.collectEntries(ctx, opts, stats)
	if err != nil {
		return err
	}
	stats.documentsTotal.Store(int64(len(entries)))
	log.Printf("HarvestService: %d documents to analyze with %d workers", len(entries), s.workers)

	// Phase A: concurrent analysis. Workers never touch the reference tables.
	stats.SetPhase(PhaseAnalyzing)
	outcomes := RunBounded(ctx, s.workers, entries,
		func(ctx context.Context, idx int, entry crawler.CatalogEntry) Outcome {
			log.Printf("HarvestService: analyzing %d/%d: %s", idx+1, len(entries), entry.DisplayName)
			out := s.processor.Process(ctx, entry)
			s.afterDocument(ctx, entry, out, stats)
			return out
		},
		func(idx int, err error) Outcome {
			out := Outcome{Reason: ReasonWorkerPanic, Err: err}
			s.afterDocument(ctx, entries[idx], out, stats)
			return out
		},
	)

	results := make([]*DocumentResult, 0, len(outcomes))
	for _, out := range outcomes {
		if out.Result != nil {
			results = append(results, out.Result)
		}
	}
	log.Printf("HarvestService: analysis finished, %d documents returned questions", len(results))

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(results) == 0 {
		return nil
	}

	// Phase B: sequential taxonomy population after every worker drained.
	stats.SetPhase(PhaseTaxonomy)
	cache := NewTaxonomyCache(s.db)
	if err := cache.Populate(ctx, CollectTaxonomyNames(results)); err != nil {
		return fmt.Errorf("taxonomy population: %w", err)
	}

	// Phase C: one bulk write.
	stats.SetPhase(PhaseWriting)
	writer, err := NewQuestionWriter(s.db, cache, s.writer)
	if err != nil {
		return err
	}
	report, err := writer.Write(ctx, results)
	stats.questionsAttempted.Store(int64(report.Attempted))
	stats.questionsInserted.Store(int64(report.Inserted))
	s.settleDocuments(context.WithoutCancel(ctx), results, report, err, stats)
	if err != nil {
		return err
	}
	if report.DroppedRecords > 0 {
		log.Printf("HarvestService: %d questions dropped for missing statement, subject, style or position", report.DroppedRecords)
	}
	return nil
}

// collectEntries crawls every category, dropping duplicates and documents the
// ledger marks as already harvested
func (s *HarvestService) collectEntries(ctx context.Context, opts RunOptions, stats *HarvestStats) ([]crawler.CatalogEntry, error) {
	seen := make(map[string]struct{})
	var entries []crawler.CatalogEntry

	for _, categoryURL := range opts.CategoryURLs {
		log.Printf("HarvestService: crawling %s", categoryURL)
		found, err := s.catalog.Crawl(ctx, categoryURL, opts.Limit)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("HarvestService: crawl failed for %s: %v", categoryURL, err)
			continue
		}
		log.Printf("HarvestService: %d documents listed in %s", len(found), categoryURL)

		for _, entry := range found {
			if entry.Identifier == "" {
				continue
			}
			if _, dup := seen[entry.Identifier]; dup {
				continue
			}
			seen[entry.Identifier] = struct{}{}

			if s.ledger.Done(ctx, entry.Identifier) {
				stats.documentsSkipped.Add(1)
				continue
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (s *HarvestService) afterDocument(ctx context.Context, entry crawler.CatalogEntry, out Outcome, stats *HarvestStats) {
	stats.RecordOutcome(out)
	s.ledger.Record(ctx, entry.Identifier, ledgerEntryFor(out))

	if out.Reason == "" {
		return
	}
	msg := fmt.Sprintf("%s [%s] %s", out.Reason, entry.Identifier, entry.DisplayName)
	if out.Err != nil {
		msg += ": " + out.Err.Error()
	}
	log.Printf("HarvestService: %s", msg)
	if s.failures != nil {
		s.failures.Logf("%s", msg)
	}
}

// settleDocuments replaces the interim analyzed ledger status of every
// document that reached the bulk write with its final status.
func (s *HarvestService) settleDocuments(ctx context.Context, results []*DocumentResult, report WriteReport, writeErr error, stats *HarvestStats) {
	for _, res := range results {
		entry := settledEntry(res, report, writeErr)
		s.ledger.Record(ctx, res.Document.Identifier, entry)

		if entry.Status == LedgerSucceeded || entry.Status == LedgerPartial {
			continue
		}
		stats.RecordFailure(entry.Status)
		msg := fmt.Sprintf("%s [%s] %s", entry.Status, res.Document.Identifier, res.Document.DisplayName)
		if entry.Error != "" {
			msg += ": " + entry.Error
		}
		log.Printf("HarvestService: %s", msg)
		if s.failures != nil {
			s.failures.Logf("%s", msg)
		}
	}
}

func (s *HarvestService) finishRun(run *model.HarvestRun, snap StatsSnapshot, runErr error) {
	completed := time.Now().UTC()
	run.CompletedAt = &completed
	run.DurationMs = snap.Elapsed.Milliseconds()
	run.DocumentsProcessed = snap.DocumentsProcessed
	run.DocumentsSucceeded = snap.DocumentsSucceeded
	run.DocumentsPartial = snap.DocumentsPartial
	run.DocumentsSkipped = snap.DocumentsSkipped
	run.QuestionsFound = snap.QuestionsFound
	run.QuestionsValid = snap.QuestionsValid
	run.QuestionsAttempted = snap.QuestionsAttempted
	run.QuestionsInserted = snap.QuestionsInserted
	if data, err := json.Marshal(snap.Failures); err == nil {
		run.Failures = datatypes.JSON(data)
	}

	run.Status = model.HarvestRunCompleted
	if runErr != nil {
		run.Status = model.HarvestRunFailed
		run.ErrorMsg = runErr.Error()
	}

	// The run context may already be cancelled; the record is still written.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.db.WithContext(ctx).Save(run).Error; err != nil {
		log.Printf("HarvestService: failed to record run %s: %v", run.ID, err)
	}
}

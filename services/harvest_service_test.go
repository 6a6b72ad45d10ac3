package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahilchouksey/exam-harvester/model"
	"github.com/sahilchouksey/exam-harvester/services/crawler"
)

type fakeCatalog struct {
	entries map[string][]crawler.CatalogEntry
}

func (f fakeCatalog) Crawl(_ context.Context, categoryURL string, limit int) ([]crawler.CatalogEntry, error) {
	entries, ok := f.entries[categoryURL]
	if !ok {
		return nil, errors.New("404")
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// fakeProcessor returns canned outcomes keyed by identifier
type fakeProcessor struct {
	outcomes map[string]Outcome
	panicOn  string
	block    chan struct{}
	mu       sync.Mutex
	seen     []string
}

func (f *fakeProcessor) Process(_ context.Context, entry crawler.CatalogEntry) Outcome {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.seen = append(f.seen, entry.Identifier)
	f.mu.Unlock()
	if entry.Identifier == f.panicOn {
		panic("processor bug")
	}
	return f.outcomes[entry.Identifier]
}

type recordingFailures struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingFailures) Logf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func entry(id string) crawler.CatalogEntry {
	return crawler.CatalogEntry{Identifier: id, DisplayName: "Prova " + id, Position: "Analista", Year: "2022", AdministeringBody: "FGV"}
}

func succeeded(id string, questions ...model.QuestionExtraction) Outcome {
	e := entry(id)
	return Outcome{
		Result: &DocumentResult{
			Document:  Document{CatalogEntry: e, BookletStorageURI: "https://bucket.example.com/" + id + ".pdf"},
			Questions: questions,
		},
		Found: len(questions),
		Valid: len(questions),
		Calls: 1,
	}
}

func TestHarvestRunEndToEnd(t *testing.T) {
	db := newTestDB(t)
	failures := &recordingFailures{}
	store := newMemoryHash()

	processor := &fakeProcessor{outcomes: map[string]Outcome{
		"a": succeeded("a", question(1, "Português", "ME5"), question(2, "Português", "ME5")),
		"b": succeeded("b", question(1, "Matemática", "ME4"), question(2, "", "ME4")),
		"c": {Reason: ReasonNoBookletUpload, Err: ErrNoBookletUpload},
	}}
	processor.outcomes["b"].Result.Document.Position = "Técnico"

	svc := NewHarvestService(HarvestServiceConfig{
		DB: db,
		Catalog: fakeCatalog{entries: map[string][]crawler.CatalogEntry{
			"cat1": {entry("a"), entry("b")},
			"cat2": {entry("b"), entry("c"), entry("skip"), entry("boom")},
		}},
		Processor: processor,
		Ledger:    &redisLedger{store: store},
		Failures:  failures,
		Writer:    QuestionWriterConfig{SystemUserID: testSystemUser},
		Workers:   3,
	})
	processor.panicOn = "boom"
	svc.ledger.Record(context.Background(), "skip", LedgerEntry{Status: LedgerSucceeded})

	snap, err := svc.Run(context.Background(), RunOptions{CategoryURLs: []string{"cat1", "cat2", "missing"}})
	require.NoError(t, err)

	assert.Equal(t, PhaseDone, snap.Phase)
	assert.Equal(t, 4, snap.DocumentsTotal)
	assert.Equal(t, 4, snap.DocumentsProcessed)
	assert.Equal(t, 2, snap.DocumentsSucceeded)
	assert.Equal(t, 1, snap.DocumentsSkipped)
	assert.Equal(t, 4, snap.QuestionsFound)
	assert.Equal(t, 4, snap.QuestionsValid)
	assert.Equal(t, 3, snap.QuestionsAttempted)
	assert.Equal(t, 3, snap.QuestionsInserted)
	assert.Equal(t, map[string]int{ReasonNoBookletUpload: 1, ReasonWorkerPanic: 1}, snap.Failures)

	assert.EqualValues(t, 3, countRows(t, db, &model.Question{}))
	assert.EqualValues(t, 2, countRows(t, db, &model.ExamPaper{}))
	assert.EqualValues(t, 2, countRows(t, db, &model.ExamPosition{}))

	var run model.HarvestRun
	require.NoError(t, db.First(&run, "id = ?", snap.RunID).Error)
	assert.Equal(t, model.HarvestRunCompleted, run.Status)
	assert.Equal(t, 3, run.QuestionsInserted)
	assert.Equal(t, "manual", run.Trigger)
	assert.Contains(t, string(run.Failures), ReasonWorkerPanic)

	assert.Len(t, failures.lines, 2)
	assert.Equal(t, LedgerSucceeded, store.status(t, "a"))
	assert.Equal(t, ReasonWorkerPanic, store.status(t, "boom"))
	assert.Equal(t, ReasonNoBookletUpload, store.status(t, "c"))
	assert.NotContains(t, processor.seen, "skip")
}

func TestHarvestRunFailedWriteKeepsDocumentsRetryable(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.Migrator().DropTable(&model.Question{}))

	store := newMemoryHash()
	ledger := &redisLedger{store: store}
	failures := &recordingFailures{}
	svc := NewHarvestService(HarvestServiceConfig{
		DB:        db,
		Catalog:   fakeCatalog{entries: map[string][]crawler.CatalogEntry{"cat": {entry("a")}}},
		Processor: &fakeProcessor{outcomes: map[string]Outcome{"a": succeeded("a", question(1, "Português", "ME5"))}},
		Ledger:    ledger,
		Failures:  failures,
		Writer:    QuestionWriterConfig{SystemUserID: testSystemUser},
		Workers:   1,
	})

	snap, err := svc.Run(ctx, RunOptions{CategoryURLs: []string{"cat"}})
	require.Error(t, err)

	assert.Equal(t, PhaseFailed, snap.Phase)
	assert.Equal(t, 1, snap.QuestionsAttempted)
	assert.Zero(t, snap.QuestionsInserted)
	assert.Equal(t, 1, snap.Failures[ReasonWriteFailed])
	assert.Len(t, failures.lines, 1)

	assert.Equal(t, ReasonWriteFailed, store.status(t, "a"))
	assert.False(t, ledger.Done(ctx, "a"))

	n, err := ledger.ResetFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestHarvestRunDocumentWithEveryRowDropped(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	store := newMemoryHash()
	ledger := &redisLedger{store: store}
	svc := NewHarvestService(HarvestServiceConfig{
		DB:      db,
		Catalog: fakeCatalog{entries: map[string][]crawler.CatalogEntry{"cat": {entry("a"), entry("b")}}},
		Processor: &fakeProcessor{outcomes: map[string]Outcome{
			"a": succeeded("a", question(1, "", "ME5")),
			"b": succeeded("b", question(1, "Português", "ME5")),
		}},
		Ledger:  ledger,
		Writer:  QuestionWriterConfig{SystemUserID: testSystemUser},
		Workers: 2,
	})

	snap, err := svc.Run(ctx, RunOptions{CategoryURLs: []string{"cat"}})
	require.NoError(t, err)
	assert.Equal(t, 1, snap.QuestionsInserted)
	assert.Equal(t, 1, snap.Failures[ReasonNothingWritten])

	assert.Equal(t, ReasonNothingWritten, store.status(t, "a"))
	assert.False(t, ledger.Done(ctx, "a"))
	assert.Equal(t, LedgerSucceeded, store.status(t, "b"))
	assert.True(t, ledger.Done(ctx, "b"))
}

func TestHarvestRunWithoutResultsSkipsWrite(t *testing.T) {
	db := newTestDB(t)
	svc := NewHarvestService(HarvestServiceConfig{
		DB:        db,
		Catalog:   fakeCatalog{entries: map[string][]crawler.CatalogEntry{"cat": {entry("x")}}},
		Processor: &fakeProcessor{outcomes: map[string]Outcome{"x": {Reason: ReasonAnalysisFailed}}},
		Writer:    QuestionWriterConfig{SystemUserID: testSystemUser},
		Workers:   2,
	})

	snap, err := svc.Run(context.Background(), RunOptions{CategoryURLs: []string{"cat"}, Trigger: "cron"})
	require.NoError(t, err)
	assert.Equal(t, 1, snap.DocumentsProcessed)
	assert.Zero(t, snap.DocumentsSucceeded)
	assert.EqualValues(t, 0, countRows(t, db, &model.KnowledgeArea{}))
}

func TestHarvestRunsDoNotOverlap(t *testing.T) {
	db := newTestDB(t)
	block := make(chan struct{})
	svc := NewHarvestService(HarvestServiceConfig{
		DB:        db,
		Catalog:   fakeCatalog{entries: map[string][]crawler.CatalogEntry{"cat": {entry("x")}}},
		Processor: &fakeProcessor{outcomes: map[string]Outcome{}, block: block},
		Writer:    QuestionWriterConfig{SystemUserID: testSystemUser},
		Workers:   1,
	})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(context.Background(), RunOptions{CategoryURLs: []string{"cat"}})
		done <- err
	}()

	require.Eventually(t, svc.Running, time.Second, time.Millisecond)
	_, err := svc.Run(context.Background(), RunOptions{CategoryURLs: []string{"cat"}})
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(block)
	require.NoError(t, <-done)
	assert.False(t, svc.Running())
	require.NotNil(t, svc.Current())
	assert.Equal(t, PhaseDone, svc.Current().Snapshot().Phase)
}

func TestWriteSummary(t *testing.T) {
	snap := StatsSnapshot{
		RunID:              "run-1",
		Elapsed:            90 * time.Second,
		DocumentsProcessed: 3,
		DocumentsSucceeded: 2,
		QuestionsFound:     12,
		QuestionsValid:     11,
		QuestionsAttempted: 10,
		QuestionsInserted:  10,
		Failures:           map[string]int{ReasonAnalysisFailed: 1},
	}

	var buf bytes.Buffer
	snap.WriteSummary(&buf)
	out := buf.String()

	for _, want := range []string{
		"HARVEST SUMMARY",
		"Total elapsed: 00h 01m 30s",
		"Failed (no questions): 1",
		"Average time per document: 00h 00m 30s",
		"analysis_failed: 1",
		"Parser attrition: 1",
		"Valid questions not inserted (taxonomy, FK or DB errors): 1",
		"Insertion success rate: 90.91%",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

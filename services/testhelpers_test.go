package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sahilchouksey/exam-harvester/database"
	"github.com/sahilchouksey/exam-harvester/model"
	"github.com/sahilchouksey/exam-harvester/services/crawler"
	"github.com/sahilchouksey/exam-harvester/services/digitalocean"
)

// newTestDB opens a migrated in-memory database pinned to one connection
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func countRows(t *testing.T, db *gorm.DB, m interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(m).Count(&n).Error)
	return n
}

func question(number int, subject, style string) model.QuestionExtraction {
	return model.QuestionExtraction{
		OriginalNumber: model.FlexibleInt{Value: number, Set: true},
		Statement:      "Enunciado da questão",
		ItemA:          "alternativa A",
		ItemB:          "alternativa B",
		CorrectOption:  "A",
		Subject:        subject,
		Topic:          "Crase",
		KnowledgeArea:  "Linguagens",
		QuestionStyle:  style,
	}
}

// scriptedAnalyzer answers each call with the next scripted response
type scriptedAnalyzer struct {
	mu        sync.Mutex
	responses []scriptedResponse
	requests  []digitalocean.AnalysisRequest
}

type scriptedResponse struct {
	text   string
	finish string
	err    error
}

func (a *scriptedAnalyzer) Analyze(_ context.Context, req digitalocean.AnalysisRequest) (*digitalocean.AnalysisResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.requests = append(a.requests, req)
	idx := len(a.requests) - 1
	if idx >= len(a.responses) {
		return &digitalocean.AnalysisResponse{Text: `{"questions": []}`, FinishReason: digitalocean.FinishReasonStop}, nil
	}
	r := a.responses[idx]
	if r.err != nil {
		return nil, r.err
	}
	finish := r.finish
	if finish == "" {
		finish = digitalocean.FinishReasonStop
	}
	return &digitalocean.AnalysisResponse{Text: r.text, FinishReason: finish}, nil
}

func (a *scriptedAnalyzer) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

// fakeResolver returns fixed details for every entry
type fakeResolver struct {
	details *crawler.Details
	err     error
}

func (f fakeResolver) ResolveDetails(context.Context, crawler.CatalogEntry) (*crawler.Details, error) {
	if f.err != nil {
		return nil, f.err
	}
	d := *f.details
	return &d, nil
}

// fakeDownloader records destinations and fails for URLs in failFor
type fakeDownloader struct {
	mu      sync.Mutex
	dests   []string
	failFor map[string]bool
}

func (f *fakeDownloader) Download(_ context.Context, rawURL, dest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[rawURL] {
		return context.DeadlineExceeded
	}
	f.dests = append(f.dests, dest)
	return nil
}

// fakeStore returns a public URL for every uploaded key
type fakeStore struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeStore) UploadLocalFile(_ context.Context, _ string, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return "https://bucket.example.com/" + key, nil
}

type fakeReleaser struct {
	mu       sync.Mutex
	released []string
}

func (f *fakeReleaser) Release(uris ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, uris...)
}

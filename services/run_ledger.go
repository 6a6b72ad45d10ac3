package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sahilchouksey/exam-harvester/utils/cache"
)

// Ledger statuses besides the failure reason tags. Analyzed is interim: the
// document returned questions but the bulk write has not committed them yet.
const (
	LedgerAnalyzed  = "analyzed"
	LedgerSucceeded = "succeeded"
	LedgerPartial   = "partial"
	LedgerReset     = "reset"
)

// LedgerKey is the redis hash holding one field per document identifier
const LedgerKey = "exam_harvester:documents"

// LedgerEntry is the last known outcome of one document
type LedgerEntry struct {
	Status    string    `json:"status"`
	Questions int       `json:"questions"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunLedger remembers document outcomes across runs
type RunLedger interface {
	Done(ctx context.Context, identifier string) bool
	Record(ctx context.Context, identifier string, entry LedgerEntry)
	ResetFailed(ctx context.Context) (int, error)
}

// hashStore is the subset of the redis cache the ledger uses
type hashStore interface {
	HSet(ctx context.Context, key, field string, value interface{}) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// NewRunLedger returns a redis-backed ledger, or a no-op ledger when store is nil
func NewRunLedger(store *cache.RedisCache) RunLedger {
	if store == nil {
		return noopLedger{}
	}
	return &redisLedger{store: store}
}

type redisLedger struct {
	store hashStore
}

// Done reports whether the document already succeeded in an earlier run.
// Partial documents are retried.
func (l *redisLedger) Done(ctx context.Context, identifier string) bool {
	raw, err := l.store.HGet(ctx, LedgerKey, identifier)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			log.Printf("RunLedger: lookup failed for %s: %v", identifier, err)
		}
		return false
	}
	var entry LedgerEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return false
	}
	return entry.Status == LedgerSucceeded
}

func (l *redisLedger) Record(ctx context.Context, identifier string, entry LedgerEntry) {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := l.store.HSet(ctx, LedgerKey, identifier, string(data)); err != nil {
		log.Printf("RunLedger: failed to record %s: %v", identifier, err)
	}
}

// ResetFailed marks every failed document as reset and returns how many changed.
func (l *redisLedger) ResetFailed(ctx context.Context) (int, error) {
	all, err := l.store.HGetAll(ctx, LedgerKey)
	if err != nil {
		return 0, fmt.Errorf("failed to read ledger: %w", err)
	}

	reset := 0
	for identifier, raw := range all {
		var entry LedgerEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		switch entry.Status {
		case LedgerSucceeded, LedgerPartial, LedgerReset, LedgerAnalyzed:
			continue
		}
		entry.Status = LedgerReset
		entry.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		if err := l.store.HSet(ctx, LedgerKey, identifier, string(data)); err != nil {
			return reset, fmt.Errorf("failed to reset %s: %w", identifier, err)
		}
		reset++
	}
	return reset, nil
}

type noopLedger struct{}

func (noopLedger) Done(context.Context, string) bool           { return false }
func (noopLedger) Record(context.Context, string, LedgerEntry) {}
func (noopLedger) ResetFailed(context.Context) (int, error)    { return 0, nil }

// ledgerEntryFor maps a worker outcome onto a ledger entry. Documents with
// questions stay analyzed until settledEntry sees the write result.
func ledgerEntryFor(out Outcome) LedgerEntry {
	var entry LedgerEntry
	switch {
	case out.Result != nil:
		entry.Status = LedgerAnalyzed
		entry.Questions = len(out.Result.Questions)
	case out.Reason != "":
		entry.Status = out.Reason
	default:
		entry.Status = ReasonNoValidQuestions
	}
	if out.Err != nil {
		entry.Error = out.Err.Error()
	}
	return entry
}

// settledEntry is the final entry of an analyzed document once the bulk write
// has returned. Only committed rows make a document succeeded.
func settledEntry(res *DocumentResult, report WriteReport, writeErr error) LedgerEntry {
	written := report.Committed[res.Document.Identifier]
	entry := LedgerEntry{Questions: written}
	switch {
	case writeErr != nil:
		entry.Status = ReasonWriteFailed
		entry.Error = writeErr.Error()
	case written == 0:
		entry.Status = ReasonNothingWritten
	case res.Partial:
		entry.Status = LedgerPartial
	default:
		entry.Status = LedgerSucceeded
	}
	return entry
}

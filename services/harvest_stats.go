package services

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// HarvestStats holds the live counters of one run. Workers update it
// concurrently; the status server reads snapshots.
type HarvestStats struct {
	RunID     string
	StartedAt time.Time

	phase atomic.Value // string

	documentsTotal     atomic.Int64
	documentsProcessed atomic.Int64
	documentsSucceeded atomic.Int64
	documentsPartial   atomic.Int64
	documentsSkipped   atomic.Int64
	analysisCalls      atomic.Int64
	questionsFound     atomic.Int64
	questionsValid     atomic.Int64
	questionsAttempted atomic.Int64
	questionsInserted  atomic.Int64

	mu       sync.Mutex
	failures map[string]int
	finished time.Time
}

// Run phases reported by the status server
const (
	PhaseCrawling  = "crawling"
	PhaseAnalyzing = "analyzing"
	PhaseTaxonomy  = "taxonomy"
	PhaseWriting   = "writing"
	PhaseDone      = "done"
	PhaseFailed    = "failed"
)

func NewHarvestStats(runID string) *HarvestStats {
	s := &HarvestStats{
		RunID:     runID,
		StartedAt: time.Now(),
		failures:  make(map[string]int),
	}
	s.phase.Store(PhaseCrawling)
	return s
}

func (s *HarvestStats) SetPhase(phase string) {
	s.phase.Store(phase)
	if phase == PhaseDone || phase == PhaseFailed {
		s.mu.Lock()
		s.finished = time.Now()
		s.mu.Unlock()
	}
}

// RecordOutcome folds one worker outcome into the counters
func (s *HarvestStats) RecordOutcome(out Outcome) {
	s.documentsProcessed.Add(1)
	s.analysisCalls.Add(int64(out.Calls))
	s.questionsFound.Add(int64(out.Found))
	s.questionsValid.Add(int64(out.Valid))

	if out.Result != nil {
		s.documentsSucceeded.Add(1)
	}
	if out.Reason == ReasonAnalysisPartial {
		s.documentsPartial.Add(1)
	}
	if out.Reason != "" {
		s.mu.Lock()
		s.failures[out.Reason]++
		s.mu.Unlock()
	}
}

// RecordFailure counts a failure found after analysis, such as a failed write
func (s *HarvestStats) RecordFailure(reason string) {
	s.mu.Lock()
	s.failures[reason]++
	s.mu.Unlock()
}

// StatsSnapshot is a consistent copy of HarvestStats
type StatsSnapshot struct {
	RunID              string         `json:"run_id"`
	Phase              string         `json:"phase"`
	StartedAt          time.Time      `json:"started_at"`
	Elapsed            time.Duration  `json:"elapsed_ns"`
	DocumentsTotal     int            `json:"documents_total"`
	DocumentsProcessed int            `json:"documents_processed"`
	DocumentsSucceeded int            `json:"documents_succeeded"`
	DocumentsPartial   int            `json:"documents_partial"`
	DocumentsSkipped   int            `json:"documents_skipped"`
	AnalysisCalls      int            `json:"analysis_calls"`
	QuestionsFound     int            `json:"questions_found"`
	QuestionsValid     int            `json:"questions_valid"`
	QuestionsAttempted int            `json:"questions_attempted"`
	QuestionsInserted  int            `json:"questions_inserted"`
	Failures           map[string]int `json:"failures"`
}

func (s *HarvestStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	failures := make(map[string]int, len(s.failures))
	for k, v := range s.failures {
		failures[k] = v
	}
	end := s.finished
	s.mu.Unlock()

	if end.IsZero() {
		end = time.Now()
	}
	phase, _ := s.phase.Load().(string)

	return StatsSnapshot{
		RunID:              s.RunID,
		Phase:              phase,
		StartedAt:          s.StartedAt,
		Elapsed:            end.Sub(s.StartedAt),
		DocumentsTotal:     int(s.documentsTotal.Load()),
		DocumentsProcessed: int(s.documentsProcessed.Load()),
		DocumentsSucceeded: int(s.documentsSucceeded.Load()),
		DocumentsPartial:   int(s.documentsPartial.Load()),
		DocumentsSkipped:   int(s.documentsSkipped.Load()),
		AnalysisCalls:      int(s.analysisCalls.Load()),
		QuestionsFound:     int(s.questionsFound.Load()),
		QuestionsValid:     int(s.questionsValid.Load()),
		QuestionsAttempted: int(s.questionsAttempted.Load()),
		QuestionsInserted:  int(s.questionsInserted.Load()),
		Failures:           failures,
	}
}

// WriteSummary prints the end-of-run report
func (snap StatsSnapshot) WriteSummary(w io.Writer) {
	line := strings.Repeat("=", 80)
	failed := snap.DocumentsProcessed - snap.DocumentsSucceeded

	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "||%s||\n", center(" HARVEST SUMMARY ", 76))
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "  Run: %s\n", snap.RunID)
	fmt.Fprintf(w, "  Total elapsed: %s\n", formatDuration(snap.Elapsed))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  DOCUMENTS PROCESSED: %d\n", snap.DocumentsProcessed)
	fmt.Fprintf(w, "    - Succeeded (at least 1 valid question): %d\n", snap.DocumentsSucceeded)
	fmt.Fprintf(w, "    - Partial (kept questions before a failed window): %d\n", snap.DocumentsPartial)
	fmt.Fprintf(w, "    - Failed (no questions): %d\n", failed)
	fmt.Fprintf(w, "    - Skipped (already harvested): %d\n", snap.DocumentsSkipped)
	if snap.DocumentsProcessed > 0 {
		fmt.Fprintf(w, "    - Average time per document: %s\n", formatDuration(snap.Elapsed/time.Duration(snap.DocumentsProcessed)))
	}
	if len(snap.Failures) > 0 {
		reasons := make([]string, 0, len(snap.Failures))
		for reason := range snap.Failures {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			fmt.Fprintf(w, "    - %s: %d\n", reason, snap.Failures[reason])
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  QUESTIONS (ANALYSIS):")
	fmt.Fprintf(w, "    - Analysis calls: %d\n", snap.AnalysisCalls)
	fmt.Fprintf(w, "    - Candidates found: %d\n", snap.QuestionsFound)
	fmt.Fprintf(w, "    - Valid (parse + validation OK): %d\n", snap.QuestionsValid)
	fmt.Fprintf(w, "    - Parser attrition: %d\n", snap.QuestionsFound-snap.QuestionsValid)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  QUESTIONS (DATABASE):")
	fmt.Fprintf(w, "    - Attempted: %d\n", snap.QuestionsAttempted)
	fmt.Fprintf(w, "    - Inserted: %d\n", snap.QuestionsInserted)
	if attrition := snap.QuestionsValid - snap.QuestionsInserted; attrition > 0 {
		fmt.Fprintf(w, "    - Valid questions not inserted (taxonomy, FK or DB errors): %d\n", attrition)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  PERFORMANCE:")
	if snap.QuestionsInserted > 0 {
		fmt.Fprintf(w, "    - Average time per inserted question: %.2f seconds\n", snap.Elapsed.Seconds()/float64(snap.QuestionsInserted))
	}
	fmt.Fprintf(w, "    - Insertion success rate: %.2f%%\n", successRate(snap.QuestionsInserted, snap.QuestionsValid))
	fmt.Fprintln(w, line)
}

func successRate(inserted, valid int) float64 {
	if valid <= 0 {
		return 0
	}
	return float64(inserted) / float64(valid) * 100
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%02dh %02dm %02ds", int64(h), int64(m), int64(s))
}

func center(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	left := (width - n) / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", width-n-left)
}

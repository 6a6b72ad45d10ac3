package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sahilchouksey/exam-harvester/model"
	"github.com/sahilchouksey/exam-harvester/services/digitalocean"
	"github.com/sahilchouksey/exam-harvester/utils/jsonrecovery"
)

// QuestionListKey is the list the analysis service is asked to fill
const QuestionListKey = "questions"

var (
	ErrEmptyAnalysis   = errors.New("analysis service returned empty text")
	ErrAnalysisBlocked = errors.New("analysis service stopped without usable text")
)

// Analyzer is the external document-analysis service
type Analyzer interface {
	Analyze(ctx context.Context, req digitalocean.AnalysisRequest) (*digitalocean.AnalysisResponse, error)
}

// BatchAnalyzerConfig holds windowing parameters
type BatchAnalyzerConfig struct {
	WindowSize int           // questions per call (default: 10)
	Pause      time.Duration // between calls
	MaxWindows int           // safety cap per document (default: 30)
}

// DefaultBatchAnalyzerConfig returns default configuration
func DefaultBatchAnalyzerConfig() BatchAnalyzerConfig {
	return BatchAnalyzerConfig{
		WindowSize: 10,
		Pause:      3 * time.Second,
		MaxWindows: 30,
	}
}

// BatchResult aggregates every window of one document
type BatchResult struct {
	Questions []model.QuestionExtraction
	Found     int   // candidate objects across windows
	Valid     int   // candidates that passed validation
	Calls     int   // analysis calls made
	Err       error // set when a window failed; Questions keeps earlier windows
}

// BatchAnalyzer walks a document in fixed-width question windows.
type BatchAnalyzer struct {
	analyzer   Analyzer
	schema     *jsonschema.Schema
	windowSize int
	pause      time.Duration
	maxWindows int
}

// NewBatchAnalyzer creates a batch analyzer; zero config values take defaults
func NewBatchAnalyzer(analyzer Analyzer, config BatchAnalyzerConfig) (*BatchAnalyzer, error) {
	defaults := DefaultBatchAnalyzerConfig()
	if config.WindowSize <= 0 {
		config.WindowSize = defaults.WindowSize
	}
	if config.MaxWindows <= 0 {
		config.MaxWindows = defaults.MaxWindows
	}
	if config.Pause < 0 {
		config.Pause = 0
	}

	schema, err := jsonrecovery.RequiredFieldsSchema("statement", "correct_option")
	if err != nil {
		return nil, err
	}

	return &BatchAnalyzer{
		analyzer:   analyzer,
		schema:     schema,
		windowSize: config.WindowSize,
		pause:      config.Pause,
		maxWindows: config.MaxWindows,
	}, nil
}

// WindowSize returns the configured window width
func (b *BatchAnalyzer) WindowSize() int {
	return b.windowSize
}

// AnalyzeDocument requests windows [1,w], [w+1,2w], ... until a window yields
// fewer than w candidates, the service stops for a reason other than "stop",
// or a call fails. Failed windows are not retried.
func (b *BatchAnalyzer) AnalyzeDocument(ctx context.Context, bookletURI, answerKeyURI string, meta digitalocean.ExamMetadata) BatchResult {
	var result BatchResult
	start := 1

	for window := 0; window < b.maxWindows; window++ {
		if window > 0 && b.pause > 0 {
			select {
			case <-ctx.Done():
				result.Err = ctx.Err()
				return result
			case <-time.After(b.pause):
			}
		}

		end := start + b.windowSize - 1
		resp, err := b.analyzer.Analyze(ctx, digitalocean.AnalysisRequest{
			BookletURI:    bookletURI,
			AnswerKeyURI:  answerKeyURI,
			Metadata:      meta,
			FirstQuestion: start,
			LastQuestion:  end,
		})
		result.Calls++
		if err != nil {
			result.Err = fmt.Errorf("window %d-%d: %w", start, end, err)
			return result
		}

		text := strings.TrimSpace(resp.Text)
		if text == "" {
			if resp.FinishReason != "" && resp.FinishReason != digitalocean.FinishReasonStop {
				result.Err = fmt.Errorf("window %d-%d (%s): %w", start, end, resp.FinishReason, ErrAnalysisBlocked)
			} else {
				result.Err = fmt.Errorf("window %d-%d: %w", start, end, ErrEmptyAnalysis)
			}
			return result
		}

		recovered := jsonrecovery.Recover[model.QuestionExtraction](text, QuestionListKey, b.schema)
		result.Found += recovered.Found
		result.Valid += recovered.Valid
		result.Questions = append(result.Questions, recovered.Objects...)

		log.Printf("BatchAnalyzer: %s window %d-%d: %d found, %d valid", bookletURI, start, end, recovered.Found, recovered.Valid)

		if resp.FinishReason != "" && resp.FinishReason != digitalocean.FinishReasonStop {
			log.Printf("BatchAnalyzer: %s window %d-%d finished with %q, stopping", bookletURI, start, end, resp.FinishReason)
			return result
		}
		if recovered.Found < b.windowSize {
			return result
		}

		start = end + 1
	}

	log.Printf("BatchAnalyzer: %s reached the %d window cap", bookletURI, b.maxWindows)
	return result
}

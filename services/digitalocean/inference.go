package digitalocean

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/time/rate"
)

const (
	// InferenceBaseURL is the DigitalOcean AI Inference API base URL
	InferenceBaseURL = "https://inference.do-ai.run/v1/"
	// DefaultInferenceTimeout is longer for LLM inference requests
	DefaultInferenceTimeout = 300 * time.Second
	// DefaultInferenceModel is the default model for inference
	DefaultInferenceModel = "openai-gpt-oss-120b"

	defaultMaxOutputTokens  = 16384
	defaultMaxDocumentChars = 180000
	defaultRequestsPerSec   = 2.0
)

// Finish reasons reported by the chat completions API
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonContentFilter = "content_filter"
)

// TextSource turns a storage URI into the plain text of the attachment
type TextSource interface {
	DocumentText(ctx context.Context, uri string) (string, error)
}

// ExamMetadata is the catalog information sent alongside each window
type ExamMetadata struct {
	DisplayName       string
	Year              string
	Institution       string
	AdministeringBody string
	EducationLevel    string
}

// AnalysisRequest asks for the questions numbered FirstQuestion..LastQuestion
type AnalysisRequest struct {
	BookletURI    string
	AnswerKeyURI  string // optional
	Metadata      ExamMetadata
	FirstQuestion int
	LastQuestion  int
}

// AnalysisResponse is the raw text of one completion
type AnalysisResponse struct {
	Text         string
	FinishReason string
}

// InferenceClient analyzes exam attachments through an OpenAI-compatible
// chat completions endpoint.
type InferenceClient struct {
	client           openai.Client
	model            string
	maxTokens        int64
	maxDocumentChars int
	limiter          *rate.Limiter
	texts            TextSource
}

// InferenceConfig holds configuration for the inference client
type InferenceConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	MaxOutputTokens   int64
	MaxDocumentChars  int
	RequestsPerSecond float64 // shared by every worker
	HTTPClient        *http.Client
	Texts             TextSource
}

// NewInferenceClient creates a new DigitalOcean AI Inference client
func NewInferenceClient(config InferenceConfig) (*InferenceClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("inference API key is required")
	}
	if config.Texts == nil {
		return nil, fmt.Errorf("inference text source is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = InferenceBaseURL
	}
	if config.Model == "" {
		config.Model = DefaultInferenceModel
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultInferenceTimeout
	}
	if config.MaxOutputTokens <= 0 {
		config.MaxOutputTokens = defaultMaxOutputTokens
	}
	if config.MaxDocumentChars <= 0 {
		config.MaxDocumentChars = defaultMaxDocumentChars
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = defaultRequestsPerSec
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	// Windows are never retried; a failed call ends the document's loop.
	client := openai.NewClient(
		option.WithAPIKey(config.APIKey),
		option.WithBaseURL(config.BaseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)

	return &InferenceClient{
		client:           client,
		model:            config.Model,
		maxTokens:        config.MaxOutputTokens,
		maxDocumentChars: config.MaxDocumentChars,
		limiter:          rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
		texts:            config.Texts,
	}, nil
}

// Analyze sends one window of one exam to the model and returns its raw text.
// A non-stop finish reason is reported, not treated as an error.
func (c *InferenceClient) Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResponse, error) {
	booklet, err := c.texts.DocumentText(ctx, req.BookletURI)
	if err != nil {
		return nil, fmt.Errorf("failed to read booklet text: %w", err)
	}

	var answerKey string
	if req.AnswerKeyURI != "" {
		answerKey, err = c.texts.DocumentText(ctx, req.AnswerKeyURI)
		if err != nil {
			// The booklet alone is still analyzable.
			log.Printf("InferenceClient: answer key unavailable for %s: %v", req.BookletURI, err)
			answerKey = ""
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	userPrompt := buildExamPrompt(req, truncateRunes(booklet, c.maxDocumentChars), truncateRunes(answerKey, c.maxDocumentChars/4))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(examSystemPrompt),
			openai.UserMessage(userPrompt),
		},
		MaxTokens:   openai.Int(c.maxTokens),
		Temperature: openai.Float(0.1),
	})
	if err != nil {
		return nil, mapInferenceError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from inference API")
	}

	choice := resp.Choices[0]
	return &AnalysisResponse{
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
	}, nil
}

// Model returns the configured model identifier.
func (c *InferenceClient) Model() string {
	return c.model
}

func mapInferenceError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return fmt.Errorf("inference API error (status %d): %s", apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("inference API error (status %d)", apiErr.StatusCode)
	}
	return fmt.Errorf("inference request failed: %w", err)
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max]))
}

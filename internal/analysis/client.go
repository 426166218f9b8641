package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/storywire/storywire/internal/models"
	"github.com/storywire/storywire/internal/resilience"
)

// Provider names used with the resilience layer. Analysis and embeddings
// share a key pool but are tracked as separate circuits so a broken chat
// endpoint does not blackhole embedding generation.
const (
	AnalysisProviderName  = "openai-analysis"
	EmbeddingProviderName = "openai-embeddings"
	SynthesisProviderName = "openai-synthesis"
)

// ClientConfig configures the OpenAI-backed analyzer.
type ClientConfig struct {
	AnalysisModel  string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
	CallTimeout    time.Duration
}

// DefaultClientConfig returns sensible defaults for news processing.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		AnalysisModel:  "gpt-4o-mini",
		EmbeddingModel: string(openai.SmallEmbedding3),
		Temperature:    0.3,
		MaxTokens:      1200,
		CallTimeout:    30 * time.Second,
	}
}

// Client implements Analyzer on the OpenAI API. A fresh API client is built
// per call because the resilience layer decides which credential each
// attempt uses.
type Client struct {
	exec   *resilience.Executor
	config ClientConfig
	logger *slog.Logger
}

// NewClient creates an OpenAI-backed analyzer.
func NewClient(exec *resilience.Executor, config ClientConfig, logger *slog.Logger) *Client {
	return &Client{
		exec:   exec,
		config: config,
		logger: logger,
	}
}

// Analyze produces structured analysis for one article. Provider
// unavailability and malformed responses degrade to BasicAnalysis; only
// context cancellation and exhausted transient errors surface as errors.
func (c *Client) Analyze(ctx context.Context, raw models.RawArticle) (models.AnalysisResult, error) {
	var result models.AnalysisResult

	err := c.exec.Execute(ctx, AnalysisProviderName, func(ctx context.Context, apiKey string) error {
		callCtx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
		defer cancel()

		resp, err := openai.NewClient(apiKey).CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:       c.config.AnalysisModel,
			Temperature: c.config.Temperature,
			MaxTokens:   c.config.MaxTokens,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: analysisSystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: buildAnalysisPrompt(raw)},
			},
		})
		if err != nil {
			return mapOpenAIError(AnalysisProviderName, err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("no completion choices returned")
		}

		parsed, err := parseAnalysis(resp.Choices[0].Message.Content)
		if err != nil {
			// Malformed provider output is caught here, not retried: degrade
			// to the basic result.
			c.logger.Warn("unparsable analysis response, using basic analysis",
				"url", raw.URL,
				"error", err,
			)
			result = models.BasicAnalysis(raw)
			return nil
		}

		result = parsed
		return nil
	})

	if err != nil {
		if resilience.Unavailable(err) {
			c.logger.Warn("analysis provider unavailable, using basic analysis",
				"url", raw.URL,
				"error", err,
			)
			return models.BasicAnalysis(raw), nil
		}
		return models.AnalysisResult{}, err
	}

	return result, nil
}

// parseAnalysis validates provider output at the parsing boundary.
func parseAnalysis(content string) (models.AnalysisResult, error) {
	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("failed to parse analysis result: %w", err)
	}

	if result.Headline == "" {
		return models.AnalysisResult{}, fmt.Errorf("analysis result missing headline")
	}
	if result.ClusterTopic == "" {
		result.ClusterTopic = models.DeriveTopic(result.Headline)
	}
	if result.Category == "" {
		result.Category = "general"
	}
	if result.TrustScore < 0 || result.TrustScore > 10 {
		return models.AnalysisResult{}, fmt.Errorf("analysis trust score out of range: %d", result.TrustScore)
	}

	return result, nil
}

// Synthesize produces a narrative summary for a cluster's articles.
func (c *Client) Synthesize(ctx context.Context, articles []models.Article) (models.SynthesisResult, error) {
	if len(articles) == 0 {
		return models.SynthesisResult{}, fmt.Errorf("no articles to synthesize")
	}

	var result models.SynthesisResult

	err := c.exec.Execute(ctx, SynthesisProviderName, func(ctx context.Context, apiKey string) error {
		callCtx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
		defer cancel()

		resp, err := openai.NewClient(apiKey).CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:       c.config.AnalysisModel,
			Temperature: c.config.Temperature,
			MaxTokens:   c.config.MaxTokens,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: synthesisSystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: buildSynthesisPrompt(articles)},
			},
		})
		if err != nil {
			return mapOpenAIError(SynthesisProviderName, err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("no completion choices returned")
		}

		var parsed models.SynthesisResult
		if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
			return fmt.Errorf("failed to parse synthesis result: %w", err)
		}
		if err := parsed.Validate(); err != nil {
			return fmt.Errorf("invalid synthesis result: %w", err)
		}

		result = parsed
		return nil
	})
	if err != nil {
		return models.SynthesisResult{}, err
	}

	return result, nil
}

// mapOpenAIError translates provider errors into the resilience taxonomy.
func mapOpenAIError(provider string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
		return &resilience.RateLimitError{Provider: provider}
	}
	if strings.Contains(err.Error(), "status code: 429") {
		return &resilience.RateLimitError{Provider: provider}
	}
	return err
}

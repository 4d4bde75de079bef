package scriptwriter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"briefcast/internal/pipeline/steps"
	"briefcast/internal/resilience/circuitbreaker"
	"briefcast/internal/resilience/classify"
	"briefcast/internal/resilience/retry"
	"briefcast/internal/scoring"
)

// OpenAI pricing per million tokens, used for spend estimation.
const (
	openaiInputPerMTok  = 2.5
	openaiOutputPerMTok = 10.0
)

// LoadOpenAIConfig returns the OpenAI scriptwriter configuration.
func LoadOpenAIConfig() (ScriptConfig, error) {
	config := ScriptConfig{
		WordLimit: loadWordLimit(),
		Language:  "English",
		Model:     openai.GPT4o,
		MaxTokens: 4096,
		Timeout:   120 * time.Second,
	}
	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("invalid OpenAI configuration: %w", err)
	}
	return config, nil
}

// OpenAI generates briefing scripts via OpenAI's chat API, with circuit
// breaker and retry.
type OpenAI struct {
	client         *openai.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	config         ScriptConfig
	now            func() time.Time
}

// NewOpenAI creates an OpenAI scriptwriter with the given API key.
func NewOpenAI(apiKey string, config ScriptConfig) *OpenAI {
	slog.Info("initialized openai scriptwriter",
		slog.Int("word_limit", config.WordLimit),
		slog.String("model", config.Model))

	return &OpenAI{
		client:         openai.NewClient(apiKey),
		circuitBreaker: circuitbreaker.New(circuitbreaker.ScriptModelConfig()),
		retryConfig:    retry.ProviderConfig(),
		config:         config,
		now:            time.Now,
	}
}

// WriteScript generates the briefing script for the selected stories.
func (o *OpenAI) WriteScript(ctx context.Context, items []scoring.ScoredItem) (steps.Script, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	var script steps.Script
	retryErr := retry.WithBackoff(ctx, o.retryConfig, func() error {
		cbResult, err := o.circuitBreaker.Execute(func() (interface{}, error) {
			return o.doGenerate(ctx, items)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("openai api circuit breaker open, request rejected",
					slog.String("state", o.circuitBreaker.State().String()))
				return fmt.Errorf("openai api unavailable: circuit breaker open")
			}
			return err
		}
		script = cbResult.(steps.Script)
		return nil
	})
	if retryErr != nil {
		return steps.Script{}, fmt.Errorf("openai script generation failed after retries: %w", retryErr)
	}
	return script, nil
}

func (o *OpenAI) doGenerate(ctx context.Context, items []scoring.ScoredItem) (steps.Script, error) {
	now := o.now()
	prompt := buildPrompt(o.config, items, now)

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.config.Model,
		MaxTokens: o.config.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	duration := time.Since(start)

	if err != nil {
		// Map the provider's status code so classification can tell auth
		// and quota failures apart.
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
			return steps.Script{}, fmt.Errorf("openai api error: %w",
				&classify.HTTPError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message})
		}
		return steps.Script{}, fmt.Errorf("openai api error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return steps.Script{}, fmt.Errorf("openai api returned no choices")
	}

	body := resp.Choices[0].Message.Content
	cost := float64(resp.Usage.PromptTokens)/1e6*openaiInputPerMTok +
		float64(resp.Usage.CompletionTokens)/1e6*openaiOutputPerMTok

	slog.InfoContext(ctx, "script generation completed",
		slog.Int("words", countWords(body)),
		slog.Float64("cost_dollars", cost),
		slog.Duration("duration", duration))

	return steps.Script{
		Title:       scriptTitle(now),
		Body:        body,
		CostDollars: cost,
	}, nil
}

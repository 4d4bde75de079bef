package scriptwriter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"briefcast/internal/pipeline/steps"
	"briefcast/internal/resilience/circuitbreaker"
	"briefcast/internal/resilience/retry"
	"briefcast/internal/scoring"
)

// Claude pricing per million tokens, used for spend estimation.
const (
	claudeInputPerMTok  = 3.0
	claudeOutputPerMTok = 15.0
)

// LoadClaudeConfig returns the Claude scriptwriter configuration.
func LoadClaudeConfig() ScriptConfig {
	return ScriptConfig{
		WordLimit: loadWordLimit(),
		Language:  "English",
		Model:     string(anthropic.ModelClaudeSonnet4_5_20250929),
		MaxTokens: 4096,
		Timeout:   120 * time.Second,
	}
}

// Claude generates briefing scripts via Anthropic's API, with circuit
// breaker and retry.
type Claude struct {
	client         anthropic.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	config         ScriptConfig
	now            func() time.Time
}

// NewClaude creates a Claude scriptwriter with the given API key.
func NewClaude(apiKey string) *Claude {
	config := LoadClaudeConfig()

	slog.Info("initialized claude scriptwriter",
		slog.Int("word_limit", config.WordLimit),
		slog.String("model", config.Model))

	return &Claude{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		circuitBreaker: circuitbreaker.New(circuitbreaker.ScriptModelConfig()),
		retryConfig:    retry.ProviderConfig(),
		config:         config,
		now:            time.Now,
	}
}

// WriteScript generates the briefing script for the selected stories.
func (c *Claude) WriteScript(ctx context.Context, items []scoring.ScoredItem) (steps.Script, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var script steps.Script
	retryErr := retry.WithBackoff(ctx, c.retryConfig, func() error {
		cbResult, err := c.circuitBreaker.Execute(func() (interface{}, error) {
			return c.doGenerate(ctx, items)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("claude api circuit breaker open, request rejected",
					slog.String("state", c.circuitBreaker.State().String()))
				return fmt.Errorf("claude api unavailable: circuit breaker open")
			}
			return err
		}
		script = cbResult.(steps.Script)
		return nil
	})
	if retryErr != nil {
		return steps.Script{}, fmt.Errorf("claude script generation failed after retries: %w", retryErr)
	}
	return script, nil
}

func (c *Claude) doGenerate(ctx context.Context, items []scoring.ScoredItem) (steps.Script, error) {
	requestID := uuid.New().String()
	now := c.now()
	prompt := buildPrompt(c.config, items, now)

	slog.InfoContext(ctx, "starting script generation",
		slog.String("request_id", requestID),
		slog.Int("stories", len(items)),
		slog.Int("word_limit", c.config.WordLimit))

	start := time.Now()
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.config.Model),
		MaxTokens: int64(c.config.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(prompt),
			),
		},
	})
	duration := time.Since(start)

	if err != nil {
		slog.ErrorContext(ctx, "script generation failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return steps.Script{}, fmt.Errorf("claude api error: %w", err)
	}

	if len(message.Content) == 0 {
		return steps.Script{}, fmt.Errorf("claude api returned empty response")
	}
	textBlock, ok := message.Content[0].AsAny().(anthropic.TextBlock)
	if !ok {
		return steps.Script{}, fmt.Errorf("claude api returned unexpected response type")
	}

	body := textBlock.Text
	cost := float64(message.Usage.InputTokens)/1e6*claudeInputPerMTok +
		float64(message.Usage.OutputTokens)/1e6*claudeOutputPerMTok

	words := countWords(body)
	slog.InfoContext(ctx, "script generation completed",
		slog.String("request_id", requestID),
		slog.Int("words", words),
		slog.Bool("within_limit", words <= c.config.WordLimit),
		slog.Float64("cost_dollars", cost),
		slog.Duration("duration", duration))

	return steps.Script{
		Title:       scriptTitle(now),
		Body:        body,
		CostDollars: cost,
	}, nil
}

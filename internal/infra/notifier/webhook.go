package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"briefcast/internal/domain/entity"
	"briefcast/internal/observability/metrics"
	"briefcast/internal/resilience/retry"
)

// WebhookConfig contains configuration for webhook notifications.
type WebhookConfig struct {
	Enabled    bool
	WebhookURL string
	Timeout    time.Duration
}

// Webhook delivers Block Kit formatted messages to an incoming webhook.
// It announces published episodes and surfaces retry outcomes to the
// operator. Deliveries are rate limited to 1 message per second.
type Webhook struct {
	config      WebhookConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
}

// NewWebhook creates a webhook notifier.
func NewWebhook(config WebhookConfig) *Webhook {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	return &Webhook{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimiter: NewRateLimiter(1.0, 1),
	}
}

// payload is the webhook message body.
type payload struct {
	Text   string  `json:"text"`
	Blocks []block `json:"blocks,omitempty"`
}

type block struct {
	Type     string       `json:"type"`
	Text     *textObject  `json:"text,omitempty"`
	Elements []textObject `json:"elements,omitempty"`
}

type textObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const (
	maxSectionTextLength = 3000
	maxFallbackLength    = 150
	truncationSuffix     = "..."
)

// Broadcast announces a published episode.
func (w *Webhook) Broadcast(ctx context.Context, episode entity.Episode) error {
	if !w.config.Enabled {
		return nil
	}

	sectionText := fmt.Sprintf("*%s*", episode.Title)
	if episode.ArtifactURL != "" {
		sectionText = fmt.Sprintf("*<%s|%s>*", episode.ArtifactURL, episode.Title)
	}
	for _, title := range episode.StoryTitles {
		sectionText += "\n• " + title
	}

	msg := payload{
		Text: truncateText(episode.Title, maxFallbackLength, truncationSuffix),
		Blocks: []block{
			{
				Type: "section",
				Text: &textObject{
					Type: "mrkdwn",
					Text: truncateText(sectionText, maxSectionTextLength, truncationSuffix),
				},
			},
			{
				Type: "context",
				Elements: []textObject{
					{
						Type: "mrkdwn",
						Text: fmt.Sprintf("%s • %s", episode.ProducedAt.Format(time.RFC3339), episode.Duration.Round(time.Second)),
					},
				},
			},
		},
	}

	err := w.deliver(ctx, msg)
	metrics.RecordBroadcast("webhook", err == nil)
	return err
}

// NotifyFailure alerts the operator that a record exhausted its retries.
func (w *Webhook) NotifyFailure(ctx context.Context, record *retry.ErrorRecord, finalCause error) {
	if !w.config.Enabled {
		return
	}
	text := fmt.Sprintf(":rotating_light: *%s* failed permanently after %d attempts (first seen %s)\nseverity: %s\n%s",
		record.Kind, record.RetryCount, record.CreatedAt.UTC().Format(time.RFC3339), record.Severity, record.Message)
	if finalCause != nil {
		text += "\nlast error: " + finalCause.Error()
	}
	w.alert(ctx, text)
}

// NotifyDegraded announces degraded mode for a kind with no registered
// fallback action.
func (w *Webhook) NotifyDegraded(ctx context.Context, record *retry.ErrorRecord) {
	if !w.config.Enabled {
		return
	}
	w.alert(ctx, fmt.Sprintf(":warning: *%s* entered degraded mode after %d attempts\n%s",
		record.Kind, record.RetryCount, record.Message))
}

// NotifyRecovery tells the operator a previously failing record resolved.
func (w *Webhook) NotifyRecovery(ctx context.Context, record *retry.ErrorRecord) {
	if !w.config.Enabled {
		return
	}
	w.alert(ctx, fmt.Sprintf(":white_check_mark: *%s* recovered after %d attempts\n%s",
		record.Kind, record.RetryCount, record.Message))
}

// alert delivers an operator message best-effort: failures are logged,
// never propagated, so alerting cannot take the pipeline down.
func (w *Webhook) alert(ctx context.Context, text string) {
	msg := payload{
		Text: truncateText(text, maxSectionTextLength, truncationSuffix),
		Blocks: []block{
			{
				Type: "section",
				Text: &textObject{
					Type: "mrkdwn",
					Text: truncateText(text, maxSectionTextLength, truncationSuffix),
				},
			},
		},
	}
	if err := w.deliver(ctx, msg); err != nil {
		slog.Error("operator alert delivery failed", slog.Any("error", err))
	}
}

// deliver sends one message with rate limiting and retry. 429 responses
// honor Retry-After; 5xx and network errors back off linearly; other 4xx
// fail immediately.
func (w *Webhook) deliver(ctx context.Context, msg payload) error {
	requestID := uuid.New().String()
	ctx = context.WithValue(ctx, requestIDKey, requestID)

	if err := w.rateLimiter.Allow(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	const (
		maxAttempts = 2
		baseDelay   = 5 * time.Second
	)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := w.send(ctx, msg)
		if err == nil {
			slog.Info("webhook delivery successful",
				slog.String("request_id", requestID),
				slog.Int("attempt", attempt))
			return nil
		}
		lastErr = err

		if rateLimitErr, ok := is429Error(err); ok {
			slog.Warn("webhook rate limit hit, backing off",
				slog.String("request_id", requestID),
				slog.Duration("retry_after", rateLimitErr.RetryAfter),
				slog.Int("attempt", attempt))
			select {
			case <-time.After(rateLimitErr.RetryAfter):
				continue
			case <-ctx.Done():
				return fmt.Errorf("context canceled during rate limit backoff: %w", ctx.Err())
			}
		}

		if !isRetryableError(err) {
			slog.Error("webhook delivery failed with non-retryable error",
				slog.String("request_id", requestID),
				slog.Any("error", err),
				slog.Int("attempt", attempt))
			return err
		}

		if attempt < maxAttempts {
			delay := baseDelay * time.Duration(attempt)
			slog.Warn("webhook delivery failed, retrying",
				slog.String("request_id", requestID),
				slog.Any("error", err),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("context canceled during retry backoff: %w", ctx.Err())
			}
		}
	}

	return fmt.Errorf("webhook delivery failed after %d attempts: %w", maxAttempts, lastErr)
}

func (w *Webhook) send(ctx context.Context, msg payload) error {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			Message:    "webhook rate limit exceeded",
			RetryAfter: extractRetryAfter(resp),
		}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &ClientError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("webhook client error: %s", string(body)),
		}
	case resp.StatusCode >= 500:
		return &ServerError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("webhook server error: %s", string(body)),
		}
	default:
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}
}

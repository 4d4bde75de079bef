// Package synthesizer converts briefing scripts into audio using
// OpenAI's text-to-speech API.
package synthesizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"briefcast/internal/pipeline/steps"
	"briefcast/internal/resilience/circuitbreaker"
	"briefcast/internal/resilience/classify"
	"briefcast/internal/resilience/retry"
)

const (
	// maxChunkChars stays under the TTS per-request input limit.
	maxChunkChars = 4000

	// ttsPerMChars is the provider price per million input characters.
	ttsPerMChars = 15.0

	// speechWordsPerMinute estimates audio duration from word count.
	speechWordsPerMinute = 150
)

// OpenAITTS synthesizes audio via OpenAI's speech endpoint, with circuit
// breaker and retry. Long scripts are split into chunks and the audio
// segments concatenated.
type OpenAITTS struct {
	client         *openai.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	voice          openai.SpeechVoice
	timeout        time.Duration
}

// NewOpenAITTS creates a synthesizer with the given API key.
func NewOpenAITTS(apiKey string) *OpenAITTS {
	return &OpenAITTS{
		client:         openai.NewClient(apiKey),
		circuitBreaker: circuitbreaker.New(circuitbreaker.SpeechConfig()),
		retryConfig:    retry.ProviderConfig(),
		voice:          openai.VoiceAlloy,
		timeout:        5 * time.Minute,
	}
}

// Synthesize converts the script into MP3 audio.
func (s *OpenAITTS) Synthesize(ctx context.Context, script steps.Script) (steps.Audio, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	chunks := splitScript(script.Body, maxChunkChars)
	if len(chunks) == 0 {
		return steps.Audio{}, fmt.Errorf("empty script")
	}

	var buf bytes.Buffer
	for i, chunk := range chunks {
		data, err := s.synthesizeChunk(ctx, chunk)
		if err != nil {
			return steps.Audio{}, fmt.Errorf("synthesize chunk %d/%d: %w", i+1, len(chunks), err)
		}
		buf.Write(data)
	}

	words := len(strings.Fields(script.Body))
	audio := steps.Audio{
		Data:        buf.Bytes(),
		Format:      "mp3",
		Duration:    time.Duration(float64(words) / speechWordsPerMinute * float64(time.Minute)),
		CostDollars: float64(len(script.Body)) / 1e6 * ttsPerMChars,
	}

	slog.Info("speech synthesis completed",
		slog.Int("chunks", len(chunks)),
		slog.Int("bytes", len(audio.Data)),
		slog.Duration("estimated_duration", audio.Duration))
	return audio, nil
}

func (s *OpenAITTS) synthesizeChunk(ctx context.Context, text string) ([]byte, error) {
	var data []byte
	retryErr := retry.WithBackoff(ctx, s.retryConfig, func() error {
		cbResult, err := s.circuitBreaker.Execute(func() (interface{}, error) {
			return s.doSynthesize(ctx, text)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("speech api circuit breaker open, request rejected",
					slog.String("state", s.circuitBreaker.State().String()))
				return fmt.Errorf("speech api unavailable: circuit breaker open")
			}
			return err
		}
		data = cbResult.([]byte)
		return nil
	})
	if retryErr != nil {
		return nil, retryErr
	}
	return data, nil
}

func (s *OpenAITTS) doSynthesize(ctx context.Context, text string) (interface{}, error) {
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
			return nil, fmt.Errorf("speech api error: %w",
				&classify.HTTPError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message})
		}
		return nil, fmt.Errorf("speech api error: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read speech response: %w", err)
	}
	return data, nil
}

// splitScript breaks the script into chunks at sentence boundaries, each
// at most limit characters.
func splitScript(body string, limit int) []string {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil
	}
	if len(body) <= limit {
		return []string{body}
	}

	var chunks []string
	var current strings.Builder
	for _, sentence := range splitSentences(body) {
		if current.Len() > 0 && current.Len()+len(sentence)+1 > limit {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
		// A single oversized sentence is split hard.
		for len(sentence) > limit {
			chunks = append(chunks, sentence[:limit])
			sentence = sentence[limit:]
		}
		current.WriteString(sentence)
		current.WriteByte(' ')
	}
	if strings.TrimSpace(current.String()) != "" {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}
	return chunks
}

// splitSentences splits on sentence-ending punctuation, keeping the
// punctuation with the sentence.
func splitSentences(s string) []string {
	var sentences []string
	start := 0
	for i, r := range s {
		if r == '.' || r == '!' || r == '?' {
			sentences = append(sentences, strings.TrimSpace(s[start:i+1]))
			start = i + 1
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

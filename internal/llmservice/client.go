package llmservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"outreach-mailer/internal/config"
	"outreach-mailer/internal/models"
)

// NewModel builds the langchaingo backend named by llmConfig.Provider.
func NewModel(llmConfig *config.LLMConfig) (llms.Model, error) {
	log.Debug().Interface("llmConfig", llmConfig).Msg("Creating model")
	switch llmConfig.Provider {
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(llmConfig.Model)}
		if llmConfig.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(llmConfig.BaseURL))
		}
		return ollama.New(opts...)
	case "openai", "":
		key := strings.TrimPrefix(llmConfig.Key, "Bearer ")
		if key == "" {
			return nil, models.NewInputError("no API key configured for provider %s", llmConfig.Provider)
		}
		opts := []openai.Option{openai.WithToken(key), openai.WithModel(llmConfig.Model)}
		if llmConfig.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
		}
		return openai.New(opts...)
	default:
		return nil, models.NewInputError("unsupported llm provider %q", llmConfig.Provider)
	}
}

// Client sends prompts to a model with a per-call timeout and bounded
// retries on transient failures. Safe for concurrent use.
type Client struct {
	llm         llms.Model
	provider    string
	model       string
	secret      string
	timeout     time.Duration
	maxRetries  uint64
	backoffBase time.Duration
	backoffMax  time.Duration
	calls       atomic.Int64
}

func NewClient(llm llms.Model, llmConfig *config.LLMConfig) *Client {
	return &Client{
		llm:         llm,
		provider:    llmConfig.Provider,
		model:       llmConfig.Model,
		secret:      strings.TrimPrefix(llmConfig.Key, "Bearer "),
		timeout:     llmConfig.Timeout,
		maxRetries:  llmConfig.MaxRetries,
		backoffBase: llmConfig.BackoffBase,
		backoffMax:  llmConfig.BackoffMax,
	}
}

// Calls returns the number of upstream attempts made so far.
func (c *Client) Calls() int64 {
	return c.calls.Load()
}

// Complete sends one prompt and returns the model's text.
func (c *Client) Complete(ctx context.Context, prompt string, temperature float64) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", models.NewInputError("prompt is empty")
	}

	base := c.backoffBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	backoff := retry.NewExponential(base)
	if c.backoffMax > 0 {
		backoff = retry.WithCappedDuration(c.backoffMax, backoff)
	}
	backoff = retry.WithMaxRetries(c.maxRetries, retry.WithJitterPercent(10, backoff))

	opts := []llms.CallOption{llms.WithTemperature(temperature)}
	if c.model != "" {
		opts = append(opts, llms.WithModel(c.model))
	}

	var (
		output   string
		attempts int
		lastErr  *UpstreamError
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		c.calls.Add(1)

		callCtx := ctx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}

		start := time.Now()
		out, err := llms.GenerateFromSinglePrompt(callCtx, c.llm, prompt, opts...)
		if err == nil {
			log.Debug().Int("attempt", attempts).Dur("latency", time.Since(start)).Int("prompt_chars", len(prompt)).Msg("Completion succeeded")
			output = out
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		upErr := classify(c.provider, err, c.secret)
		upErr.Attempts = attempts
		lastErr = upErr
		log.Warn().
			Str("kind", string(upErr.Kind)).
			Int("status", upErr.StatusCode).
			Int("attempt", attempts).
			Bool("retryable", upErr.Retryable()).
			Msg("Completion failed")
		if upErr.Retryable() {
			return retry.RetryableError(upErr)
		}
		return upErr
	})
	if err == nil {
		return output, nil
	}

	if ctx.Err() != nil {
		return "", fmt.Errorf("%w: %v", models.ErrCancelled, ctx.Err())
	}
	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		return "", upErr
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", classify(c.provider, err, c.secret)
}

// Package llm implements query planning, Cypher generation and answer
// synthesis on top of langchaingo chat models.
package llm

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"

	"github.com/TFMV/cypherplan/pkg/errors"
)

// Client sends system+user prompts to a chat model. Calls are rate limited
// and bounded by a per-call timeout.
type Client struct {
	model   llms.Model
	limiter *rate.Limiter
	timeout time.Duration
	logger  zerolog.Logger
}

// ClientOptions tunes a Client. Zero values disable the limiter and the timeout.
type ClientOptions struct {
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

// NewClient wraps model.
func NewClient(model llms.Model, opts ClientOptions, logger zerolog.Logger) *Client {
	c := &Client{
		model:   model,
		timeout: opts.Timeout,
		logger:  logger.With().Str("component", "llm").Logger(),
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c
}

// Complete returns the first choice's text, trimmed.
func (c *Client) Complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", errors.Wrap(err, errors.CodeResourceExhausted, "rate limiter wait failed")
		}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	messages := []llms.MessageContent{
		{Role: llms.ChatMessageTypeSystem, Parts: []llms.ContentPart{llms.TextPart(system)}},
		{Role: llms.ChatMessageTypeHuman, Parts: []llms.ContentPart{llms.TextPart(user)}},
	}

	start := time.Now()
	resp, err := c.model.GenerateContent(ctx, messages,
		llms.WithTemperature(temperature),
		llms.WithMaxTokens(maxTokens),
	)
	if err != nil {
		c.logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Model call failed")
		if ce := errors.FromContext(err); ce != nil {
			return "", ce
		}
		return "", errors.Wrap(err, errors.CodeUnavailable, "model call failed")
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", errors.New(errors.CodeUnavailable, "model returned no choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Content)
	c.logger.Debug().
		Dur("elapsed", time.Since(start)).
		Int("chars", len(text)).
		Msg("Model call completed")
	return text, nil
}

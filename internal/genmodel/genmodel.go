// Package genmodel calls the generative model API with use-case based model
// selection and retry with exponential backoff.
package genmodel

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// UseCase selects which configured model serves a request.
type UseCase string

const (
	UseCaseRAG        UseCase = "rag"
	UseCaseSimple     UseCase = "simple"
	UseCaseComplex    UseCase = "complex"
	UseCaseAttributed UseCase = "attributed"
)

// ErrNonRetryable wraps API errors that retrying cannot fix.
var ErrNonRetryable = errors.New("non-retryable model error")

// modelClient is the raw API surface the gateway retries over.
type modelClient interface {
	generate(ctx context.Context, model, prompt string) (string, error)
	countTokens(ctx context.Context, model, text string) (int, error)
}

// Gateway routes generation requests to the configured model per use case
// and retries transient failures with exponential backoff.
type Gateway struct {
	client     modelClient
	models     map[string]string
	maxRetries int
	baseDelay  time.Duration
	timeout    time.Duration
	logger     *zap.Logger

	// sleep is swapped in tests to avoid real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// Options configures a Gateway.
type Options struct {
	Models     map[string]string
	MaxRetries int
	BaseDelay  time.Duration
	Timeout    time.Duration
}

func newGateway(client modelClient, opts Options, logger *zap.Logger) *Gateway {
	return &Gateway{
		client:     client,
		models:     opts.Models,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		timeout:    opts.Timeout,
		logger:     logger,
		sleep:      sleepCtx,
	}
}

// ModelFor returns the model name serving a use case. Unknown use cases fall
// back to the RAG model.
func (g *Gateway) ModelFor(useCase UseCase) string {
	if m, ok := g.models[string(useCase)]; ok && m != "" {
		return m
	}
	return g.models[string(UseCaseRAG)]
}

// Generate produces a completion for prompt using the model mapped to
// useCase. Transient failures are retried up to maxRetries times; rate limit
// errors honor the server's retry hint when one is present.
func (g *Gateway) Generate(ctx context.Context, useCase UseCase, prompt string) (string, error) {
	model := g.ModelFor(useCase)

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		text, err := g.attempt(ctx, model, prompt)
		if err == nil {
			if attempt > 0 {
				g.logger.Info("generation succeeded after retry",
					zap.String("model", model), zap.Int("attempt", attempt+1))
			}
			return text, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		delay, retryable := g.classify(err, attempt)
		if !retryable {
			return "", fmt.Errorf("%w: %v", ErrNonRetryable, err)
		}
		if attempt == g.maxRetries {
			break
		}
		g.logger.Warn("generation failed, retrying",
			zap.String("model", model),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		if err := g.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("generate after %d attempts: %w", g.maxRetries+1, lastErr)
}

// CountTokens returns the model token count of text, using the RAG model's
// tokenizer.
func (g *Gateway) CountTokens(ctx context.Context, text string) (int, error) {
	return g.client.countTokens(ctx, g.ModelFor(UseCaseRAG), text)
}

func (g *Gateway) attempt(ctx context.Context, model, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	return g.client.generate(ctx, model, prompt)
}

// retryHintPattern extracts the server-suggested delay from rate limit
// messages such as "quota exceeded, retry in 7s".
var retryHintPattern = regexp.MustCompile(`retry in (\d+(?:\.\d+)?)s`)

// classify decides whether err is worth retrying and with what delay.
func (g *Gateway) classify(err error, attempt int) (time.Duration, bool) {
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "api key"),
		strings.Contains(msg, "permission"),
		strings.Contains(msg, "not found"),
		strings.Contains(msg, "invalid"):
		return 0, false

	case strings.Contains(msg, "quota"), strings.Contains(msg, "rate limit"):
		if m := retryHintPattern.FindStringSubmatch(msg); m != nil {
			if secs, perr := strconv.ParseFloat(m[1], 64); perr == nil {
				return time.Duration(secs * float64(time.Second)), true
			}
		}
		return 2 * g.baseDelay, true

	default:
		return g.baseDelay * (1 << attempt), true
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

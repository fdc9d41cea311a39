// Package suggest generates short reply suggestions for a conversation turn
// using a text-generation provider, with tiered retries and a guaranteed
// non-empty fallback.
package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"ai-conversation-assist-service/internal/models"
	"ai-conversation-assist-service/internal/observability/metrics"
)

const tracerName = "ai-conversation-assist-service/suggest"

// Config configures a Client.
type Config struct {
	Retry         RetryPolicy
	Prompt        PromptConfig
	Timeout       time.Duration // per attempt
	RatePerSecond float64       // zero disables client-side limiting
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Retry:         DefaultRetryPolicy(),
		Prompt:        DefaultPromptConfig(),
		Timeout:       20 * time.Second,
		RatePerSecond: 2,
	}
}

// Option customizes a Client.
type Option func(*Client)

// WithRetryNotify registers a hook called before each retry wait.
func WithRetryNotify(fn func(kind models.ErrorKind, delay time.Duration)) Option {
	return func(c *Client) { c.onRetry = fn }
}

// WithClock overrides the time source used for suggestion timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client is safe for concurrent use. At most one Generate call talks to a
// provider at a time; concurrent callers wait for the slot.
type Client struct {
	cfg     Config
	router  Router
	slot    *semaphore.Weighted
	limiter *rate.Limiter
	tracer  trace.Tracer
	logger  zerolog.Logger
	metrics *metrics.Metrics
	onRetry func(models.ErrorKind, time.Duration)
	now     func() time.Time
}

// NewClient returns a client that resolves providers through router.
func NewClient(cfg Config, router Router, logger zerolog.Logger, opts ...Option) *Client {
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = DefaultRetryPolicy().MaxAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	c := &Client{
		cfg:     cfg,
		router:  router,
		slot:    semaphore.NewWeighted(1),
		limiter: rate.NewLimiter(limit, 1),
		tracer:  otel.Tracer(tracerName),
		logger:  logger.With().Str("component", "suggest").Logger(),
		metrics: metrics.DefaultMetrics,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate returns a suggestion for req. The suggestion text is never empty.
// An error is returned only for authentication and other permanent failures,
// after retries are exhausted, or when ctx is done.
func (c *Client) Generate(ctx context.Context, req models.SuggestionRequest) (models.Suggestion, error) {
	route := c.router.Resolve(req.ModelSelector)
	if route.Provider == nil {
		return models.Suggestion{}, &Error{Kind: models.ErrorBadRequest, Message: "no provider configured for " + req.ModelSelector}
	}

	if err := c.slot.Acquire(ctx, 1); err != nil {
		return models.Suggestion{}, fmt.Errorf("wait for suggestion slot: %w", err)
	}
	defer c.slot.Release(1)

	ctx, span := c.tracer.Start(ctx, "suggest.Generate", trace.WithAttributes(
		attribute.String("suggest.provider", route.Provider.Name()),
		attribute.String("suggest.model", route.Model),
		attribute.Int("suggest.history_lines", len(req.Snapshot)),
	))
	defer span.End()

	completion := BuildRequest(req, route.Model, c.cfg.Prompt)
	lastKind := models.ErrorTransient
	attempts := 0

	operation := func() (json.RawMessage, error) {
		attempts++
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		start := time.Now()
		raw, err := route.Provider.Complete(attemptCtx, completion)
		latency := time.Since(start).Seconds()
		if err == nil {
			c.metrics.RecordBackendAttempt(route.Provider.Name(), "success", latency)
			return raw, nil
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}

		serr := Classify(err)
		lastKind = serr.Kind
		c.metrics.RecordBackendAttempt(route.Provider.Name(), string(serr.Kind), latency)
		span.AddEvent("attempt failed", trace.WithAttributes(
			attribute.Int("attempt", attempts),
			attribute.String("kind", string(serr.Kind)),
			attribute.Int("status", serr.StatusCode),
		))
		if !serr.Kind.Retryable() {
			return nil, backoff.Permanent(serr)
		}
		return nil, serr
	}

	raw, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(&tieredBackOff{policy: c.cfg.Retry, last: &lastKind}),
		backoff.WithMaxTries(uint(c.cfg.Retry.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, delay time.Duration) {
			c.logger.Warn().
				Err(err).
				Str("provider", route.Provider.Name()).
				Int("attempt", attempts).
				Dur("retryIn", delay).
				Msg("Suggestion attempt failed, retrying")
			if c.onRetry != nil {
				c.onRetry(lastKind, delay)
			}
		}),
	)
	span.SetAttributes(attribute.Int("suggest.attempts", attempts))
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return models.Suggestion{}, fmt.Errorf("generate suggestion after %d attempt(s): %w", attempts, err)
	}

	text, cites := Extract(raw)
	fallback := text == ""
	if fallback {
		text = Fallback(req.Text)
		c.metrics.RecordFallback()
		c.logger.Warn().
			Str("provider", route.Provider.Name()).
			Int("responseBytes", len(raw)).
			Msg("Empty suggestion from provider, using fallback")
	}
	span.SetAttributes(attribute.Bool("suggest.fallback", fallback))

	return models.Suggestion{
		Text:      text,
		Citations: cites,
		Key:       req.Key,
		LineID:    req.LineID,
		Model:     route.Model,
		Fallback:  fallback,
		Attempts:  attempts,
		CreatedAt: c.now(),
	}, nil
}

package skill

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/parley-dev/parley/telemetry"
)

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	// Client is the model client every skill invocation goes through.
	// Required.
	Client Client
	// MaxValidationRetries bounds retries triggered by Skill.Validate
	// returning OutcomeRetry. Model errors are never retried by the
	// Runner; they propagate immediately, per the specification's "bounded
	// retry policy on validation failure only (not on model errors, which
	// propagate)".
	MaxValidationRetries int
	// Timeout bounds a single skill invocation, including all validation
	// retries. Defaults to 60s per the specification's default per-skill
	// timeout.
	Timeout time.Duration
	// RateLimiter throttles calls to Client.Complete, guarding against the
	// Offer fan-out or Center loop bursting a provider's rate limit. Nil
	// disables limiting.
	RateLimiter *rate.Limiter
	Logger      telemetry.Logger
	Metrics     telemetry.Metrics
	Tracer      telemetry.Tracer
}

// Runner executes a Skill against a model Client with bounded validation
// retry, an overall timeout, and optional rate limiting. One Runner can be
// shared by any number of concurrent skill invocations (Offer fan-out in
// particular).
type Runner struct {
	client      Client
	maxRetries  int
	timeout     time.Duration
	rateLimiter *rate.Limiter
	logger      telemetry.Logger
	metrics     telemetry.Metrics
	tracer      telemetry.Tracer
}

// NewRunner constructs a Runner. Client is required; all other fields
// default (2 validation retries, 60s timeout, no rate limit, Noop
// telemetry).
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("skill: client is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxRetries := opts.MaxValidationRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &Runner{
		client:      opts.Client,
		maxRetries:  maxRetries,
		timeout:     timeout,
		rateLimiter: opts.RateLimiter,
		logger:      logger,
		metrics:     metrics,
		tracer:      tracer,
	}, nil
}

// validationFailure is a sentinel error wrapping an OutcomeRetry decision so
// backoff.Retry can distinguish "try again" from a hard model error, which
// must propagate immediately rather than be retried.
type validationFailure struct {
	cause error
}

func (e *validationFailure) Error() string { return fmt.Sprintf("skill: validation failed: %v", e.cause) }
func (e *validationFailure) Unwrap() error { return e.cause }

// Run executes s against skillCtx: render the request, call the model
// (respecting the rate limiter if configured), parse the response, then
// validate the parsed output. OutcomeRetry re-renders and re-invokes up to
// MaxValidationRetries times with exponential backoff; OutcomeReject and
// any render/parse/model error return immediately.
func Run[Ctx any, Out any](ctx context.Context, r *Runner, s Skill[Ctx, Out], skillCtx Ctx) (Out, telemetry.SkillTelemetry, error) {
	var zero Out
	start := time.Now()

	ctx, span := r.tracer.Start(ctx, "skill."+s.Name())
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		out     Out
		usage   TokenUsage
		retries int
	)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0 // bounded by MaxValidationRetries instead of elapsed time
	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.maxRetries)), ctx)

	operation := func() error {
		req, err := s.Render(ctx, skillCtx)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("skill: render: %w", err))
		}

		if r.rateLimiter != nil {
			if err := r.rateLimiter.Wait(ctx); err != nil {
				return backoff.Permanent(fmt.Errorf("skill: rate limiter: %w", err))
			}
		}

		resp, err := r.client.Complete(ctx, req)
		if err != nil {
			// Model errors propagate immediately; they are never retried by
			// the Runner.
			return backoff.Permanent(fmt.Errorf("skill: model call: %w", err))
		}
		usage = resp.Usage

		parsed, err := s.Parse(ctx, resp)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("skill: parse: %w", err))
		}

		switch s.Validate(ctx, skillCtx, parsed) {
		case OutcomeOK:
			out = parsed
			return nil
		case OutcomeReject:
			return backoff.Permanent(fmt.Errorf("skill: output rejected by validator"))
		case OutcomeRetry:
			retries++
			r.logger.Warn(ctx, "skill validation retry", "skill", s.Name(), "attempt", retries)
			return &validationFailure{cause: fmt.Errorf("validation requested retry")}
		default:
			return backoff.Permanent(fmt.Errorf("skill: unknown validation outcome"))
		}
	}

	err := backoff.Retry(operation, bo)

	telem := telemetry.SkillTelemetry{
		DurationMs: time.Since(start).Milliseconds(),
		TokensUsed: usage.TotalTokens,
		Retries:    retries,
	}
	r.metrics.RecordTimer("skill_duration_seconds", time.Since(start), "skill", s.Name())

	if err != nil {
		r.metrics.IncCounter("skill_failures_total", 1, "skill", s.Name())
		span.RecordError(err)
		return zero, telem, fmt.Errorf("skill %q: %w", s.Name(), err)
	}
	return out, telem, nil
}

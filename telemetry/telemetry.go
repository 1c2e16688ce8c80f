// Package telemetry defines the logging, metrics, and tracing interfaces used
// throughout the negotiation runtime. The interfaces are intentionally narrow
// so tests can substitute lightweight stubs and production deployments can
// wire in OpenTelemetry-backed implementations without touching call sites.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured logging used by the engine and the skill
// runner. Implementations typically delegate
// to Clue but the interface stays small so tests can stub it out.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter and histogram helpers for runtime instrumentation.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so engine code stays agnostic of the
// underlying OpenTelemetry provider.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight tracing span.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}

// SkillTelemetry captures observability metadata collected during a single
// skill invocation (Formulation, Offer, or Center). The Extra map holds
// skill-specific data (model id, retry count, etc.) that doesn't warrant a
// dedicated field.
type SkillTelemetry struct {
	// DurationMs is the wall-clock execution time in milliseconds.
	DurationMs int64
	// TokensUsed tracks the total tokens consumed by the underlying LLM call.
	TokensUsed int
	// Model identifies which model served the invocation (e.g., "claude-opus-4").
	Model string
	// Retries counts validation-triggered retries consumed by the skill runner.
	Retries int
	// Extra holds skill-specific metadata not captured by the fields above.
	Extra map[string]any
}

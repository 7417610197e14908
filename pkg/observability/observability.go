// Package observability instruments the decision pipeline with OpenTelemetry
// counters, an evaluation-duration histogram, and a span per evaluation.
// Only the otel API is used; without an SDK installed by the host process
// every instrument is a no-op.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scope = "github.com/Mindburn-Labs/cord"

// Instruments holds the engine's telemetry handles.
type Instruments struct {
	tracer    trace.Tracer
	decisions metric.Int64Counter
	duration  metric.Float64Histogram
}

// New builds instruments from the global otel providers.
func New() *Instruments {
	meter := otel.Meter(scope)

	decisions, err := meter.Int64Counter("cord.decisions",
		metric.WithDescription("Evaluation verdicts by decision"))
	if err != nil {
		decisions = nil
	}
	duration, err := meter.Float64Histogram("cord.evaluation.duration",
		metric.WithDescription("Pipeline evaluation duration"),
		metric.WithUnit("s"))
	if err != nil {
		duration = nil
	}

	return &Instruments{
		tracer:    otel.Tracer(scope),
		decisions: decisions,
		duration:  duration,
	}
}

// StartEvaluation opens the evaluation span.
func (in *Instruments) StartEvaluation(ctx context.Context) (context.Context, trace.Span) {
	return in.tracer.Start(ctx, "cord.evaluate")
}

// RecordDecision counts a verdict and records its evaluation duration.
func (in *Instruments) RecordDecision(ctx context.Context, decision string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("decision", decision))
	if in.decisions != nil {
		in.decisions.Add(ctx, 1, attrs)
	}
	if in.duration != nil {
		in.duration.Record(ctx, seconds, attrs)
	}
}

package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// VerificationMetrics records signature and token verification outcomes as OpenTelemetry
// instruments. The zero value is unusable; build it with NewVerificationMetrics.
type VerificationMetrics struct {
	outcomes metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewVerificationMetrics registers the instruments on the global meter provider.
func NewVerificationMetrics() (*VerificationMetrics, error) {
	meter := otel.Meter("github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/auth")
	outcomes, err := meter.Int64Counter("auth.verification.count",
		metric.WithDescription("Verification attempts by kind and outcome"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("auth.verification.duration",
		metric.WithDescription("Verification latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	return &VerificationMetrics{outcomes: outcomes, latency: latency}, nil
}

// RecordVerification implements auth.MetricsRecorder.
func (m *VerificationMetrics) RecordVerification(ctx context.Context, kind string, success bool, reason string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("success", success),
		attribute.String("reason", reason),
	)
	m.outcomes.Add(ctx, 1, attrs)
	m.latency.Record(ctx, float64(duration)/float64(time.Millisecond), attrs)
}

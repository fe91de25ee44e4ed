package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics are the counters recorded by signing, verification and policy
// evaluation. A nil *Metrics records nothing.
type Metrics struct {
	signatures    metric.Int64Counter
	verifications metric.Int64Counter
	policyEvals   metric.Int64Counter
	violations    metric.Int64Counter
	duration      metric.Float64Histogram
}

// NewMetrics registers the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	m.signatures, err = meter.Int64Counter("omt.signatures.total",
		metric.WithDescription("Claims signed, by algorithm and outcome"),
		metric.WithUnit("{signature}"),
	)
	if err != nil {
		return nil, err
	}
	m.verifications, err = meter.Int64Counter("omt.verifications.total",
		metric.WithDescription("Trust evaluations, by trust level and validity"),
		metric.WithUnit("{verification}"),
	)
	if err != nil {
		return nil, err
	}
	m.policyEvals, err = meter.Int64Counter("omt.policy.evaluations.total",
		metric.WithDescription("Policy evaluations, by policy and outcome"),
		metric.WithUnit("{evaluation}"),
	)
	if err != nil {
		return nil, err
	}
	m.violations, err = meter.Int64Counter("omt.policy.violations.total",
		metric.WithDescription("Policy violations, by policy and severity"),
		metric.WithUnit("{violation}"),
	)
	if err != nil {
		return nil, err
	}
	m.duration, err = meter.Float64Histogram("omt.operation.duration",
		metric.WithDescription("Operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0),
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordSignature counts a signing attempt.
func (m *Metrics) RecordSignature(ctx context.Context, algorithm string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("algorithm", algorithm),
		attribute.String("outcome", outcome(err)),
	)
	m.signatures.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("operation", "sign")))
}

// RecordVerification counts a trust evaluation.
func (m *Metrics) RecordVerification(ctx context.Context, trustLevel string, valid bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.verifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("trust_level", trustLevel),
		attribute.Bool("valid", valid),
	))
	m.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("operation", "verify")))
}

// RecordPolicyEvaluation counts a policy run and its violations by severity.
func (m *Metrics) RecordPolicyEvaluation(ctx context.Context, policy string, passed bool, bySeverity map[string]int) {
	if m == nil {
		return
	}
	m.policyEvals.Add(ctx, 1, metric.WithAttributes(
		attribute.String("policy", policy),
		attribute.Bool("passed", passed),
	))
	for sev, n := range bySeverity {
		if n == 0 {
			continue
		}
		m.violations.Add(ctx, int64(n), metric.WithAttributes(
			attribute.String("policy", policy),
			attribute.String("severity", sev),
		))
	}
}

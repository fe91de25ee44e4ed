package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.Equal(t, "openmediatrust", config.ServiceName)
	require.Equal(t, 1.0, config.SampleRate)
	require.False(t, config.Enabled)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p.Tracer())
	require.NotNil(t, p.Metrics())
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNilProviderAndMetricsAreSafe(t *testing.T) {
	var p *Provider
	require.NotNil(t, p.Tracer())
	require.Nil(t, p.Metrics())

	var m *Metrics
	m.RecordSignature(context.Background(), "ps256", nil, time.Millisecond)
	m.RecordVerification(context.Background(), "BASIC", true, time.Millisecond)
	m.RecordPolicyEvaluation(context.Background(), "p", true, nil)
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if sum, ok := md.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					out[md.Name] += dp.Value
				}
			}
		}
	}
	return out
}

func TestMetricsRecord(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordSignature(ctx, "ps256", nil, time.Millisecond)
	m.RecordSignature(ctx, "ps256", errors.New("boom"), time.Millisecond)
	m.RecordVerification(ctx, "ENTERPRISE", true, time.Millisecond)
	m.RecordPolicyEvaluation(ctx, "legal_documents", false, map[string]int{"error": 2, "warning": 1, "info": 0})

	got := collect(t, reader)
	assert.Equal(t, int64(2), got["omt.signatures.total"])
	assert.Equal(t, int64(1), got["omt.verifications.total"])
	assert.Equal(t, int64(1), got["omt.policy.evaluations.total"])
	assert.Equal(t, int64(3), got["omt.policy.violations.total"])
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger("debug", "json", &buf)
	require.NoError(t, err)
	l.Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	_, err = NewLogger("loud", "text", &buf)
	require.Error(t, err)
	_, err = NewLogger("info", "xml", &buf)
	require.Error(t, err)

	lvl, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, "WARN", lvl.String())
}

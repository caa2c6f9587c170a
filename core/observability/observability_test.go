package observability

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

func TestResolveConfigDefaults(t *testing.T) {
	for _, key := range []string{EnvOTelEnabled, EnvOTelTraces, EnvOTelMetrics, EnvOTelServiceName, EnvOTelEnvironment, EnvOTelEndpoint, EnvOTelSamplingRatio} {
		t.Setenv(key, "")
	}

	cfg := ResolveConfig("1.2.3")
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "hypercluster", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, 1.0, cfg.TraceSamplingRate)
}

func TestResolveConfigFromEnv(t *testing.T) {
	t.Setenv(EnvOTelEnabled, "true")
	t.Setenv(EnvOTelMetrics, "false")
	t.Setenv(EnvOTelServiceName, "catalog")
	t.Setenv(EnvOTelEndpoint, "collector:4317")
	t.Setenv(EnvOTelSamplingRatio, "7")

	cfg := ResolveConfig("")
	assert.True(t, cfg.Enabled)
	assert.True(t, cfg.TracesEnabled)
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, "catalog", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, "collector:4317", cfg.OTLPEndpoint)
	assert.Equal(t, 1.0, cfg.TraceSamplingRate, "ratio is clamped")
}

func TestSetupWithExportDisabled(t *testing.T) {
	t.Setenv(EnvOTelEnabled, "false")

	providers, err := Setup(context.Background(), "test", Identity{Role: "worker", Slot: 2})
	require.NoError(t, err)
	assert.False(t, providers.Config().Enabled)

	assert.NotPanics(t, func() {
		RecordWorkerExit(context.Background(), 0, "SIGKILL")
		RecordRealtimeEvent(context.Background(), RealtimeSourceClient)
	})
	require.NoError(t, providers.Shutdown(context.Background()))
}

func TestResourceIdentifiesWorker(t *testing.T) {
	cfg := ResolveConfig("1.0.0")

	res, err := buildResource(context.Background(), cfg, Identity{Role: "worker", Slot: 3})
	require.NoError(t, err)

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range res.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "worker", attrs[AttrProcessRole].AsString())
	assert.Equal(t, int64(3), attrs[AttrWorkerSlot].AsInt64())
	assert.Equal(t, int64(os.Getpid()), attrs[semconv.ProcessPIDKey].AsInt64())
	assert.Equal(t, "hypercluster", attrs[semconv.ServiceNameKey].AsString())
}

func TestResourceOmitsSlotOutsideThePool(t *testing.T) {
	res, err := buildResource(context.Background(), ResolveConfig(""), Identity{Role: "primary", Slot: -1})
	require.NoError(t, err)

	for _, kv := range res.Attributes() {
		assert.NotEqual(t, attribute.Key(AttrWorkerSlot), kv.Key)
	}
}

func TestEndSpanRecordsFailure(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := StartSpan(context.Background(), "supervisor.respawn", attribute.Int(AttrWorkerSlot, 1))
	EndSpan(span, errors.New("fork failed"))

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "supervisor.respawn", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "fork failed", ended[0].Status().Description)
}

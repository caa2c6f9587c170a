package observability

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

type metrics struct {
	workerExitsTotal    metric.Int64Counter
	realtimeEventsTotal metric.Int64Counter
}

var (
	metricsOnce sync.Once
	m           metrics
)

func buildMeterProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	if !cfg.Enabled || !cfg.MetricsEnabled {
		return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res)), nil
	}

	exporter, err := otlpmetricgrpc.New(
		ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	), nil
}

func initInstruments() {
	metricsOnce.Do(func() {
		meter := otel.Meter("hypercluster/runtime")
		m.workerExitsTotal, _ = meter.Int64Counter("hypercluster.supervisor.worker_exits_total")
		m.realtimeEventsTotal, _ = meter.Int64Counter("hypercluster.realtime.events_total")
	})
}

// RecordWorkerExit counts one worker exit observed by the supervisor.
func RecordWorkerExit(ctx context.Context, slot int, status string) {
	initInstruments()
	m.workerExitsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.Int(AttrWorkerSlot, slot),
		attribute.String(AttrExitStatus, status),
	))
}

// Sources of realtime events. The metric is keyed by these rather than by
// the client-chosen room or event name.
const (
	RealtimeSourceClient = "client"
	RealtimeSourceServer = "server"
	RealtimeSourceBus    = "bus"
)

// RecordRealtimeEvent counts one realtime event handled on this worker.
func RecordRealtimeEvent(ctx context.Context, source string) {
	initInstruments()
	m.realtimeEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrRealtimeSource, source),
	))
}

package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

// Identity tells the processes of one pool apart in exported telemetry.
// Slot is negative for processes that are not pool workers.
type Identity struct {
	Role string
	Slot int
}

func buildResource(ctx context.Context, cfg Config, id Identity) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironmentName(cfg.Environment),
	}
	if id.Role != "" {
		attrs = append(attrs, attribute.String(AttrProcessRole, id.Role))
	}
	if id.Slot >= 0 {
		attrs = append(attrs, attribute.Int(AttrWorkerSlot, id.Slot))
	}

	res, err := resource.New(ctx,
		resource.WithProcessPID(),
		resource.WithHost(),
		resource.WithAttributes(attrs...),
	)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}
	return res, nil
}

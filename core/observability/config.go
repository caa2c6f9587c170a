package observability

import (
	"os"
	"strconv"
	"strings"
)

// Environment variables controlling OpenTelemetry export.
const (
	EnvOTelEnabled       = "HYPERCLUSTER_OTEL_ENABLED"
	EnvOTelTraces        = "HYPERCLUSTER_OTEL_TRACES_ENABLED"
	EnvOTelMetrics       = "HYPERCLUSTER_OTEL_METRICS_ENABLED"
	EnvOTelServiceName   = "HYPERCLUSTER_OTEL_SERVICE_NAME"
	EnvOTelEnvironment   = "HYPERCLUSTER_OTEL_ENVIRONMENT"
	EnvOTelEndpoint      = "HYPERCLUSTER_OTEL_ENDPOINT"
	EnvOTelSamplingRatio = "HYPERCLUSTER_OTEL_TRACE_SAMPLING_RATIO"
)

type Config struct {
	Enabled           bool
	TracesEnabled     bool
	MetricsEnabled    bool
	ServiceName       string
	ServiceVersion    string
	Environment       string
	OTLPEndpoint      string
	TraceSamplingRate float64
}

// ResolveConfig reads the OpenTelemetry settings from the environment.
// Export is off unless HYPERCLUSTER_OTEL_ENABLED is true.
func ResolveConfig(serviceVersion string) Config {
	cfg := Config{
		Enabled:           false,
		TracesEnabled:     true,
		MetricsEnabled:    true,
		ServiceName:       "hypercluster",
		ServiceVersion:    "dev",
		Environment:       "development",
		OTLPEndpoint:      "localhost:4317",
		TraceSamplingRate: 1.0,
	}
	if serviceVersion != "" {
		cfg.ServiceVersion = serviceVersion
	}

	overrideBool(EnvOTelEnabled, &cfg.Enabled)
	overrideBool(EnvOTelTraces, &cfg.TracesEnabled)
	overrideBool(EnvOTelMetrics, &cfg.MetricsEnabled)
	overrideString(EnvOTelServiceName, &cfg.ServiceName)
	overrideString(EnvOTelEnvironment, &cfg.Environment)
	overrideString(EnvOTelEndpoint, &cfg.OTLPEndpoint)
	overrideFloat(EnvOTelSamplingRatio, &cfg.TraceSamplingRate)

	if cfg.TraceSamplingRate < 0 {
		cfg.TraceSamplingRate = 0
	}
	if cfg.TraceSamplingRate > 1 {
		cfg.TraceSamplingRate = 1
	}

	return cfg
}

func overrideString(name string, target *string) {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		*target = value
	}
}

func overrideBool(name string, target *bool) {
	value := os.Getenv(name)
	if value == "" {
		return
	}
	parsed, err := strconv.ParseBool(value)
	if err == nil {
		*target = parsed
	}
}

func overrideFloat(name string, target *float64) {
	value := os.Getenv(name)
	if value == "" {
		return
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err == nil {
		*target = parsed
	}
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestResolveDefaults(t *testing.T) {
	cfg, err := Resolve(Overrides{}, envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, ModeSingle, cfg.Mode)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, runtime.NumCPU(), cfg.WorkerCount)
	assert.Equal(t, BusHub, cfg.Bus.Driver)
	assert.Equal(t, DefaultBusChannel, cfg.Bus.Channel)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "single-process", want: ModeSingle},
		{in: "fork", want: ModeSingle},
		{in: "multi-process", want: ModeMulti},
		{in: " Cluster ", want: ModeMulti},
		{in: "threads", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				var cfgErr *Error
				require.True(t, errors.As(err, &cfgErr))
				assert.Equal(t, "mode", cfgErr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveInvalidModeFailsFast(t *testing.T) {
	_, err := Resolve(Overrides{}, envMap(map[string]string{EnvMode: "bogus"}))
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "bogus", cfgErr.Value)
}

func TestResolvePrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hypercluster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join([]string{
		"mode: multi-process",
		"port: 9000",
		"workers: 3",
		"bus:",
		"  driver: redis",
		"  url: redis://file:6379/0",
	}, "\n")), 0o644))

	env := envMap(map[string]string{
		EnvPort:   "9100",
		EnvBusURL: "redis://env:6379/0",
	})

	cfg, err := Resolve(Overrides{File: path, WorkerCount: 5}, env)
	require.NoError(t, err)

	assert.Equal(t, ModeMulti, cfg.Mode, "file value survives when nothing overrides it")
	assert.Equal(t, 9100, cfg.Port, "env beats file")
	assert.Equal(t, 5, cfg.WorkerCount, "flag beats file")
	assert.Equal(t, BusRedis, cfg.Bus.Driver)
	assert.Equal(t, "redis://env:6379/0", cfg.Bus.URL)
}

func TestResolveRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		o    Overrides
	}{
		{name: "non numeric port", env: map[string]string{EnvPort: "http"}},
		{name: "zero workers", env: map[string]string{EnvWorkers: "0"}},
		{name: "negative port flag", o: Overrides{Port: -1}},
		{name: "unknown bus", env: map[string]string{EnvBus: "kafka"}},
		{name: "redis bus without url", env: map[string]string{EnvMode: "multi", EnvBus: "redis"}},
		{name: "postgres store without url", env: map[string]string{EnvStore: "postgres"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.o, envMap(tt.env))
			var cfgErr *Error
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestEnvironRoundTrip(t *testing.T) {
	want := RunConfig{
		Mode:        ModeMulti,
		Port:        8181,
		WorkerCount: 2,
		Bus:         BusConfig{Driver: BusHub, URL: "/tmp/hub.sock", Channel: "c"},
		Store:       StoreConfig{Driver: StoreMemory},
		LogLevel:    4,
	}

	env := make(map[string]string)
	for _, kv := range want.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		require.True(t, ok)
		env[k] = v
	}

	got, err := Resolve(Overrides{}, envMap(env))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("replicas: 3\n"), 0o644))

	_, err := LoadFile(path)
	var cfgErr *Error
	assert.ErrorAs(t, err, &cfgErr)
}

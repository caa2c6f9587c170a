// Package config resolves the immutable RunConfig a hypercluster process runs
// with. Values come from CLI overrides, then the environment, then an optional
// YAML file, then defaults.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Mode is the deployment topology.
type Mode string

const (
	ModeSingle Mode = "single-process"
	ModeMulti  Mode = "multi-process"
)

// ParseMode maps a user supplied mode to a Mode. The short forms and the
// historical "fork"/"cluster" names are accepted.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single-process", "single", "fork":
		return ModeSingle, nil
	case "multi-process", "multi", "cluster":
		return ModeMulti, nil
	}
	return "", &Error{Field: "mode", Value: s, Reason: "must be single-process or multi-process"}
}

const (
	BusHub   = "hub"
	BusRedis = "redis"
	BusNATS  = "nats"

	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMySQL    = "mysql"
	StoreMongoDB  = "mongodb"
)

const (
	DefaultPort       = 8080
	DefaultBusChannel = "hypercluster:broadcast"
	DefaultLogLevel   = 3
)

// Environment variable names.
const (
	EnvMode       = "HYPERCLUSTER_MODE"
	EnvPort       = "PORT"
	EnvWorkers    = "HYPERCLUSTER_WORKERS"
	EnvBus        = "HYPERCLUSTER_BUS"
	EnvBusURL     = "HYPERCLUSTER_BUS_URL"
	EnvBusChannel = "HYPERCLUSTER_BUS_CHANNEL"
	EnvStore      = "HYPERCLUSTER_STORE"
	EnvStoreURL   = "HYPERCLUSTER_STORE_URL"
	EnvLogLevel   = "HYPERCLUSTER_LOG_LEVEL"
	EnvLogTags    = "HYPERCLUSTER_LOG_TAGS"
)

// BusConfig selects the event bus backend used in multi-process mode.
type BusConfig struct {
	Driver  string
	URL     string
	Channel string
}

// StoreConfig selects the product store backend.
type StoreConfig struct {
	Driver string
	URL    string
}

// RunConfig is resolved once at startup and never mutated afterwards.
type RunConfig struct {
	Mode        Mode
	Port        int
	WorkerCount int
	Bus         BusConfig
	Store       StoreConfig
	LogLevel    int
}

// Error reports an invalid configuration value.
type Error struct {
	Field  string
	Value  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// Overrides holds values given on the command line. Empty/zero fields are
// unset.
type Overrides struct {
	File        string
	Mode        string
	Port        int
	WorkerCount int
	LogLevel    int
}

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// Resolve builds a validated RunConfig. lookup defaults to os.LookupEnv.
func Resolve(o Overrides, lookup LookupFunc) (RunConfig, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	cfg := RunConfig{
		Mode:        ModeSingle,
		Port:        DefaultPort,
		WorkerCount: runtime.NumCPU(),
		Bus:         BusConfig{Driver: BusHub, Channel: DefaultBusChannel},
		Store:       StoreConfig{Driver: StoreMemory},
		LogLevel:    DefaultLogLevel,
	}

	modeStr := string(cfg.Mode)
	if o.File != "" {
		fc, err := LoadFile(o.File)
		if err != nil {
			return RunConfig{}, err
		}
		fc.apply(&cfg, &modeStr)
	}

	env := func(key string) string {
		v, ok := lookup(key)
		if !ok {
			return ""
		}
		return strings.TrimSpace(v)
	}

	if v := env(EnvMode); v != "" {
		modeStr = v
	}
	if o.Mode != "" {
		modeStr = o.Mode
	}
	mode, err := ParseMode(modeStr)
	if err != nil {
		return RunConfig{}, err
	}
	cfg.Mode = mode

	if v := env(EnvPort); v != "" {
		if cfg.Port, err = parseInt("port", v); err != nil {
			return RunConfig{}, err
		}
	}
	if o.Port != 0 {
		cfg.Port = o.Port
	}

	if v := env(EnvWorkers); v != "" {
		if cfg.WorkerCount, err = parseInt("workers", v); err != nil {
			return RunConfig{}, err
		}
	}
	if o.WorkerCount != 0 {
		cfg.WorkerCount = o.WorkerCount
	}

	if v := env(EnvLogLevel); v != "" {
		if cfg.LogLevel, err = parseInt("log level", v); err != nil {
			return RunConfig{}, err
		}
	}
	if o.LogLevel != 0 {
		cfg.LogLevel = o.LogLevel
	}

	if v := env(EnvBus); v != "" {
		cfg.Bus.Driver = strings.ToLower(v)
	}
	if v := env(EnvBusURL); v != "" {
		cfg.Bus.URL = v
	}
	if v := env(EnvBusChannel); v != "" {
		cfg.Bus.Channel = v
	}
	if v := env(EnvStore); v != "" {
		cfg.Store.Driver = strings.ToLower(v)
	}
	if v := env(EnvStoreURL); v != "" {
		cfg.Store.URL = v
	}

	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// Validate checks the invariants of a RunConfig.
func (c RunConfig) Validate() error {
	if c.Mode != ModeSingle && c.Mode != ModeMulti {
		return &Error{Field: "mode", Value: string(c.Mode), Reason: "must be single-process or multi-process"}
	}
	if c.Port <= 0 || c.Port > 65535 {
		return &Error{Field: "port", Value: strconv.Itoa(c.Port), Reason: "must be between 1 and 65535"}
	}
	if c.WorkerCount < 1 {
		return &Error{Field: "workers", Value: strconv.Itoa(c.WorkerCount), Reason: "must be at least 1"}
	}
	if c.LogLevel < 1 || c.LogLevel > 4 {
		return &Error{Field: "log level", Value: strconv.Itoa(c.LogLevel), Reason: "must be between 1 and 4"}
	}
	switch c.Bus.Driver {
	case BusHub:
	case BusRedis, BusNATS:
		if c.Mode == ModeMulti && c.Bus.URL == "" {
			return &Error{Field: "bus url", Value: "", Reason: c.Bus.Driver + " bus requires " + EnvBusURL}
		}
	default:
		return &Error{Field: "bus", Value: c.Bus.Driver, Reason: "must be hub, redis or nats"}
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres, StoreMySQL, StoreMongoDB:
		if c.Store.URL == "" {
			return &Error{Field: "store url", Value: "", Reason: c.Store.Driver + " store requires " + EnvStoreURL}
		}
	default:
		return &Error{Field: "store", Value: c.Store.Driver, Reason: "must be memory, postgres, mysql or mongodb"}
	}
	return nil
}

// Environ encodes cfg as environment entries so a child process resolves the
// exact same configuration.
func (c RunConfig) Environ() []string {
	return []string{
		EnvMode + "=" + string(c.Mode),
		EnvPort + "=" + strconv.Itoa(c.Port),
		EnvWorkers + "=" + strconv.Itoa(c.WorkerCount),
		EnvBus + "=" + c.Bus.Driver,
		EnvBusURL + "=" + c.Bus.URL,
		EnvBusChannel + "=" + c.Bus.Channel,
		EnvStore + "=" + c.Store.Driver,
		EnvStoreURL + "=" + c.Store.URL,
		EnvLogLevel + "=" + strconv.Itoa(c.LogLevel),
	}
}

func parseInt(field, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &Error{Field: field, Value: v, Reason: "must be an integer"}
	}
	return n, nil
}

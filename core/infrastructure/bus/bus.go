// Package bus implements the event bus that carries real-time broadcasts
// between the worker processes of a hypercluster pool.
//
// Every backend satisfies Adapter: Publish is fire-and-forget and bounded,
// and the subscribed Handler sees only envelopes published by other workers.
// Envelopes from one origin are delivered in emission order; envelopes from
// different origins may interleave arbitrarily. Delivery is best effort with
// at-least-once semantics from the backends that offer it.
package bus

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hyperterse/hypercluster/core/config"
)

// Envelope is the unit of cross-worker broadcast data.
type Envelope struct {
	Origin  string          `json:"origin"`
	Room    string          `json:"room,omitempty"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Handler receives envelopes published by other workers.
type Handler func(Envelope)

// Adapter is the worker-side view of the bus.
type Adapter interface {
	// Publish hands env to the bus without waiting for delivery. It never
	// blocks indefinitely; when the outbound queue is full env is dropped.
	Publish(env Envelope)
	// Subscribe registers the single inbound handler.
	Subscribe(h Handler) error
	Close() error
}

var (
	ErrAlreadySubscribed = errors.New("bus: handler already subscribed")
	ErrClosed            = errors.New("bus: adapter closed")
	ErrEnvelopeTooLarge  = errors.New("bus: envelope too large")
	ErrConnectionLost    = errors.New("bus: connection lost")
)

// MaxEnvelopeSize bounds an encoded envelope. Larger envelopes are dropped
// at Publish and skipped by hub readers.
const MaxEnvelopeSize = 1 << 20

// Monitor is implemented by adapters whose link to the other workers can be
// lost without recovery. Lost is closed when that happens and Err reports
// the cause. A worker watching Lost should exit so it gets replaced.
type Monitor interface {
	Lost() <-chan struct{}
	Err() error
}

const outboxSize = 256

var (
	envelopesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hypercluster_bus_envelopes_published_total",
			Help: "Envelopes handed to the event bus",
		},
		[]string{"driver"},
	)

	envelopesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hypercluster_bus_envelopes_received_total",
			Help: "Envelopes received from other workers",
		},
		[]string{"driver"},
	)

	envelopesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hypercluster_bus_envelopes_dropped_total",
			Help: "Envelopes dropped because a queue was full or they were too large",
		},
		[]string{"driver"},
	)
)

// Open returns the worker-side adapter for cfg. Single-process mode always
// gets a private in-memory bus.
func Open(cfg config.RunConfig, origin string) (Adapter, error) {
	if cfg.Mode == config.ModeSingle {
		return NewLocal(origin), nil
	}

	switch cfg.Bus.Driver {
	case config.BusHub:
		if cfg.Bus.URL == "" {
			return nil, fmt.Errorf("hub bus socket not set; multi-process workers must be started by the supervisor")
		}
		return DialHub(cfg.Bus.URL, origin)
	case config.BusRedis:
		return NewRedisAdapter(cfg.Bus.URL, cfg.Bus.Channel, origin)
	case config.BusNATS:
		return NewNATSAdapter(cfg.Bus.URL, cfg.Bus.Channel, origin)
	}
	return nil, fmt.Errorf("unsupported bus driver %q", cfg.Bus.Driver)
}

// PrimaryEndpoint is the supervisor-side half of the bus. Workers are
// started with the BusConfig it returns.
type PrimaryEndpoint interface {
	BusConfig() config.BusConfig
	Close() error
}

// OpenPrimary prepares the bus before any worker is spawned. The hub driver
// starts a relay on a unix socket owned by this process; external brokers
// need nothing from the primary.
func OpenPrimary(c config.BusConfig) (PrimaryEndpoint, error) {
	if c.Driver != config.BusHub {
		return externalEndpoint{cfg: c}, nil
	}
	path := c.URL
	if path == "" {
		path = DefaultHubPath()
	}
	hub, err := NewHub(path)
	if err != nil {
		return nil, err
	}
	return hub, nil
}

type externalEndpoint struct {
	cfg config.BusConfig
}

func (e externalEndpoint) BusConfig() config.BusConfig { return e.cfg }
func (e externalEndpoint) Close() error                { return nil }

func encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	if len(data) > MaxEnvelopeSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrEnvelopeTooLarge, len(data))
	}
	return data, nil
}

func decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("invalid envelope: %w", err)
	}
	return env, nil
}

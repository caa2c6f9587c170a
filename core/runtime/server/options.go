package server

import (
	"github.com/hyperterse/hypercluster/core/domain/interfaces"
	"github.com/hyperterse/hypercluster/core/infrastructure/bus"
)

type RuntimeOption func(*Runtime)

// WithStore uses store instead of opening one from the config. The caller
// keeps ownership and closes it.
func WithStore(store interfaces.ProductStore) RuntimeOption {
	return func(r *Runtime) {
		r.store = store
	}
}

// WithBus uses adapter instead of opening one from the config. The caller
// keeps ownership and closes it.
func WithBus(adapter bus.Adapter) RuntimeOption {
	return func(r *Runtime) {
		r.bus = adapter
	}
}

// WithWorkerID sets the origin stamped on every event this runtime emits.
func WithWorkerID(id string) RuntimeOption {
	return func(r *Runtime) {
		r.workerID = id
	}
}

// WithReadyNotifier registers fn to be called once the listener is bound.
func WithReadyNotifier(fn func()) RuntimeOption {
	return func(r *Runtime) {
		r.ready = fn
	}
}

// WithHost binds on host instead of all interfaces.
func WithHost(host string) RuntimeOption {
	return func(r *Runtime) {
		r.host = host
	}
}

// WithSlot records the pool slot this runtime serves. Metrics are labelled
// with it.
func WithSlot(slot int) RuntimeOption {
	return func(r *Runtime) {
		r.slot = slot
	}
}

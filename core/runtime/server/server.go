package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hyperterse/hypercluster/core/config"
	"github.com/hyperterse/hypercluster/core/domain/interfaces"
	"github.com/hyperterse/hypercluster/core/infrastructure/bus"
	"github.com/hyperterse/hypercluster/core/infrastructure/store"
	transport "github.com/hyperterse/hypercluster/core/infrastructure/transport/http"
	"github.com/hyperterse/hypercluster/core/infrastructure/transport/realtime"
	"github.com/hyperterse/hypercluster/core/logger"
)

// State is the lifecycle state of a Runtime.
type State int32

const (
	StateIdle State = iota
	StateListening
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Runtime is one worker: an HTTP + websocket server bound to the configured
// port, backed by a product store and attached to the event bus.
type Runtime struct {
	cfg      config.RunConfig
	host     string
	workerID string
	slot     int
	ready    func()

	store     interfaces.ProductStore
	ownsStore bool
	bus       bus.Adapter
	ownsBus   bool

	http     *transport.Server
	realtime *realtime.Server

	listener net.Listener
	group    *errgroup.Group
	groupCtx context.Context
	stopping chan struct{}
	state    atomic.Int32
	stopOnce sync.Once
	stopErr  error
}

// NewRuntime creates a runtime for cfg. The store and bus adapter are opened
// from cfg unless supplied through options.
func NewRuntime(cfg config.RunConfig, opts ...RuntimeOption) (*Runtime, error) {
	r := &Runtime{cfg: cfg, stopping: make(chan struct{})}
	for _, opt := range opts {
		opt(r)
	}

	if r.workerID == "" {
		r.workerID = ulid.Make().String()
	}

	if r.store == nil {
		s, err := store.Open(cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("open product store: %w", err)
		}
		r.store = s
		r.ownsStore = true
	}

	if r.bus == nil {
		adapter, err := bus.Open(cfg, r.workerID)
		if err != nil {
			r.closeOwned()
			return nil, fmt.Errorf("attach event bus: %w", err)
		}
		r.bus = adapter
		r.ownsBus = true
	}

	rt, err := realtime.NewServer(r.workerID, r.bus)
	if err != nil {
		r.closeOwned()
		return nil, fmt.Errorf("subscribe to event bus: %w", err)
	}
	r.realtime = rt

	r.http = transport.NewServer(r.metricsLabel())
	transport.RegisterRoutes(r.http.Router(), transport.Routes{
		Store:    r.store,
		Notifier: r.realtime,
		Realtime: r.realtime,
	})

	return r, nil
}

// metricsLabel is the worker label on HTTP metrics: the pool slot, or
// "single" outside a pool.
func (r *Runtime) metricsLabel() string {
	if r.cfg.Mode == config.ModeSingle || r.slot < 0 {
		return "single"
	}
	return strconv.Itoa(r.slot)
}

// WorkerID returns the origin stamped on events emitted by this runtime.
func (r *Runtime) WorkerID() string {
	return r.workerID
}

// State returns the current lifecycle state
func (r *Runtime) State() State {
	return State(r.state.Load())
}

// Addr returns the bound address, or nil before StartAsync succeeds.
func (r *Runtime) Addr() net.Addr {
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Start starts the runtime server and blocks until SIGTERM/SIGINT, until
// serving fails or until the event bus connection is lost. The last two are
// returned as errors so the worker exits non-zero.
func (r *Runtime) Start() error {
	if err := r.StartAsync(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.New("runtime").Infof("Shutdown signal received")
	case <-r.groupCtx.Done():
	}

	return r.Stop()
}

// StartAsync binds the listener and serves in the background. A bind failure
// is returned as a *BindError and leaves the runtime idle.
func (r *Runtime) StartAsync() error {
	log := logger.New("runtime")

	if r.State() != StateIdle {
		return errors.New("runtime already started")
	}

	addr := net.JoinHostPort(r.host, strconv.Itoa(r.cfg.Port))
	ln, err := listen(addr, r.cfg.Mode == config.ModeMulti)
	if err != nil {
		return &BindError{Addr: addr, Err: err}
	}
	r.listener = ln

	r.group, r.groupCtx = errgroup.WithContext(context.Background())
	r.group.Go(func() error {
		if err := r.http.Serve(ln); err != nil {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	if m, ok := r.bus.(bus.Monitor); ok {
		r.group.Go(func() error {
			select {
			case <-m.Lost():
				return fmt.Errorf("event bus: %w", m.Err())
			case <-r.stopping:
				return nil
			}
		})
	}

	r.state.Store(int32(StateListening))
	log.Infof("HTTP server with websockets listening on port %s - worker PID %d", portOf(ln.Addr()), os.Getpid())

	if r.ready != nil {
		r.ready()
	}
	return nil
}

// Stop stops the runtime server gracefully. It is safe to call more than
// once.
func (r *Runtime) Stop() error {
	r.stopOnce.Do(func() {
		r.stopErr = r.stop()
	})
	return r.stopErr
}

func (r *Runtime) stop() error {
	log := logger.New("runtime")
	log.Infof("Shutting down worker...")
	close(r.stopping)

	var errs []error

	// hijacked websocket connections are not closed by http.Server.Shutdown
	if err := r.realtime.Close(); err != nil {
		errs = append(errs, err)
	}

	if r.listener != nil {
		if err := r.http.Stop(); err != nil {
			errs = append(errs, err)
		}
		if err := r.group.Wait(); err != nil {
			errs = append(errs, err)
		}
	}

	r.closeOwned()
	r.state.Store(int32(StateStopped))

	log.Debugf("Shutdown complete")
	return errors.Join(errs...)
}

func (r *Runtime) closeOwned() {
	log := logger.New("runtime")

	if r.ownsBus && r.bus != nil {
		if err := r.bus.Close(); err != nil {
			log.Warnf("Error closing event bus: %v", err)
		}
	}
	if r.ownsStore && r.store != nil {
		if err := r.store.Close(); err != nil {
			log.Warnf("Error closing product store: %v", err)
		}
	}
}

func portOf(addr net.Addr) string {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return strconv.Itoa(tcp.Port)
	}
	return addr.String()
}

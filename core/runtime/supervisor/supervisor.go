// Package supervisor keeps a pool of worker processes alive. Every worker
// that exits is replaced by exactly one new worker, and the live set never
// shrinks below the configured size while Run is active.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hyperterse/hypercluster/core/config"
	"github.com/hyperterse/hypercluster/core/infrastructure/bus"
	"github.com/hyperterse/hypercluster/core/logger"
	"github.com/hyperterse/hypercluster/core/observability"
)

// WorkerState is the lifecycle state of a worker process.
type WorkerState int

const (
	WorkerStarting WorkerState = iota
	WorkerListening
	WorkerExited
)

func (s WorkerState) String() string {
	switch s {
	case WorkerStarting:
		return "starting"
	case WorkerListening:
		return "listening"
	case WorkerExited:
		return "exited"
	}
	return "unknown"
}

// WorkerHandle is the supervisor's view of one worker process.
type WorkerHandle struct {
	Slot      int
	PID       int
	SpawnedAt time.Time
	State     WorkerState
}

// ExitStatus describes how a worker process ended. Signal is set when the
// process was killed by a signal, Code otherwise.
type ExitStatus struct {
	Code   int
	Signal string
	Err    error
}

func (s ExitStatus) String() string {
	if s.Signal != "" {
		return s.Signal
	}
	return strconv.Itoa(s.Code)
}

// Process is a running worker.
type Process interface {
	PID() int
	// Ready is closed once the worker reports that it is listening.
	Ready() <-chan struct{}
	// Wait blocks until the process exits.
	Wait() ExitStatus
	Signal(sig os.Signal) error
}

// Spawner starts worker processes.
type Spawner interface {
	Spawn(ctx context.Context, slot int, cfg config.RunConfig) (Process, error)
}

// PrimaryBusFunc prepares the primary side of the event bus.
type PrimaryBusFunc func(config.BusConfig) (bus.PrimaryEndpoint, error)

type Option func(*Supervisor)

// WithPrimaryBus replaces bus.OpenPrimary.
func WithPrimaryBus(fn PrimaryBusFunc) Option {
	return func(s *Supervisor) {
		s.openBus = fn
	}
}

// Supervisor spawns cfg.WorkerCount workers and respawns them as they exit.
type Supervisor struct {
	cfg     config.RunConfig
	spawner Spawner
	openBus PrimaryBusFunc
	logger  *logger.Logger

	mu       sync.Mutex
	live     []*worker
	respawns int

	done chan struct{}
}

type worker struct {
	handle WorkerHandle
	proc   Process
}

type exitEvent struct {
	worker *worker
	status ExitStatus
}

// New creates a supervisor
func New(cfg config.RunConfig, spawner Spawner, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:     cfg,
		spawner: spawner,
		openBus: bus.OpenPrimary,
		logger:  logger.New("supervisor"),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run starts the pool and keeps it alive until ctx is cancelled, at which
// point SIGTERM is forwarded to every live worker. A failed spawn stops the
// supervisor and is returned. Run must be called at most once.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.done)

	s.logger.Infof("Primary process started with PID %d", os.Getpid())
	s.logger.Infof("Number of workers: %d", s.cfg.WorkerCount)

	endpoint, err := s.openBus(s.cfg.Bus)
	if err != nil {
		return fmt.Errorf("start event bus: %w", err)
	}
	defer func() {
		if err := endpoint.Close(); err != nil {
			s.logger.Warnf("Error closing event bus: %v", err)
		}
	}()

	workerCfg := s.cfg
	workerCfg.Bus = endpoint.BusConfig()

	events := make(chan exitEvent)

	for slot := 0; slot < s.cfg.WorkerCount; slot++ {
		if _, err := s.spawn(ctx, slot, workerCfg, events); err != nil {
			s.signalAll(syscall.SIGTERM)
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Infof("Stopping %d workers", s.LiveCount())
			s.signalAll(syscall.SIGTERM)
			return nil

		case ev := <-events:
			s.markExited(ev.worker)
			observability.RecordWorkerExit(ctx, ev.worker.handle.Slot, ev.status.String())
			s.logger.Warnf("Worker with PID %d terminated - %s - [%s]",
				ev.worker.handle.PID, ev.status, time.Now().Format(time.RFC3339))

			if ctx.Err() != nil {
				continue
			}

			spanCtx, span := observability.StartSpan(ctx, "supervisor.respawn",
				attribute.Int(observability.AttrWorkerSlot, ev.worker.handle.Slot),
				attribute.String(observability.AttrExitStatus, ev.status.String()),
			)
			replacement, err := s.spawn(spanCtx, ev.worker.handle.Slot, workerCfg, events)
			observability.EndSpan(span, err)
			if err != nil {
				s.signalAll(syscall.SIGTERM)
				return err
			}
			s.replace(ev.worker, replacement)
		}
	}
}

// Workers returns a snapshot of the live set
func (s *Supervisor) Workers() []WorkerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	handles := make([]WorkerHandle, len(s.live))
	for i, w := range s.live {
		handles[i] = w.handle
	}
	return handles
}

// LiveCount returns the number of handles in the live set. An exited worker
// stays in the set until its replacement has been spawned.
func (s *Supervisor) LiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Respawns returns how many workers have been replaced
func (s *Supervisor) Respawns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.respawns
}

func (s *Supervisor) spawn(ctx context.Context, slot int, cfg config.RunConfig, events chan<- exitEvent) (*worker, error) {
	proc, err := s.spawner.Spawn(ctx, slot, cfg)
	if err != nil {
		return nil, fmt.Errorf("spawn worker %d: %w", slot, err)
	}

	w := &worker{
		handle: WorkerHandle{
			Slot:      slot,
			PID:       proc.PID(),
			SpawnedAt: time.Now(),
			State:     WorkerStarting,
		},
		proc: proc,
	}

	s.mu.Lock()
	s.live = append(s.live, w)
	s.mu.Unlock()

	s.logger.Debugf("Spawned worker %d with PID %d", slot, w.handle.PID)

	exited := make(chan struct{})
	go s.watchReady(w, exited)
	go s.watchExit(w, exited, events)

	return w, nil
}

func (s *Supervisor) watchReady(w *worker, exited <-chan struct{}) {
	select {
	case <-w.proc.Ready():
		s.mu.Lock()
		if w.handle.State == WorkerStarting {
			w.handle.State = WorkerListening
		}
		s.mu.Unlock()
		s.logger.Debugf("Worker with PID %d is listening", w.handle.PID)
	case <-exited:
	}
}

func (s *Supervisor) watchExit(w *worker, exited chan<- struct{}, events chan<- exitEvent) {
	status := w.proc.Wait()
	close(exited)

	select {
	case events <- exitEvent{worker: w, status: status}:
	case <-s.done:
	}
}

func (s *Supervisor) markExited(w *worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.handle.State = WorkerExited
}

// replace drops old from the live set. It is called only after replacement
// has been added, so the set never becomes empty.
func (s *Supervisor) replace(old, replacement *worker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, w := range s.live {
		if w == old {
			s.live = append(s.live[:i], s.live[i+1:]...)
			break
		}
	}
	s.respawns++

	s.logger.Debugf("Worker %d replaced: PID %d -> %d", old.handle.Slot, old.handle.PID, replacement.handle.PID)
}

func (s *Supervisor) signalAll(sig os.Signal) {
	s.mu.Lock()
	live := make([]*worker, 0, len(s.live))
	for _, w := range s.live {
		if w.handle.State != WorkerExited {
			live = append(live, w)
		}
	}
	s.mu.Unlock()

	for _, w := range live {
		if err := w.proc.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.logger.Warnf("Failed to signal worker with PID %d: %v", w.handle.PID, err)
		}
	}
}

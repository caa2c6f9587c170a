package runtime

import (
	"github.com/hyperterse/hypercluster/core/runtime/server"
	"github.com/hyperterse/hypercluster/core/runtime/supervisor"
)

// Runtime is a single worker server
type Runtime = server.Runtime

// Option configures a Runtime
type Option = server.RuntimeOption

// BindError reports a port the worker could not bind
type BindError = server.BindError

// NewRuntime creates a new worker runtime
var NewRuntime = server.NewRuntime

// WithReadyNotifier registers the readiness callback of a worker
var WithReadyNotifier = server.WithReadyNotifier

// Supervisor keeps a pool of worker processes alive
type Supervisor = supervisor.Supervisor

// NewSupervisor creates a supervisor for a worker pool
var NewSupervisor = supervisor.New

// NewExecSpawner returns a spawner that re-executes the running binary
var NewExecSpawner = supervisor.NewExecSpawner

// ReadyNotifier returns the readiness callback for a spawned worker
var ReadyNotifier = supervisor.ReadyNotifier

// WorkerCommand is the hidden subcommand workers are started with
const WorkerCommand = supervisor.WorkerCommand

// WithSlot sets the pool slot a runtime serves
var WithSlot = server.WithSlot

// WorkerSlot returns the slot assigned by the supervisor, or -1
var WorkerSlot = supervisor.WorkerSlot

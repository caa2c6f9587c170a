package supervisor

import (
	"os"
	"strconv"

	"github.com/hyperterse/hypercluster/core/logger"
)

// Environment set on every spawned worker.
const (
	EnvReadyFD    = "HYPERCLUSTER_READY_FD"
	EnvWorkerSlot = "HYPERCLUSTER_WORKER_SLOT"
)

const readyLine = "ready\n"

// ReadyNotifier returns the function a worker calls once it is listening.
// It reports readiness to the supervisor over the inherited pipe and does
// nothing when the process was not started by a supervisor.
func ReadyNotifier() func() {
	v := os.Getenv(EnvReadyFD)
	if v == "" {
		return func() {}
	}
	fd, err := strconv.Atoi(v)
	if err != nil || fd < 3 {
		logger.New("worker").Warnf("Ignoring invalid %s=%q", EnvReadyFD, v)
		return func() {}
	}

	return func() {
		f := os.NewFile(uintptr(fd), "ready")
		if f == nil {
			return
		}
		defer f.Close()
		if _, err := f.WriteString(readyLine); err != nil {
			logger.New("worker").Warnf("Failed to report readiness: %v", err)
		}
	}
}

// WorkerSlot returns the slot this process was spawned into, or -1 when it
// was not started by a supervisor.
func WorkerSlot() int {
	slot, err := strconv.Atoi(os.Getenv(EnvWorkerSlot))
	if err != nil || slot < 0 {
		return -1
	}
	return slot
}

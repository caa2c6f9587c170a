//go:build !unix

package supervisor

import (
	"context"
	"errors"

	"github.com/hyperterse/hypercluster/core/config"
)

const WorkerCommand = "worker"

var errUnsupported = errors.New("multi-process mode is not supported on this platform")

// ExecSpawner is unavailable on this platform.
type ExecSpawner struct{}

func NewExecSpawner() (*ExecSpawner, error) {
	return nil, errUnsupported
}

func (s *ExecSpawner) Spawn(context.Context, int, config.RunConfig) (Process, error) {
	return nil, errUnsupported
}

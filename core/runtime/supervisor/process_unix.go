//go:build unix

package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/hyperterse/hypercluster/core/config"
)

// WorkerCommand is the hidden subcommand a worker process is started with.
const WorkerCommand = "worker"

// ExecSpawner starts workers by re-executing a binary, normally the running
// one, with the worker subcommand. The resolved config travels in the
// environment and readiness comes back on an inherited pipe.
type ExecSpawner struct {
	Path   string
	Args   []string
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecSpawner returns a spawner that re-executes the current binary.
func NewExecSpawner() (*ExecSpawner, error) {
	path, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	return &ExecSpawner{
		Path:   path,
		Args:   []string{WorkerCommand},
		Env:    os.Environ(),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}, nil
}

// Spawn starts one worker for slot.
func (s *ExecSpawner) Spawn(ctx context.Context, slot int, cfg config.RunConfig) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	readyR, readyW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create readiness pipe: %w", err)
	}

	// Not CommandContext: cancellation is forwarded as SIGTERM by the
	// supervisor, never as SIGKILL.
	cmd := exec.Command(s.Path, s.Args...)
	cmd.Env = append(append([]string{}, s.Env...), cfg.Environ()...)
	cmd.Env = append(cmd.Env,
		EnvReadyFD+"=3",
		EnvWorkerSlot+"="+strconv.Itoa(slot),
	)
	cmd.ExtraFiles = []*os.File{readyW}
	cmd.Stdout = s.Stdout
	cmd.Stderr = s.Stderr

	if err := cmd.Start(); err != nil {
		readyR.Close()
		readyW.Close()
		return nil, err
	}
	readyW.Close()

	p := &execProcess{
		cmd:   cmd,
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
	go p.watchReady(readyR)
	go p.wait()

	return p, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	ready  chan struct{}
	done   chan struct{}
	status ExitStatus
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Ready() <-chan struct{} {
	return p.ready
}

func (p *execProcess) Wait() ExitStatus {
	<-p.done
	return p.status
}

func (p *execProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

// watchReady closes ready when the worker writes its readiness line. The
// pipe reaches EOF without one if the worker dies first.
func (p *execProcess) watchReady(r *os.File) {
	defer r.Close()

	line, err := bufio.NewReader(r).ReadString('\n')
	if err == nil && line == readyLine {
		close(p.ready)
	}
}

func (p *execProcess) wait() {
	err := p.cmd.Wait()
	p.status = exitStatus(p.cmd.ProcessState, err)
	close(p.done)
}

func exitStatus(state *os.ProcessState, err error) ExitStatus {
	if state == nil {
		return ExitStatus{Code: -1, Err: err}
	}
	status := ExitStatus{Code: state.ExitCode()}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		status.Signal = unix.SignalName(ws.Signal())
	}
	if _, isExit := err.(*exec.ExitError); err != nil && !isExit {
		status.Err = err
	}
	return status
}

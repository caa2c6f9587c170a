package cli

import (
	"os"
	"sync"

	"github.com/hyperterse/hypercluster/core/cli/cmd"
	"github.com/hyperterse/hypercluster/core/logger"
)

var (
	exitOnce sync.Once
	exitFunc = os.Exit
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	err := cmd.Execute()
	if err != nil && !logger.Logged(err) {
		tag := logger.ErrorTag(err)
		if tag == "" {
			tag = "cli"
		}
		logger.New(tag).Error(err.Error())
	}
	return logger.ExitCode(err)
}

// Exit is the single exit point of the process: it logs the exit code,
// flushes the log file and exits. Only the first call has any effect.
func Exit(code int) {
	exitOnce.Do(func() {
		logger.New("process").Infof("Process exiting with code %d", code)
		_ = logger.CloseLogFile()
		exitFunc(code)
	})
}

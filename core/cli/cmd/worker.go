package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperterse/hypercluster/core/config"
	"github.com/hyperterse/hypercluster/core/logger"
	"github.com/hyperterse/hypercluster/core/observability"
	"github.com/hyperterse/hypercluster/core/runtime"
)

// workerCmd is started by the supervisor for each worker process. The run
// configuration comes from the environment the supervisor sets.
var workerCmd = &cobra.Command{
	Use:           runtime.WorkerCommand,
	Short:         "Run one worker of a multi-process pool",
	Hidden:        true,
	Args:          cobra.NoArgs,
	RunE:          runWorkerProcess,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorkerProcess(cmd *cobra.Command, args []string) error {
	logger.SetRole("worker")
	if tags := os.Getenv(config.EnvLogTags); tags != "" {
		logger.SetTagFilter(tags)
	}

	cfg, err := config.Resolve(config.Overrides{}, nil)
	if err != nil {
		return logger.WithExitCode(ExitConfigError, logger.New("config").Errorf("invalid worker configuration: %w", err))
	}
	logger.SetLogLevel(cfg.LogLevel)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	slot := runtime.WorkerSlot()
	shutdown, err := setupObservability(ctx, observability.Identity{Role: "worker", Slot: slot})
	if err != nil {
		return err
	}
	defer shutdown()

	return runWorker(cfg, slot, runtime.ReadyNotifier())
}

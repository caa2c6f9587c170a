package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperterse/hypercluster/core/config"
	"github.com/hyperterse/hypercluster/core/logger"
	"github.com/hyperterse/hypercluster/core/observability"
	"github.com/hyperterse/hypercluster/core/runtime"
)

// Exit codes
const (
	ExitRuntimeError = 1
	ExitConfigError  = 2
)

var (
	configFile string
	mode       string
	port       int
	workers    int
	logLevel   int
	verbose    bool
	logTags    string
	logFile    bool
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:           "start",
	Short:         "Run the server, as one process or as a supervised worker pool",
	RunE:          startServer,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true, // Errors are already logged, suppress Cobra's error output
}

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to a YAML configuration file")
	startCmd.Flags().StringVarP(&mode, "mode", "m", "", "Run mode: single-process (fork) or multi-process (cluster). Overrides HYPERCLUSTER_MODE")
	startCmd.Flags().IntVarP(&port, "port", "p", 0, "Server port (overrides config file and PORT env var)")
	startCmd.Flags().IntVarP(&workers, "workers", "w", 0, "Worker processes in multi-process mode (default: number of CPUs)")
	startCmd.Flags().IntVar(&logLevel, "log-level", 0, "Log level: 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG (overrides config file)")
	startCmd.Flags().BoolVarP(&verbose, "verbose", "", false, "Enable verbose logging (sets log level to DEBUG)")
	startCmd.Flags().StringVar(&logTags, "log-tags", "", "Filter logs by tags (comma-separated, use -tag to exclude). Overrides HYPERCLUSTER_LOG_TAGS env var")
	startCmd.Flags().BoolVar(&logFile, "log-file", false, "Stream logs to file in /tmp/.hypercluster/logs/")
}

func startServer(cmd *cobra.Command, args []string) error {
	cfg, err := PrepareConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	role := "single"
	if cfg.Mode == config.ModeMulti {
		role = "primary"
	}
	logger.SetRole(role)

	shutdown, err := setupObservability(ctx, observability.Identity{Role: role, Slot: -1})
	if err != nil {
		return err
	}
	defer shutdown()

	if cfg.Mode == config.ModeMulti {
		return runSupervisor(ctx, cfg)
	}
	return runWorker(cfg, -1, nil)
}

// PrepareConfig configures logging from the flags, loads .env files and
// resolves the run configuration. Resolution failures carry exit code 2.
func PrepareConfig() (config.RunConfig, error) {
	log := logger.New("config")

	// Set log level early so config loading respects the flags. It is
	// updated once the config is resolved if no flag was given.
	if verbose {
		logger.SetLogLevel(logger.LogLevelDebug)
	} else if logLevel > 0 {
		logger.SetLogLevel(logLevel)
	} else {
		logger.SetLogLevel(logger.LogLevelInfo)
	}

	// Workers inherit the tag filter through the environment.
	if logTags != "" {
		os.Setenv(config.EnvLogTags, logTags)
	}
	if tags := os.Getenv(config.EnvLogTags); tags != "" {
		logger.SetTagFilter(tags)
	}

	if logFile {
		filePath, err := logger.SetLogFile()
		if err != nil {
			return config.RunConfig{}, logger.WithExitCode(ExitRuntimeError, log.Errorf("failed to initialize log file: %w", err))
		}
		log.Infof("Log file: %s", filePath)
	}

	dirs := []string{"."}
	if configFile != "" {
		dirs = append([]string{filepath.Dir(configFile)}, dirs...)
	}
	for _, path := range LoadEnvFiles(dirs...) {
		log.Debugf("Loaded %s", path)
	}

	overrides := config.Overrides{
		File:        configFile,
		Mode:        mode,
		Port:        port,
		WorkerCount: workers,
		LogLevel:    logLevel,
	}
	if verbose {
		overrides.LogLevel = logger.LogLevelDebug
	}

	cfg, err := config.Resolve(overrides, nil)
	if err != nil {
		return config.RunConfig{}, logger.WithExitCode(ExitConfigError, log.Errorf("invalid configuration: %w", err))
	}
	logger.SetLogLevel(cfg.LogLevel)

	log.Infof("Configuration loaded")
	log.Debugf("Mode: %s", cfg.Mode)
	log.Debugf("Port: %d", cfg.Port)
	if cfg.Mode == config.ModeMulti {
		log.Debugf("Workers: %d", cfg.WorkerCount)
		log.Debugf("Event bus: %s", cfg.Bus.Driver)
	}
	log.Debugf("Product store: %s", cfg.Store.Driver)
	if cfg.Mode == config.ModeMulti && cfg.Store.Driver == config.StoreMemory {
		log.Warnf("Each worker keeps its own in-memory product store; products written on one worker are not visible on the others. Set %s to a database driver to share them", config.EnvStore)
	}

	return cfg, nil
}

// setupObservability installs the OpenTelemetry providers and returns the
// function that flushes them.
func setupObservability(ctx context.Context, id observability.Identity) (func(), error) {
	log := logger.New("observability")

	providers, err := observability.Setup(ctx, GetVersion(), id)
	if err != nil {
		return nil, log.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Warnf("Error shutting down OpenTelemetry: %v", err)
		}
	}, nil
}

func runSupervisor(ctx context.Context, cfg config.RunConfig) error {
	log := logger.New("supervisor")

	spawner, err := runtime.NewExecSpawner()
	if err != nil {
		return log.Errorf("cannot start worker pool: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runtime.NewSupervisor(cfg, spawner).Run(ctx); err != nil {
		return log.Errorf("worker pool stopped: %w", err)
	}
	return nil
}

// runWorker serves one runtime until it is signalled. ready may be nil.
func runWorker(cfg config.RunConfig, slot int, ready func()) error {
	log := logger.New("worker")

	opts := []runtime.Option{runtime.WithSlot(slot)}
	if ready != nil {
		opts = append(opts, runtime.WithReadyNotifier(ready))
	}

	rt, err := runtime.NewRuntime(cfg, opts...)
	if err != nil {
		return log.Errorf("failed to initialize worker: %w", err)
	}

	if err := rt.Start(); err != nil {
		return log.Errorf("server error: %w", err)
	}
	return nil
}

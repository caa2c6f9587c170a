package cmd

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hyperterse/hypercluster/core/logger"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "hypercluster",
	Short:         "Hypercluster\nProduct catalog server with a supervised worker pool and real-time fan-out",
	Version:       "dev",
	SilenceUsage:  true,
	SilenceErrors: true, // Errors are already logged, suppress Cobra's error output
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

// SetVersion sets the version reported by --version and exported with
// telemetry.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version string
func GetVersion() string {
	return rootCmd.Version
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// envFiles are read together; a key from an earlier file wins over a later
// one and the process environment wins over both.
var envFiles = []string{".env.local", ".env"}

// LoadEnvFiles loads the env files of the first directory in dirs that has
// any and returns their paths. Only the primary loads them: workers inherit
// the result through the environment the supervisor passes on.
func LoadEnvFiles(dirs ...string) []string {
	for _, dir := range dirs {
		var found []string
		for _, name := range envFiles {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				found = append(found, path)
			}
		}
		if len(found) == 0 {
			continue
		}
		if err := godotenv.Load(found...); err != nil {
			logger.New("config").Warnf("Failed to load env files from %s: %v", dir, err)
			return nil
		}
		return found
	}
	return nil
}

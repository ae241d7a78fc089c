// cmd/root.go
package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// logLevel is shared by every subcommand's --log-level flag.
var logLevel string

var rootCmd = &cobra.Command{
	Use:   "collsim",
	Short: "Discrete-event simulator for distributed training collectives",
}

// Execute runs the root command, recovering any ConfigError/
// DependencyViolation/BackendError panic at this single edge boundary
// and translating it into a non-zero exit code.
func Execute() {
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				logrus.Errorf("%v", err)
			} else {
				logrus.Errorf("panic: %v", r)
			}
			os.Exit(1)
		}
	}()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func applyLogLevel() {
	level := logLevel
	if env := os.Getenv("AS_LOG_LEVEL"); env != "" && !rootCmd.PersistentFlags().Changed("log-level") {
		level = env
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.Fatalf("invalid log level %q", level)
	}
	logrus.SetLevel(parsed)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error); overridden by AS_LOG_LEVEL")
}

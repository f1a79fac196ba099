// Package cli implements the oss command tree.
package cli

import (
	"log/slog"

	"github.com/me/ossim/internal/logging"
	"github.com/me/ossim/pkg/model"
	"github.com/spf13/cobra"
)

var (
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
)

// NewRootCmd creates the root cobra command for the oss CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "oss",
		Short: "oss: operating-system scheduler simulation",
		Long: `oss drives a logical clock and a bounded pool of worker tasks, polling
one task per tick in round-robin order until every task has used up its
randomly chosen lifetime.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flagDebug {
				flagLogLevel = "debug"
			}
			var err error
			logger, err = buildLogger(flagLogLevel, flagLogFormat)
			return err
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		cmd.PrintErrln(cmd.UsageString())
		return model.NewConfigError(err.Error())
	})

	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newWorkerCmd(),
		newHistoryCmd(),
	)
	return root
}

func buildLogger(level, format string) (*slog.Logger, error) {
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return nil, model.NewConfigError(err.Error(), model.FieldError{Field: "log_level", Message: level})
	}
	f, err := logging.ParseFormat(format)
	if err != nil {
		return nil, model.NewConfigError(err.Error(), model.FieldError{Field: "log_format", Message: format})
	}
	return logging.NewLogger(lvl, f), nil
}

// noArgs rejects positional arguments as a configuration error.
func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return model.NewConfigError(err.Error())
	}
	return nil
}

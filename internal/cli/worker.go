package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/me/ossim/internal/clock"
	"github.com/me/ossim/internal/ipc"
	"github.com/me/ossim/internal/worker"
	"github.com/me/ossim/pkg/model"
	"github.com/spf13/cobra"
)

// newWorkerCmd is the task body the process executor starts. Polls arrive
// on stdin and replies leave on stdout.
func newWorkerCmd() *cobra.Command {
	var (
		budget    model.Budget
		clockPath string
	)

	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Run one worker task (started by oss run --mode process)",
		Hidden: true,
		Args:   noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if clockPath == "" {
				return model.NewConfigError("missing required option", model.FieldError{Field: "clock", Message: "path to the shared clock is required"})
			}
			if budget.Nanoseconds >= model.NanosPerSecond {
				return model.NewConfigError("invalid budget", model.FieldError{Field: "nanos", Message: "must be below one second"})
			}

			shared, err := clock.OpenShared(clockPath)
			if err != nil {
				return &model.ResourceError{Resource: "shared clock", Err: err}
			}
			defer shared.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ep := ipc.NewStreamEndpoint(os.Stdin, cmd.OutOrStdout())
			w := worker.New(worker.Config{
				ID:     model.TaskID(os.Getpid()),
				Parent: os.Getppid(),
				Budget: budget,
			}, shared, ep, logger)
			if err := w.Run(ctx); err != nil && !worker.IsStopped(err) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().Uint32Var(&budget.Seconds, "seconds", 0, "Lifetime budget, whole seconds")
	cmd.Flags().Uint32Var(&budget.Nanoseconds, "nanos", 0, "Lifetime budget, nanoseconds")
	cmd.Flags().StringVar(&clockPath, "clock", "", "Shared clock file")
	return cmd
}

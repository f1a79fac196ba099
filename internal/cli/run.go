package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/me/ossim/internal/clock"
	"github.com/me/ossim/internal/config"
	"github.com/me/ossim/internal/executor"
	"github.com/me/ossim/internal/scheduler"
	"github.com/me/ossim/internal/server"
	"github.com/me/ossim/internal/store"
	"github.com/me/ossim/internal/tablelog"
	"github.com/me/ossim/pkg/model"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var configPath string
	flags := config.DefaultRunConfig()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler simulation",
		Example: `  oss run -n 5 -s 3 -t 7 -f oss.log
  oss run --config oss.yaml --mode process --db runs.db`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveRunConfig(cmd, configPath, flags)
			if err != nil {
				cmd.PrintErrln(cmd.UsageString())
				return err
			}
			return runCoordinator(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "YAML file with run options; flags override it")
	f.IntVarP(&flags.Total, "total", "n", 0, "Total number of tasks to launch")
	f.IntVarP(&flags.Simultaneous, "simultaneous", "s", 0, fmt.Sprintf("Tasks allowed to run at once (1-%d)", config.MaxSimultaneous))
	f.IntVarP(&flags.TimeLimit, "time-limit", "t", 0, "Upper bound of a task's lifetime in logical seconds")
	f.StringVarP(&flags.LogFile, "log-file", "f", "", "File the process table and message log are appended to")
	f.DurationVar(&flags.Timeout, "timeout", flags.Timeout, "Real-time limit of the whole run")
	f.Uint64Var(&flags.Seed, "seed", 0, "Random seed for budgets and snapshot jitter (0 = time-derived)")
	f.StringVar((*string)(&flags.Mode), "mode", string(flags.Mode), "Worker hosting: inproc or process")
	f.DurationVar(&flags.ClockStep, "clock-step", flags.ClockStep, "Logical time added per iteration")
	f.DurationVar(&flags.SnapshotInterval, "snapshot-interval", flags.SnapshotInterval, "Logical time between table snapshots")
	f.DurationVar(&flags.ReplyTimeout, "reply-timeout", flags.ReplyTimeout, "Real time to wait for one reply (0 = no limit)")
	f.StringVar(&flags.DBPath, "db", "", "SQLite database recording the run's audit trail")
	f.StringVar(&flags.StatusAddr, "status-addr", "", "Serve the status API on this address while running")

	return cmd
}

// resolveRunConfig layers defaults, the optional config file and explicitly
// set flags, then validates the result.
func resolveRunConfig(cmd *cobra.Command, configPath string, flags config.RunConfig) (config.RunConfig, error) {
	cfg := config.DefaultRunConfig()
	cfg.LogLevel = flagLogLevel
	cfg.LogFormat = flagLogFormat
	if configPath != "" {
		if err := config.LoadFile(configPath, &cfg); err != nil {
			return cfg, err
		}
	}

	changed := cmd.Flags().Changed
	overrides := []struct {
		flag  string
		apply func()
	}{
		{"total", func() { cfg.Total = flags.Total }},
		{"simultaneous", func() { cfg.Simultaneous = flags.Simultaneous }},
		{"time-limit", func() { cfg.TimeLimit = flags.TimeLimit }},
		{"log-file", func() { cfg.LogFile = flags.LogFile }},
		{"timeout", func() { cfg.Timeout = flags.Timeout }},
		{"seed", func() { cfg.Seed = flags.Seed }},
		{"mode", func() { cfg.Mode = flags.Mode }},
		{"clock-step", func() { cfg.ClockStep = flags.ClockStep }},
		{"snapshot-interval", func() { cfg.SnapshotInterval = flags.SnapshotInterval }},
		{"reply-timeout", func() { cfg.ReplyTimeout = flags.ReplyTimeout }},
		{"db", func() { cfg.DBPath = flags.DBPath }},
		{"status-addr", func() { cfg.StatusAddr = flags.StatusAddr }},
		{"log-level", func() { cfg.LogLevel = flagLogLevel }},
		{"log-format", func() { cfg.LogFormat = flagLogFormat }},
	}
	for _, o := range overrides {
		if changed(o.flag) {
			o.apply()
		}
	}
	if flagDebug {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// runCoordinator acquires the run's resources, drives the coordinator loop to
// completion and reports the outcome.
func runCoordinator(ctx context.Context, cfg config.RunConfig, stdout io.Writer) error {
	if err := config.CheckLogWritable(cfg.LogFile); err != nil {
		return err
	}
	log, err := buildLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}
	runID := uuid.NewString()
	coordID := os.Getpid()
	log = log.With("run_id", runID)

	tlog, err := tablelog.Open(cfg.LogFile, stdout)
	if err != nil {
		return model.NewConfigError("log destination is not writable", model.FieldError{Field: "log_file", Message: err.Error()})
	}
	defer tlog.Close()
	recorders := scheduler.MultiRecorder{tlog}

	var st store.Store
	run := &model.Run{
		ID:            runID,
		CoordinatorID: coordID,
		Mode:          cfg.Mode,
		Total:         cfg.Total,
		Simultaneous:  cfg.Simultaneous,
		TimeLimit:     cfg.TimeLimit,
		Seed:          cfg.Seed,
		State:         model.RunStateRunning,
		CreatedAt:     time.Now().UTC(),
	}
	if cfg.DBPath != "" {
		sqlStore, err := openStore(ctx, cfg.DBPath, log)
		if err != nil {
			return &model.ResourceError{Resource: "audit database", Err: err}
		}
		defer sqlStore.Close()
		if err := sqlStore.CreateRun(ctx, run); err != nil {
			return &model.ResourceError{Resource: "audit database", Err: err}
		}
		st = sqlStore
		recorders = append(recorders, sqlStore)
	}

	storage, cleanup, err := acquireClock(cfg.Mode)
	if err != nil {
		return &model.ResourceError{Resource: "shared clock", Err: err}
	}
	defer cleanup()
	clk := clock.New(storage)

	reg := executor.DefaultRegistry(log)
	exec, err := reg.New(cfg.Mode, executor.Options{
		Clock: clk.Reader(),
		Process: executor.ProcessConfig{
			ClockPath: sharedPath(storage),
			Args:      []string{"worker", "--log-level", cfg.LogLevel, "--log-format", cfg.LogFormat},
			Stderr:    os.Stderr,
		},
	})
	if err != nil {
		clk.Close()
		return &model.ResourceError{Resource: "message channel", Err: err}
	}

	schedCfg := scheduler.Config{
		Total:            cfg.Total,
		Simultaneous:     cfg.Simultaneous,
		ClockStep:        cfg.ClockStep,
		SnapshotInterval: cfg.SnapshotInterval,
		SnapshotJitter:   cfg.SnapshotJitter,
		ReplyTimeout:     cfg.ReplyTimeout,
		ReapAttempts:     cfg.ReapAttempts,
		ReapBackoff:      cfg.ReapBackoff,
		Seed:             cfg.Seed,
		RunID:            runID,
		CoordinatorID:    coordID,
	}
	loop, err := scheduler.NewLoop(schedCfg, scheduler.Deps{
		Clock:    clk,
		Executor: exec,
		Budgets:  scheduler.NewRandomBudgets(cfg.TimeLimit, cfg.Seed),
		Recorder: recorders,
	}, log)
	if err != nil {
		exec.Close()
		clk.Close()
		return err
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stopSignals := cancelOnSignal(ctx, cancel, log)
	defer stopSignals()
	ctx, stop := context.WithTimeoutCause(ctx, cfg.Timeout, model.ErrTimeout)
	defer stop()

	if cfg.StatusAddr != "" {
		srvCtx, srvCancel := context.WithCancel(context.Background())
		defer srvCancel()
		srv := server.New(loop, st, log, server.WithRun(runID, cfg.Mode))
		go func() {
			if err := srv.Serve(srvCtx, cfg.StatusAddr, nil); err != nil {
				log.Error("status server", "error", err)
			}
		}()
	}

	log.Info("run started", "mode", cfg.Mode, "seed", cfg.Seed, "log_file", cfg.LogFile)
	sum, runErr := loop.Run(ctx)

	if st != nil {
		finishRun(run, sum, runErr)
		if err := st.FinishRun(context.WithoutCancel(ctx), run); err != nil {
			log.Warn("record run outcome", "error", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(stdout, "OSS: simulation finished at time %s; %d tasks launched; process table empty: %t\n",
		sum.FinalClock, sum.Launched, sum.Occupied == 0)
	return nil
}

func openStore(ctx context.Context, path string, log *slog.Logger) (*store.SQLiteStore, error) {
	st, err := store.NewSQLiteStore(path, log)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

// acquireClock returns the clock storage for mode and a function removing
// anything it created on disk.
func acquireClock(mode model.ExecutionMode) (clock.Storage, func(), error) {
	if mode != model.ModeProcess {
		return clock.NewMemory(), func() {}, nil
	}
	dir, err := os.MkdirTemp("", "oss-clock-*")
	if err != nil {
		return nil, nil, err
	}
	shared, err := clock.CreateShared(filepath.Join(dir, "clock"))
	if err != nil {
		os.RemoveAll(dir)
		return nil, nil, err
	}
	return shared, func() { os.RemoveAll(dir) }, nil
}

func sharedPath(s clock.Storage) string {
	if p, ok := s.(interface{ Path() string }); ok {
		return p.Path()
	}
	return ""
}

// cancelOnSignal cancels ctx with model.ErrCancelled on SIGINT or SIGTERM.
func cancelOnSignal(ctx context.Context, cancel context.CancelCauseFunc, log *slog.Logger) func() {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigc:
			log.Warn("signal received", "signal", sig.String())
			cancel(model.ErrCancelled)
		case <-ctx.Done():
		}
	}()
	return func() { signal.Stop(sigc) }
}

func finishRun(run *model.Run, sum scheduler.Summary, err error) {
	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Launched = sum.Launched
	run.FinalClock = sum.FinalClock

	var ierr *model.InterruptError
	switch {
	case err == nil:
		run.State = model.RunStateCompleted
	case errors.As(err, &ierr):
		run.State = model.RunStateInterrupted
		run.Error = err.Error()
	default:
		run.State = model.RunStateFailed
		run.Error = err.Error()
	}
}

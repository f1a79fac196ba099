package executor

import (
	"fmt"
	"log/slog"

	"github.com/me/ossim/internal/clock"
	"github.com/me/ossim/pkg/model"
)

// Options carries everything a Factory may need to build an executor.
type Options struct {
	Clock   clock.Reader
	Process ProcessConfig
}

// Factory builds an Executor for one run.
type Factory func(opts Options, logger *slog.Logger) (Executor, error)

// Registry maps ExecutionMode values to the factories that build them.
// Registration happens at startup before concurrent access, so no mutex is needed.
type Registry struct {
	factories map[model.ExecutionMode]Factory
	logger    *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		factories: make(map[model.ExecutionMode]Factory),
		logger:    logger.With("component", "executor-registry"),
	}
}

// DefaultRegistry returns a registry holding the inproc and process backends.
func DefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register(model.ModeInproc, func(opts Options, logger *slog.Logger) (Executor, error) {
		if opts.Clock == nil {
			return nil, fmt.Errorf("inproc executor: no clock reader")
		}
		return NewInproc(opts.Clock, logger)
	})
	r.Register(model.ModeProcess, func(opts Options, logger *slog.Logger) (Executor, error) {
		return NewProcess(opts.Process, logger)
	})
	return r
}

// Register adds a factory for mode, replacing any earlier one.
func (r *Registry) Register(mode model.ExecutionMode, f Factory) {
	r.factories[mode] = f
	r.logger.Debug("executor registered", "mode", mode)
}

// New builds the executor for mode or returns an error if none is registered.
func (r *Registry) New(mode model.ExecutionMode, opts Options) (Executor, error) {
	f, ok := r.factories[mode]
	if !ok {
		return nil, fmt.Errorf("no executor registered for mode %q", mode)
	}
	return f(opts, r.logger)
}

// Modes lists the registered modes, for usage text.
func (r *Registry) Modes() []model.ExecutionMode {
	out := make([]model.ExecutionMode, 0, len(r.factories))
	for _, m := range []model.ExecutionMode{model.ModeInproc, model.ModeProcess} {
		if _, ok := r.factories[m]; ok {
			out = append(out, m)
		}
	}
	return out
}

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/omnitool/omnitool/internal/history"
	"github.com/omnitool/omnitool/internal/model"
	"github.com/omnitool/omnitool/internal/service"
	"github.com/omnitool/omnitool/internal/telemetry"
)

// Engine is the state shared by every request: configuration, the worker
// supervisor and the observers of finished tasks.
type Engine struct {
	cfg        model.Config
	supervisor *service.Supervisor
	recorders  []model.Recorder
	picker     DirectoryPicker
}

type engineOptions struct {
	cmd        *service.Command
	recorders  []model.Recorder
	metrics    *telemetry.Metrics
	picker     DirectoryPicker
	svcOptions []service.Option
}

type EngineOption func(*engineOptions)

// WithCommand overrides the worker command built from the configuration.
func WithCommand(cmd service.Command) EngineOption {
	return func(o *engineOptions) { o.cmd = &cmd }
}

// WithRecorder adds a recorder of finished tasks. A model.RecordCloser is
// closed with the engine.
func WithRecorder(r model.Recorder) EngineOption {
	return func(o *engineOptions) { o.recorders = append(o.recorders, r) }
}

func WithMetrics(m *telemetry.Metrics) EngineOption {
	return func(o *engineOptions) { o.metrics = m }
}

// WithPicker overrides the directory picker from the configuration.
func WithPicker(p DirectoryPicker) EngineOption {
	return func(o *engineOptions) { o.picker = p }
}

func WithSupervisorOptions(opts ...service.Option) EngineOption {
	return func(o *engineOptions) { o.svcOptions = append(o.svcOptions, opts...) }
}

// NewEngine starts an engine. Cancelling ctx terminates every worker, Close
// additionally waits for them and releases the recorders.
func NewEngine(ctx context.Context, cfg model.Config, opts ...EngineOption) (*Engine, error) {
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.History.Enabled {
		path := cfg.History.Path
		if path == "" {
			var err error
			path, err = DefaultHistoryPath()
			if err != nil {
				return nil, err
			}
		}
		store, err := history.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		o.recorders = append(o.recorders, store)
	}

	e := &Engine{
		cfg:       cfg,
		recorders: o.recorders,
		picker:    o.picker,
	}
	if e.picker == nil && len(cfg.Engine.Picker) > 0 {
		e.picker = CommandPicker{Path: cfg.Engine.Picker[0], Args: cfg.Engine.Picker[1:]}
	}

	cmd := service.CommandFromConfig(cfg.Worker)
	if o.cmd != nil {
		cmd = *o.cmd
	}
	svcOpts := []service.Option{
		service.WithGracePeriod(cfg.Worker.Grace()),
		service.WithExitFunc(e.record),
	}
	if o.metrics != nil {
		svcOpts = append(svcOpts, o.metrics.Options()...)
	}
	svcOpts = append(svcOpts, o.svcOptions...)
	e.supervisor = service.NewSupervisor(ctx, cmd, svcOpts...)
	return e, nil
}

// DefaultHistoryPath is the history database in the user cache dir.
func DefaultHistoryPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locating history: %w", err)
	}
	return filepath.Join(dir, "omnitool", "history.db"), nil
}

func (e *Engine) Config() model.Config { return e.cfg }

func (e *Engine) Supervisor() *service.Supervisor { return e.supervisor }

func (e *Engine) record(ctx context.Context, exit service.Exit) {
	rec := exit.Record()
	for _, r := range e.recorders {
		if err := r.Record(ctx, rec); err != nil {
			slog.ErrorContext(ctx, "recording task has failed", "error", err)
		}
	}
}

// Close terminates every worker, waits for them and closes the recorders.
func (e *Engine) Close() error {
	errs := []error{e.supervisor.Close()}
	for _, r := range e.recorders {
		if closer, ok := r.(model.RecordCloser); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing recorder: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}

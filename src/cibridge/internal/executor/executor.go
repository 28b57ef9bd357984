// Package executor starts external commands for cibridge.
package executor

import (
	"os/exec"

	tally "github.com/uber-go/tally/v4"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides a module to inject using fx.
var Module = fx.Options(
	fx.Provide(func(logger *zap.SugaredLogger, stats tally.Scope) Executor {
		return NewExecutor(WithLogger(logger), WithStats(stats))
	}),
)

// Executor wraps the launching of "os/exec".Cmd's so that every launch is logged and counted, and tests can skip real processes.
type Executor interface {
	// Start logs and starts the Cmd without waiting for it to complete.
	Start(cmd *exec.Cmd) error
}

type executorImp struct {
	logger *zap.SugaredLogger
	stats  tally.Scope
	// startFunc may be nil to skip launching in tests.
	startFunc func(cmd *exec.Cmd) error
}

// Option customizes an Executor.
type Option func(*executorImp)

// WithLogger overrides the default noop logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(e *executorImp) {
		e.logger = logger
	}
}

// WithStats records launches under the "executor" sub scope.
func WithStats(stats tally.Scope) Option {
	return func(e *executorImp) {
		e.stats = stats.SubScope("executor")
	}
}

// WithStartFunc replaces how commands are started.
func WithStartFunc(startFunc func(cmd *exec.Cmd) error) Option {
	return func(e *executorImp) {
		e.startFunc = startFunc
	}
}

// NewExecutor creates an Executor that starts commands with (*exec.Cmd).Start.
func NewExecutor(opts ...Option) Executor {
	e := &executorImp{
		logger:    zap.NewNop().Sugar(),
		stats:     tally.NoopScope,
		startFunc: func(cmd *exec.Cmd) error { return cmd.Start() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *executorImp) Start(cmd *exec.Cmd) error {
	args := []string{}
	if len(cmd.Args) > 1 {
		args = cmd.Args[1:]
	}
	e.logger.Infow("starting process", "path", cmd.Path, "dir", cmd.Dir, "args", args)

	if e.startFunc == nil {
		e.logger.Warn("no start function, process skipped")
		return nil
	}

	if err := e.startFunc(cmd); err != nil {
		e.stats.Counter("start_failures").Inc(1)
		return err
	}
	e.stats.Counter("starts").Inc(1)
	if cmd.Process != nil {
		e.logger.Debugw("process started", "path", cmd.Path, "pid", cmd.Process.Pid)
	}
	return nil
}

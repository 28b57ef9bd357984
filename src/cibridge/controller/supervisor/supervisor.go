// Package supervisor owns the lifecycle of the local code intelligence daemon.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	tally "github.com/uber-go/tally/v4"
	healthmonitor "github.com/uber/cibridge/src/cibridge/controller/health-monitor"
	"github.com/uber/cibridge/src/cibridge/entity"
	ideclient "github.com/uber/cibridge/src/cibridge/gateway/ide-client"
	"github.com/uber/cibridge/src/cibridge/internal/clock"
	"github.com/uber/cibridge/src/cibridge/internal/logfilewriter"
	"github.com/uber/cibridge/src/cibridge/internal/process"
	"github.com/uber/cibridge/src/cibridge/internal/serverinfofile"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	_nameKey         = "supervisor"
	_configKeyDaemon = "daemon"

	_defaultPort              = 10881
	_defaultIdleTimeout       = 30 * time.Minute
	_defaultMissingDepPattern = "No module named codeintel"
	_defaultMissingDepMessage = "CodeIntel package not found. Please run 'pip install codeintel' or 'sudo pip install codeintel' to enable code completion."

	_spawnFailedMessage = "Could not start the code intelligence daemon. Please reload to try again."
	_eventBuffer        = 16
	_noticeBuffer       = 64
)

var errStopped = errors.New("daemon supervisor stopped")

// Controller supervises a single daemon process.
type Controller interface {
	// EnsureReady starts the daemon if needed. The caller that triggers a spawn waits until the daemon listens or exits;
	// everyone else gets the current state immediately. dontRetry reports that a failed exchange must not trigger a respawn.
	EnsureReady(ctx context.Context) (dontRetry bool, err error)
	// Warm starts the daemon in the background without waiting for it.
	Warm(ctx context.Context)
	// Discard forgets the current daemon, terminating it if it is still running. The next EnsureReady spawns a new one.
	Discard(ctx context.Context) error
	// Status reports the current daemon state.
	Status(ctx context.Context) (entity.DaemonStatus, error)
}

// Params are inbound parameters to initialize a new supervisor.
type Params struct {
	fx.In

	Config         config.Provider
	Lifecycle      fx.Lifecycle
	Spawner        process.Spawner
	HealthMonitor  healthmonitor.Controller
	IdeGateway     ideclient.Gateway
	Clock          clock.Clock
	ServerInfoFile serverinfofile.ServerInfoFile
	OutputFile     logfilewriter.OutputFile
	Logger         *zap.SugaredLogger
	Stats          tally.Scope
}

type missingDependency struct {
	Pattern string `yaml:"pattern"`
	Message string `yaml:"message"`
}

type daemonConfig struct {
	LaunchCommand     string            `yaml:"launchCommand"`
	ServerCommand     string            `yaml:"serverCommand"`
	Port              int               `yaml:"port"`
	IdleTimeout       time.Duration     `yaml:"idleTimeout"`
	ForwardOutput     bool              `yaml:"forwardOutput"`
	MissingDependency missingDependency `yaml:"missingDependency"`
}

type controller struct {
	spawner        process.Spawner
	monitor        healthmonitor.Controller
	ideGateway     ideclient.Gateway
	clock          clock.Clock
	serverInfoFile serverinfofile.ServerInfoFile
	output         logfilewriter.OutputFile
	logger         *zap.SugaredLogger
	stats          tally.Scope

	cfg               daemonConfig
	missingDepPattern *regexp.Regexp

	events        chan event
	quit          chan struct{}
	loopDone      chan struct{}
	notices       chan notice
	presenterDone chan struct{}
	pumps         sync.WaitGroup
	stopOnce      sync.Once

	// Owned by the event loop.
	current        *record
	lastGeneration uint64
	hintShown      bool
}

// New creates a daemon supervisor. The event loop runs between the lifecycle start and stop hooks.
func New(p Params) (Controller, error) {
	cfg := daemonConfig{
		Port:        _defaultPort,
		IdleTimeout: _defaultIdleTimeout,
		MissingDependency: missingDependency{
			Pattern: _defaultMissingDepPattern,
			Message: _defaultMissingDepMessage,
		},
	}
	if err := p.Config.Get(_configKeyDaemon).Populate(&cfg); err != nil {
		return nil, fmt.Errorf("getting config field %q: %w", _configKeyDaemon, err)
	}
	if cfg.LaunchCommand != "" && cfg.ServerCommand == "" {
		return nil, fmt.Errorf("missing field %q in config", _configKeyDaemon+".serverCommand")
	}

	var pattern *regexp.Regexp
	if cfg.MissingDependency.Pattern != "" {
		var err error
		if pattern, err = regexp.Compile(cfg.MissingDependency.Pattern); err != nil {
			return nil, fmt.Errorf("compiling missing dependency pattern: %w", err)
		}
	}

	c := &controller{
		spawner:           p.Spawner,
		monitor:           p.HealthMonitor,
		ideGateway:        p.IdeGateway,
		clock:             p.Clock,
		serverInfoFile:    p.ServerInfoFile,
		output:            p.OutputFile,
		logger:            p.Logger.With("plugin", _nameKey),
		stats:             p.Stats.SubScope(_nameKey),
		cfg:               cfg,
		missingDepPattern: pattern,
		events:            make(chan event, _eventBuffer),
		quit:              make(chan struct{}),
		loopDone:          make(chan struct{}),
		notices:           make(chan notice, _noticeBuffer),
		presenterDone:     make(chan struct{}),
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: c.OnStart,
		OnStop:  c.OnStop,
	})
	return c, nil
}

// OnStart publishes the daemon port and starts the event loop.
func (c *controller) OnStart(ctx context.Context) error {
	if err := c.serverInfoFile.UpdateField(serverinfofile.KeyDaemonPort, strconv.Itoa(c.cfg.Port)); err != nil {
		return err
	}
	go c.run()
	go c.runPresenter()
	return nil
}

// OnStop stops the event loop and terminates the owned daemon.
func (c *controller) OnStop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		close(c.quit)
		<-c.loopDone

		if r := c.current; r != nil {
			c.stopIdleTimer(r)
			if r.handle != nil {
				err = multierr.Append(err, r.handle.Terminate())
			}
		}

		pumpsDone := make(chan struct{})
		go func() {
			c.pumps.Wait()
			close(pumpsDone)
		}()
		select {
		case <-pumpsDone:
		case <-ctx.Done():
			err = multierr.Append(err, fmt.Errorf("waiting for daemon output: %w", ctx.Err()))
		}

		// The loop was the only sender.
		close(c.notices)
		select {
		case <-c.presenterDone:
		case <-ctx.Done():
			err = multierr.Append(err, fmt.Errorf("waiting for notifications: %w", ctx.Err()))
		}
	})
	return err
}

func (c *controller) EnsureReady(ctx context.Context) (bool, error) {
	if c.external() {
		return true, nil
	}
	reply := make(chan readiness, 1)
	if err := c.post(ctx, ensureEvent{reply: reply}); err != nil {
		return false, err
	}

	select {
	case r := <-reply:
		return r.dontRetry, r.err
	case <-ctx.Done():
		return false, ctx.Err()
	case <-c.quit:
		return false, errStopped
	}
}

func (c *controller) Warm(ctx context.Context) {
	if c.external() {
		return
	}
	if err := c.post(ctx, ensureEvent{}); err != nil {
		c.logger.Debugf("warming daemon: %v", err)
	}
}

func (c *controller) Discard(ctx context.Context) error {
	done := make(chan struct{})
	if err := c.post(ctx, discardEvent{done: done}); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.quit:
		return errStopped
	}
}

func (c *controller) Status(ctx context.Context) (entity.DaemonStatus, error) {
	reply := make(chan entity.DaemonStatus, 1)
	if err := c.post(ctx, statusEvent{reply: reply}); err != nil {
		return entity.DaemonStatus{}, err
	}

	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return entity.DaemonStatus{}, ctx.Err()
	case <-c.quit:
		return entity.DaemonStatus{}, errStopped
	}
}

// external reports that no launch command is configured. The daemon on the port is then managed by someone else and is never spawned.
func (c *controller) external() bool {
	return c.cfg.LaunchCommand == ""
}

// post queues an event for the loop.
func (c *controller) post(ctx context.Context, ev event) error {
	select {
	case c.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.quit:
		return errStopped
	}
}

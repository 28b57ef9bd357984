package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	healthmonitor "github.com/uber/cibridge/src/cibridge/controller/health-monitor"
	"github.com/uber/cibridge/src/cibridge/entity"
	"github.com/uber/cibridge/src/cibridge/internal/clock"
	cibridgeerrors "github.com/uber/cibridge/src/cibridge/internal/errors"
	"github.com/uber/cibridge/src/cibridge/internal/process"
	"github.com/uber/cibridge/src/cibridge/internal/serverinfofile"
	"go.lsp.dev/protocol"
)

const (
	_exitPortInUse  = 98
	_launchShell    = "bash"
	_maxOutputBytes = 64 * 1024
	_outputPrefix   = "daemon"
)

type event interface{}

// notice is a user-facing side effect applied outside the loop.
type notice func(ctx context.Context)

type ensureEvent struct {
	// reply is nil when nobody waits for the outcome.
	reply chan readiness
}

type lineEvent struct {
	generation uint64
	line       string
}

type exitEvent struct {
	generation uint64
	exit       process.Exit
}

type idleEvent struct {
	generation uint64
}

type discardEvent struct {
	done chan struct{}
}

type statusEvent struct {
	reply chan entity.DaemonStatus
}

type readiness struct {
	dontRetry bool
	err       error
}

// record is one daemon incarnation. It is replaced wholesale on respawn.
type record struct {
	generation uint64
	state      entity.DaemonState
	handle     process.Handle
	lastError  error
	listening  bool
	output     []byte
	idleTimer  clock.Timer
	waiter     chan readiness
}

func (r *record) readiness() readiness {
	switch r.state {
	case entity.DaemonStarting:
		return readiness{err: cibridgeerrors.ErrStillStarting}
	case entity.DaemonFatal, entity.DaemonSpawnFailed:
		return readiness{dontRetry: true, err: r.lastError}
	default:
		return readiness{}
	}
}

func (r *record) appendOutput(line string) {
	r.output = append(r.output, line...)
	r.output = append(r.output, '\n')
	if over := len(r.output) - _maxOutputBytes; over > 0 {
		r.output = r.output[over:]
	}
}

// run applies events one at a time. It is the only goroutine touching records.
func (c *controller) run() {
	defer close(c.loopDone)
	ctx := context.Background()

	for {
		select {
		case ev := <-c.events:
			c.handle(ctx, ev)
		case <-c.quit:
			return
		}
	}
}

func (c *controller) handle(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case ensureEvent:
		c.handleEnsure(ctx, ev)
	case lineEvent:
		c.handleLine(ctx, ev)
	case exitEvent:
		c.handleExit(ctx, ev)
	case idleEvent:
		c.handleIdle(ev)
	case discardEvent:
		c.handleDiscard(ctx, ev)
	case statusEvent:
		ev.reply <- c.status()
	default:
		c.logger.Errorf("unknown supervisor event %T", ev)
	}
}

func (c *controller) handleEnsure(ctx context.Context, ev ensureEvent) {
	if c.current == nil {
		c.spawn(ctx, ev.reply)
		return
	}
	c.reply(ctx, ev.reply, c.current.readiness())
}

func (c *controller) spawn(ctx context.Context, waiter chan readiness) {
	c.lastGeneration++
	r := &record{
		generation: c.lastGeneration,
		state:      entity.DaemonStarting,
		lastError:  cibridgeerrors.ErrStillStarting,
		waiter:     waiter,
	}
	c.current = r

	var output io.Writer = c.output.Writer(r.generation)
	if c.cfg.ForwardOutput {
		output = io.MultiWriter(output, c.ideGateway.GetLogMessageWriter(context.Background(), _outputPrefix))
	}

	serverLine := fmt.Sprintf("%s daemon --port %d", c.cfg.ServerCommand, c.cfg.Port)
	h, err := c.spawner.Spawn(ctx, process.Spec{
		Command: _launchShell,
		Args:    []string{"-c", c.cfg.LaunchCommand, serverLine},
		Env:     os.Environ(),
		Output:  output,
	})
	if err != nil {
		c.stats.Counter("spawn_failures").Inc(1)
		c.logger.Errorw("could not start daemon", "generation", r.generation, "error", err)
		r.state = entity.DaemonSpawnFailed
		r.lastError = &cibridgeerrors.SpawnError{Command: c.cfg.ServerCommand, Err: err}
		c.showError(ctx, _spawnFailedMessage)
		c.release(ctx, r, readiness{dontRetry: true, err: r.lastError})
		return
	}

	r.handle = h
	c.stats.Counter("spawns").Inc(1)
	c.logger.Infow("daemon started", "generation", r.generation, "pid", h.PID())
	if err := c.serverInfoFile.UpdateField(serverinfofile.KeyDaemonPID, strconv.Itoa(h.PID())); err != nil {
		c.logger.Warnf("publishing daemon pid: %v", err)
	}

	c.pumps.Add(1)
	go c.pump(r.generation, h)
}

// pump forwards the diagnostics of one daemon, then its exit, to the loop.
func (c *controller) pump(generation uint64, h process.Handle) {
	defer c.pumps.Done()
	ctx := context.Background()

	for line := range h.Lines() {
		if err := c.post(ctx, lineEvent{generation: generation, line: line}); err != nil {
			for range h.Lines() {
			}
			return
		}
	}

	select {
	case <-h.Done():
	case <-c.quit:
		return
	}
	_ = c.post(ctx, exitEvent{generation: generation, exit: h.Exit()})
}

func (c *controller) handleLine(ctx context.Context, ev lineEvent) {
	r := c.current
	if r == nil || r.generation != ev.generation {
		return
	}

	r.appendOutput(ev.line)
	signal := healthmonitor.Classify(ev.line)
	if signal.Kind == entity.SignalNone {
		return
	}
	line := ev.line
	c.present(func(ctx context.Context) { c.monitor.Observe(ctx, line) })
	if signal.Kind != entity.SignalListening {
		return
	}

	r.listening = true
	if r.state != entity.DaemonStarting {
		return
	}
	r.state = entity.DaemonListening
	r.lastError = nil
	generation := r.generation
	r.idleTimer = c.clock.AfterFunc(c.cfg.IdleTimeout, func() {
		_ = c.post(context.Background(), idleEvent{generation: generation})
	})
	c.logger.Infow("daemon listening", "generation", r.generation, "port", c.cfg.Port)
	c.release(ctx, r, readiness{})
}

func (c *controller) handleExit(ctx context.Context, ev exitEvent) {
	r := c.current
	if r == nil || r.generation != ev.generation {
		return
	}

	c.stopIdleTimer(r)
	c.present(c.monitor.Reset)
	code := ev.exit.Code
	c.logger.Infow("daemon exited", "generation", r.generation, "code", code, "state", r.state)

	if code == _exitPortInUse && r.state == entity.DaemonStarting {
		// Another daemon already owns the port and serves requests.
		c.stats.Counter("already_serving").Inc(1)
		r.state = entity.DaemonAlreadyServing
		r.lastError = nil
		c.release(ctx, r, readiness{dontRetry: true})
		return
	}

	if code == 0 || r.listening {
		c.current = nil
		var err error
		if code != 0 {
			err = &cibridgeerrors.CrashError{ExitCode: code, Output: string(r.output)}
		}
		c.release(ctx, r, readiness{dontRetry: true, err: err})
		return
	}

	c.stats.Counter("crashes").Inc(1)
	r.state = entity.DaemonFatal
	r.lastError = &cibridgeerrors.CrashError{ExitCode: code, Output: string(r.output)}
	c.release(ctx, r, readiness{dontRetry: true, err: r.lastError})
}

func (c *controller) handleIdle(ev idleEvent) {
	r := c.current
	if r == nil || r.generation != ev.generation || r.state != entity.DaemonListening {
		return
	}

	c.stats.Counter("idle_kills").Inc(1)
	c.logger.Infow("recycling idle daemon", "generation", r.generation, "idleTimeout", c.cfg.IdleTimeout)
	if err := r.handle.Terminate(); err != nil {
		c.logger.Errorf("terminating idle daemon: %v", err)
	}
}

func (c *controller) handleDiscard(ctx context.Context, ev discardEvent) {
	defer close(ev.done)

	r := c.current
	if r == nil {
		return
	}
	c.current = nil
	c.stats.Counter("discards").Inc(1)
	c.logger.Infow("discarding daemon", "generation", r.generation, "state", r.state)

	c.stopIdleTimer(r)
	c.present(c.monitor.Reset)
	if r.handle != nil && r.handle.Alive() {
		if err := r.handle.Terminate(); err != nil {
			c.logger.Errorf("terminating discarded daemon: %v", err)
		}
	}
	c.release(ctx, r, readiness{err: cibridgeerrors.ErrStillStarting})
}

func (c *controller) status() entity.DaemonStatus {
	s := entity.DaemonStatus{
		State:      entity.DaemonAbsent,
		Generation: c.lastGeneration,
		Port:       c.cfg.Port,
	}
	r := c.current
	if r == nil {
		return s
	}

	s.State = r.state
	if r.lastError != nil {
		s.LastError = r.lastError.Error()
	}
	if r.handle != nil && r.handle.Alive() {
		s.PID = r.handle.PID()
		rss, err := r.handle.MemoryRSS()
		if err != nil {
			c.logger.Debugf("reading daemon memory: %v", err)
		} else {
			s.MemoryRSS = rss
			c.stats.Gauge("daemon_rss").Update(float64(rss))
		}
	}
	return s
}

// release answers the caller blocked on the record, if any.
func (c *controller) release(ctx context.Context, r *record, res readiness) {
	waiter := r.waiter
	r.waiter = nil
	c.reply(ctx, waiter, res)
}

func (c *controller) reply(ctx context.Context, ch chan readiness, res readiness) {
	if res.err != nil {
		c.hintMissingDependency(ctx, res.err)
	}
	if ch != nil {
		ch <- res
	}
}

// hintMissingDependency tells the user once per process how to install a missing analysis package.
func (c *controller) hintMissingDependency(ctx context.Context, err error) {
	if c.hintShown || !cibridgeerrors.IsMissingDependency(err, c.missingDepPattern) {
		return
	}
	c.hintShown = true
	c.showError(ctx, c.cfg.MissingDependency.Message)
}

func (c *controller) showError(_ context.Context, message string) {
	c.present(func(ctx context.Context) {
		if err := c.ideGateway.ShowMessage(ctx, &protocol.ShowMessageParams{
			Type:    protocol.MessageTypeError,
			Message: message,
		}); err != nil {
			c.logger.Warnf("showing daemon error: %v", err)
		}
	})
}

// present queues a user notification. A slow IDE must never stall the loop, so a full queue drops the notification.
func (c *controller) present(n notice) {
	select {
	case c.notices <- n:
	default:
		c.stats.Counter("dropped_notices").Inc(1)
		c.logger.Warn("notification queue full, dropping notification")
	}
}

// runPresenter applies notifications in the order the loop queued them.
func (c *controller) runPresenter() {
	defer close(c.presenterDone)
	ctx := context.Background()
	for n := range c.notices {
		n(ctx)
	}
}

func (c *controller) stopIdleTimer(r *record) {
	if r.idleTimer != nil {
		r.idleTimer.Stop()
		r.idleTimer = nil
	}
}

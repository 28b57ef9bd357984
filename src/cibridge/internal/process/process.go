// Package process starts and stops supervised child processes and streams their diagnostics.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/uber/cibridge/src/cibridge/internal/executor"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const (
	_configKeyStopGracePeriod = "daemon.stopGracePeriod"
	_defaultStopGracePeriod   = 5 * time.Second
	_linesBuffer              = 64
	_maxLineBytes             = 1024 * 1024
	_readBufferBytes          = 64 * 1024
)

// Module provides a Spawner.
var Module = fx.Provide(New)

// Spec describes a process to start.
type Spec struct {
	Command string
	Args    []string
	Env     []string
	Dir     string
	// Output receives stdout and a copy of every stderr line, if set.
	Output io.Writer
}

// Exit is the final status of a process. Code is -1 when the process was killed by a signal.
type Exit struct {
	Code int
	Err  error
}

// Handle is a running child process.
type Handle interface {
	// PID returns the process id, which is also its process group id.
	PID() int
	// Alive reports whether the process has not been reaped yet.
	Alive() bool
	// Lines streams stderr line by line and is closed before Done.
	Lines() <-chan string
	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}
	// Exit returns the exit status. Only valid after Done is closed.
	Exit() Exit
	// Terminate sends SIGTERM to the process group and SIGKILL after the grace period.
	Terminate() error
	// MemoryRSS returns the resident set size of the process in bytes.
	MemoryRSS() (uint64, error)
}

// Spawner starts processes.
type Spawner interface {
	Spawn(ctx context.Context, spec Spec) (Handle, error)
}

// Params are the inputs to New.
type Params struct {
	fx.In

	Config   config.Provider
	Executor executor.Executor
	Logger   *zap.SugaredLogger
}

type spawner struct {
	executor    executor.Executor
	logger      *zap.SugaredLogger
	gracePeriod time.Duration
}

// New creates a Spawner.
func New(p Params) (Spawner, error) {
	gracePeriod := _defaultStopGracePeriod
	if v := p.Config.Get(_configKeyStopGracePeriod); v.HasValue() {
		if err := v.Populate(&gracePeriod); err != nil {
			return nil, fmt.Errorf("getting config field %q: %w", _configKeyStopGracePeriod, err)
		}
	}

	return &spawner{
		executor:    p.Executor,
		logger:      p.Logger.With("plugin", "process"),
		gracePeriod: gracePeriod,
	}, nil
}

// Spawn starts the process in its own process group. The process outlives ctx.
func (s *spawner) Spawn(ctx context.Context, spec Spec) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdout = spec.Output
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stderr pipe: %w", err)
	}

	if err := s.executor.Start(cmd); err != nil {
		return nil, err
	}
	if cmd.Process == nil {
		stderr.Close()
		return nil, errors.New("process was not started")
	}

	h := &handle{
		cmd:         cmd,
		pid:         cmd.Process.Pid,
		lines:       make(chan string, _linesBuffer),
		done:        make(chan struct{}),
		gracePeriod: s.gracePeriod,
		logger:      s.logger.With("pid", cmd.Process.Pid),
	}
	go h.run(stderr, spec.Output)

	return h, nil
}

type handle struct {
	cmd         *exec.Cmd
	pid         int
	lines       chan string
	done        chan struct{}
	exit        Exit
	gracePeriod time.Duration
	logger      *zap.SugaredLogger

	terminateOnce sync.Once
	terminateErr  error
}

// run forwards stderr, then reaps the process. Wait must follow the last read of the pipe.
func (h *handle) run(stderr io.Reader, output io.Writer) {
	reader := bufio.NewReaderSize(stderr, _readBufferBytes)
	var line []byte
	truncated := false
	for {
		chunk, isPrefix, err := reader.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				h.logger.Warnf("reading daemon stderr: %v", err)
			}
			if len(line) > 0 {
				h.emit(string(line), output)
			}
			break
		}

		if !truncated {
			if room := _maxLineBytes - len(line); len(chunk) > room {
				chunk = chunk[:room]
				truncated = true
			}
			line = append(line, chunk...)
		}
		if isPrefix {
			continue
		}

		if truncated {
			h.logger.Warnf("daemon stderr line longer than %d bytes, truncated", _maxLineBytes)
		}
		h.emit(string(line), output)
		line = line[:0]
		truncated = false
	}
	close(h.lines)

	h.exit = exitFromWait(h.cmd.Wait())
	h.logger.Infow("process exited", "code", h.exit.Code)
	close(h.done)
}

func (h *handle) emit(line string, output io.Writer) {
	if output != nil {
		fmt.Fprintln(output, line)
	}
	h.lines <- line
}

func exitFromWait(err error) Exit {
	if err == nil {
		return Exit{}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Exit{Code: exitErr.ExitCode(), Err: err}
	}
	return Exit{Code: -1, Err: err}
}

func (h *handle) PID() int {
	return h.pid
}

func (h *handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *handle) Lines() <-chan string {
	return h.lines
}

func (h *handle) Done() <-chan struct{} {
	return h.done
}

func (h *handle) Exit() Exit {
	select {
	case <-h.done:
		return h.exit
	default:
		return Exit{Code: -1, Err: errors.New("process still running")}
	}
}

func (h *handle) Terminate() error {
	h.terminateOnce.Do(func() {
		if !h.Alive() {
			return
		}
		if err := unix.Kill(-h.pid, unix.SIGTERM); err != nil {
			if errors.Is(err, unix.ESRCH) {
				return
			}
			h.terminateErr = fmt.Errorf("terminating process group %d: %w", h.pid, err)
			return
		}
		go h.killAfterGrace()
	})
	return h.terminateErr
}

func (h *handle) killAfterGrace() {
	timer := time.NewTimer(h.gracePeriod)
	defer timer.Stop()

	select {
	case <-h.done:
	case <-timer.C:
		h.logger.Warnf("process did not stop within %s, sending SIGKILL", h.gracePeriod)
		if err := unix.Kill(-h.pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			h.logger.Errorf("killing process group %d: %v", h.pid, err)
		}
	}
}

func (h *handle) MemoryRSS() (uint64, error) {
	if !h.Alive() {
		return 0, nil
	}
	p, err := process.NewProcess(int32(h.pid))
	if err != nil {
		return 0, fmt.Errorf("inspecting process %d: %w", h.pid, err)
	}
	info, err := p.MemoryInfo()
	if err != nil {
		return 0, fmt.Errorf("reading memory of process %d: %w", h.pid, err)
	}
	return info.RSS, nil
}

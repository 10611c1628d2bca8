// Package process provides the executor that runs commands as local
// processes, either directly through a shell or through ssh.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"

	sweepv1 "github.com/kination/sweeper/api/v1"
	"github.com/kination/sweeper/internal/executor"
	"github.com/kination/sweeper/internal/render"
)

const (
	TransportSSH   = "ssh"
	TransportLocal = "local"

	// sshConnectionFailure is the exit status ssh reserves for its own errors.
	sshConnectionFailure = 255
)

// Config holds the process executor settings
type Config struct {
	// Transport is TransportSSH or TransportLocal
	Transport    string
	User         string
	IdentityFile string
	SSHOptions   []string
	// LogDir receives one <label>.log file with the combined output of each
	// job. Output is discarded when empty.
	LogDir string
	Logger logr.Logger
}

// Executor implements executor.Executor by spawning processes
type Executor struct {
	config Config
}

// New creates a process executor
func New(cfg Config) *Executor {
	if cfg.Transport == "" {
		cfg.Transport = TransportSSH
	}
	if cfg.Logger.GetSink() == nil {
		cfg.Logger = logr.Discard()
	}
	return &Executor{config: cfg}
}

// Type returns the transport this executor handles
func (e *Executor) Type() string {
	return e.config.Transport
}

// Prefix returns the ssh invocation for the worker, or nothing for local runs
func (e *Executor) Prefix(worker sweepv1.Worker) []string {
	if e.config.Transport != TransportSSH {
		return nil
	}
	argv := []string{"ssh", "-o", "BatchMode=yes"}
	for _, opt := range e.config.SSHOptions {
		argv = append(argv, "-o", opt)
	}
	if e.config.IdentityFile != "" {
		argv = append(argv, "-i", e.config.IdentityFile)
	}
	host := worker.Host()
	if e.config.User != "" {
		host = e.config.User + "@" + host
	}
	return append(argv, host)
}

// Execute starts the command and reports its exit status on the returned channel
func (e *Executor) Execute(ctx context.Context, worker sweepv1.Worker, cmd render.Command) <-chan executor.Result {
	if len(cmd.Argv) == 0 {
		return executor.Done(executor.Result{ExitCode: -1, Err: errors.New("empty command")})
	}

	proc := e.buildCmd(ctx, cmd)
	out, closeOut, err := e.openOutput(cmd)
	if err != nil {
		return executor.Done(executor.Result{ExitCode: -1, Err: err})
	}
	proc.Stdout = out
	proc.Stderr = out

	log := e.config.Logger.WithValues("worker", worker.Name, "index", cmd.Index)
	if err := proc.Start(); err != nil {
		closeOut()
		return executor.Done(executor.Result{ExitCode: -1, Err: fmt.Errorf("failed to start command: %w", err)})
	}
	log.V(1).Info("Process started", "pid", proc.Process.Pid)

	done := make(chan executor.Result, 1)
	go func() {
		defer closeOut()
		done <- e.waitResult(proc.Wait())
	}()
	return done
}

func (e *Executor) buildCmd(ctx context.Context, cmd render.Command) *exec.Cmd {
	if e.config.Transport == TransportSSH {
		// ssh hands the remaining tokens to the remote shell.
		return exec.CommandContext(ctx, cmd.Argv[0], cmd.Argv[1:]...)
	}
	return exec.CommandContext(ctx, "/bin/sh", "-c", strings.Join(cmd.Argv, " "))
}

func (e *Executor) openOutput(cmd render.Command) (io.Writer, func(), error) {
	if e.config.LogDir == "" {
		return io.Discard, func() {}, nil
	}
	if err := os.MkdirAll(e.config.LogDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(e.config.LogDir, jobLogName(cmd)), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open job log: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// jobLogName is unique per index; labels repeat across concatenated suites.
func jobLogName(cmd render.Command) string {
	return fmt.Sprintf("%03d-%s.log", cmd.Index, cmd.Label)
}

func (e *Executor) waitResult(err error) executor.Result {
	if err == nil {
		return executor.Result{}
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return executor.Result{ExitCode: -1, Err: err}
	}
	code := exitErr.ExitCode()
	if e.config.Transport == TransportSSH && code == sshConnectionFailure {
		return executor.Result{ExitCode: code, Err: fmt.Errorf("ssh exited with %d: %w", code, executor.ErrWorkerLost)}
	}
	return executor.Result{ExitCode: code}
}

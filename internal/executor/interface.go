// Package executor provides the Executor interface and registry for running
// rendered commands on workers.
package executor

import (
	"context"
	"errors"
	"fmt"

	sweepv1 "github.com/kination/sweeper/api/v1"
	"github.com/kination/sweeper/internal/render"
)

// ErrWorkerLost marks a channel failure after which the worker cannot take
// further jobs.
var ErrWorkerLost = errors.New("worker lost")

// Executor runs commands on workers.
// Different implementations reach workers differently (ssh, local, Pod).
type Executor interface {
	// Type returns the transport name this executor is registered under
	Type() string

	// Prefix returns the tokens that reach the worker, prepended by the renderer
	Prefix(worker sweepv1.Worker) []string

	// Execute starts cmd on worker and returns a channel that receives
	// exactly one Result when the command finishes.
	Execute(ctx context.Context, worker sweepv1.Worker, cmd render.Command) <-chan Result
}

// Result is the completion signal of one command.
type Result struct {
	ExitCode int
	Err      error
}

// OK reports whether the command exited cleanly.
func (r Result) OK() bool {
	return r.Err == nil && r.ExitCode == 0
}

// WorkerLost reports whether the worker's channel is unusable.
func (r Result) WorkerLost() bool {
	return errors.Is(r.Err, ErrWorkerLost)
}

// Message describes a failed result for logs and job records.
func (r Result) Message() string {
	switch {
	case r.Err != nil:
		return r.Err.Error()
	case r.ExitCode != 0:
		return fmt.Sprintf("exit status %d", r.ExitCode)
	default:
		return ""
	}
}

// Done returns an already completed result channel.
func Done(res Result) <-chan Result {
	ch := make(chan Result, 1)
	ch <- res
	return ch
}

// Package runner dispatches a job list onto worker pipes.
// Each pipe owns one worker and runs at most one job at a time; pipes pull
// the next index from the shared job table whenever their job finishes.
package runner

import (
	"errors"
	"time"

	sweepv1 "github.com/kination/sweeper/api/v1"
	"github.com/kination/sweeper/internal/executor"
	"github.com/kination/sweeper/internal/render"
)

// ErrPoolExhausted is returned when dispatch starts with no workers.
var ErrPoolExhausted = errors.New("no workers available")

// RenderFunc renders the command for index as run by worker
type RenderFunc func(index int, worker sweepv1.Worker) (render.Command, error)

// EventType names a change observed on a worker pipe
type EventType string

const (
	EventAssigned   EventType = "Assigned"
	EventRunning    EventType = "Running"
	EventCompleted  EventType = "Completed"
	EventFailed     EventType = "Failed"
	EventWorkerLost EventType = "WorkerLost"
	EventPipeClosed EventType = "PipeClosed"
)

// Event is emitted by worker pipes for every job transition and pipe change
type Event struct {
	Type   EventType
	Worker string
	// Index is -1 for pipe events not tied to a job
	Index   int
	Label   string
	Command string
	Result  executor.Result
	Time    time.Time
}

// Options configures a Dispatcher
type Options struct {
	// DryRun renders and logs every command without submitting any
	DryRun bool
}

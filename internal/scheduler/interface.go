// Package scheduler owns the job list cursor and the per-index job states.
// All mutations go through one lock, so each index is handed out exactly
// once no matter how many worker pipes ask for work concurrently.
package scheduler

import (
	"errors"

	sweepv1 "github.com/kination/sweeper/api/v1"
)

// ErrInvalidTransition is returned for a state change the job state machine
// does not allow.
var ErrInvalidTransition = errors.New("invalid job state transition")

// Queue hands out job indices in order and records their outcome
type Queue interface {
	// Next assigns the next queued index to worker
	Next(worker string) (int, bool)

	// MarkRunning moves an assigned index to Running
	MarkRunning(idx int) error

	// Complete records a clean exit
	Complete(idx int) error

	// Fail records a failed job
	Fail(idx int, exitCode int, message string) error

	// FailQueued fails every index never handed out and returns them
	FailQueued(message string) []int

	// Status returns the state of one index
	Status(idx int) (sweepv1.JobStatus, bool)

	// Len returns the job list length
	Len() int
}

var _ Queue = (*JobTable)(nil)

// allowed lists the legal transitions of one job index.
var allowed = map[sweepv1.JobState][]sweepv1.JobState{
	sweepv1.StateQueued:   {sweepv1.StateAssigned, sweepv1.StateFailed},
	sweepv1.StateAssigned: {sweepv1.StateRunning, sweepv1.StateFailed},
	sweepv1.StateRunning:  {sweepv1.StateCompleted, sweepv1.StateFailed},
}

func canTransition(from, to sweepv1.JobState) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

package scheduler

import (
	"fmt"
	"sync"
	"time"

	sweepv1 "github.com/kination/sweeper/api/v1"
)

// JobTable tracks the state of every index of one job list
type JobTable struct {
	mu     sync.RWMutex
	jobs   []sweepv1.JobStatus
	cursor int

	// Track active jobs for the concurrency bound
	active    int
	maxActive int

	now func() time.Time
}

// NewJobTable creates a table with every index Queued
func NewJobTable(labels []string) *JobTable {
	jobs := make([]sweepv1.JobStatus, len(labels))
	for i, l := range labels {
		jobs[i] = sweepv1.JobStatus{Index: i, Label: l, State: sweepv1.StateQueued}
	}
	return &JobTable{jobs: jobs, now: time.Now}
}

// Len returns the job list length
func (t *JobTable) Len() int {
	return len(t.jobs)
}

// Remaining returns the number of indices not yet handed out
func (t *JobTable) Remaining() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.jobs) - t.cursor
}

// Next assigns the next queued index to worker. It returns false once the
// job list is exhausted.
func (t *JobTable) Next(worker string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for t.cursor < len(t.jobs) {
		idx := t.cursor
		t.cursor++
		// Indices failed for lack of workers are skipped.
		if t.jobs[idx].State != sweepv1.StateQueued {
			continue
		}
		t.jobs[idx].State = sweepv1.StateAssigned
		t.jobs[idx].Worker = worker
		t.active++
		if t.active > t.maxActive {
			t.maxActive = t.active
		}
		return idx, true
	}
	return -1, false
}

// MarkRunning records that the job at idx has been submitted
func (t *JobTable) MarkRunning(idx int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, err := t.transition(idx, sweepv1.StateRunning)
	if err != nil {
		return err
	}
	now := t.now()
	job.StartTime = &now
	return nil
}

// Complete records a clean exit
func (t *JobTable) Complete(idx int) error {
	return t.finish(idx, sweepv1.StateCompleted, 0, "")
}

// Fail records a failed job with its exit code and reason
func (t *JobTable) Fail(idx int, exitCode int, message string) error {
	return t.finish(idx, sweepv1.StateFailed, exitCode, message)
}

func (t *JobTable) finish(idx int, state sweepv1.JobState, exitCode int, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := sweepv1.JobState("")
	if idx >= 0 && idx < len(t.jobs) {
		prev = t.jobs[idx].State
	}
	job, err := t.transition(idx, state)
	if err != nil {
		return err
	}
	now := t.now()
	job.EndTime = &now
	job.ExitCode = exitCode
	job.Message = message
	if prev == sweepv1.StateAssigned || prev == sweepv1.StateRunning {
		t.active--
	}
	return nil
}

// FailQueued marks every index that was never handed out as Failed. It is
// used when no worker is left to take them.
func (t *JobTable) FailQueued(message string) []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var failed []int
	now := t.now()
	for i := t.cursor; i < len(t.jobs); i++ {
		if t.jobs[i].State != sweepv1.StateQueued {
			continue
		}
		t.jobs[i].State = sweepv1.StateFailed
		t.jobs[i].Message = message
		t.jobs[i].ExitCode = -1
		t.jobs[i].EndTime = &now
		failed = append(failed, i)
	}
	t.cursor = len(t.jobs)
	return failed
}

func (t *JobTable) transition(idx int, to sweepv1.JobState) (*sweepv1.JobStatus, error) {
	if idx < 0 || idx >= len(t.jobs) {
		return nil, fmt.Errorf("%w: index %d out of range", ErrInvalidTransition, idx)
	}
	job := &t.jobs[idx]
	if !canTransition(job.State, to) {
		return nil, fmt.Errorf("%w: job %d %s -> %s", ErrInvalidTransition, idx, job.State, to)
	}
	job.State = to
	return job, nil
}

// Status returns a copy of the status of idx
func (t *JobTable) Status(idx int) (sweepv1.JobStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if idx < 0 || idx >= len(t.jobs) {
		return sweepv1.JobStatus{}, false
	}
	return t.jobs[idx], true
}

// Snapshot returns a copy of every job status in index order
func (t *JobTable) Snapshot() []sweepv1.JobStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]sweepv1.JobStatus(nil), t.jobs...)
}

// Counts returns the number of jobs in each state
func (t *JobTable) Counts() map[sweepv1.JobState]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	counts := make(map[sweepv1.JobState]int)
	for _, j := range t.jobs {
		counts[j.State]++
	}
	return counts
}

// AllTerminal reports whether every index is Completed or Failed
func (t *JobTable) AllTerminal() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, j := range t.jobs {
		if !j.State.Terminal() {
			return false
		}
	}
	return true
}

// ActiveCount returns the number of jobs currently Assigned or Running
func (t *JobTable) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active
}

// MaxActive returns the highest ActiveCount observed during the run
func (t *JobTable) MaxActive() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.maxActive
}

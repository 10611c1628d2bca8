// Package monitor watches a dispatch run: it logs job transitions and pool
// attrition as they happen, prints the pool state on every tick and builds the
// final report.
package monitor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"

	sweepv1 "github.com/kination/sweeper/api/v1"
	"github.com/kination/sweeper/internal/runner"
	"github.com/kination/sweeper/internal/scheduler"
	"github.com/kination/sweeper/internal/store"
)

// DefaultInterval is the time between pool state lines
const DefaultInterval = 30 * time.Second

// Options configures a Monitor
type Options struct {
	RunID    string
	Suite    string
	Interval time.Duration
	// Store receives the run record and every job transition when set
	Store store.Store
}

// Monitor observes one run
type Monitor struct {
	table *scheduler.JobTable
	log   logr.Logger
	opts  Options
}

// RunReport is the outcome of one run
type RunReport struct {
	RunID       string
	Suite       string
	Jobs        []sweepv1.JobStatus
	Completed   int
	Failed      int
	WorkersLost int
	MaxActive   int
	State       sweepv1.RunState
	StartTime   time.Time
	EndTime     time.Time
}

// AllCompleted reports whether every job exited cleanly
func (r *RunReport) AllCompleted() bool {
	return r.Failed == 0 && r.Completed == len(r.Jobs)
}

// FailedJobs returns the failed jobs in index order
func (r *RunReport) FailedJobs() []sweepv1.JobStatus {
	var out []sweepv1.JobStatus
	for _, j := range r.Jobs {
		if j.State == sweepv1.StateFailed {
			out = append(out, j)
		}
	}
	return out
}

// RunStatus converts the report into a run record
func (r *RunReport) RunStatus() *sweepv1.RunStatus {
	end := r.EndTime
	return &sweepv1.RunStatus{
		RunID:       r.RunID,
		Suite:       r.Suite,
		State:       r.State,
		Jobs:        len(r.Jobs),
		Completed:   r.Completed,
		Failed:      r.Failed,
		WorkersLost: r.WorkersLost,
		StartTime:   r.StartTime,
		EndTime:     &end,
	}
}

// New creates a Monitor over table
func New(table *scheduler.JobTable, log logr.Logger, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Monitor{
		table: table,
		log:   log.WithName("monitor"),
		opts:  opts,
	}
}

// Watch consumes events until the stream closes and returns the report.
// Cancelling ctx stops the watch early; the report then reflects the table as
// it stood.
func (m *Monitor) Watch(ctx context.Context, events <-chan runner.Event, pipes []*runner.WorkerPipe) (*RunReport, error) {
	start := time.Now()
	lost := 0
	m.saveRun(ctx, start)

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	var err error
loop:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			if ev.Type == runner.EventWorkerLost {
				lost++
			}
			m.handle(ctx, ev)
		case <-ticker.C:
			m.logPipes(pipes)
		case <-ctx.Done():
			err = ctx.Err()
			break loop
		}
	}

	report := m.report(start, lost)
	m.log.Info("Run finished", "state", report.State, "completed", report.Completed,
		"failed", report.Failed, "workersLost", report.WorkersLost, "elapsed", report.EndTime.Sub(start).Round(time.Second))
	if m.opts.Store != nil {
		// The run record is written even after cancellation.
		if serr := m.opts.Store.SaveRun(context.WithoutCancel(ctx), report.RunStatus()); serr != nil {
			m.log.Error(serr, "Failed to save run")
		}
	}
	return report, err
}

func (m *Monitor) handle(ctx context.Context, ev runner.Event) {
	switch ev.Type {
	case runner.EventAssigned:
		m.log.V(1).Info("Job assigned", "index", ev.Index, "label", ev.Label, "worker", ev.Worker, "command", ev.Command)
	case runner.EventRunning:
		m.log.V(1).Info("Job running", "index", ev.Index, "label", ev.Label, "worker", ev.Worker)
	case runner.EventCompleted:
		m.log.Info("Job completed", "index", ev.Index, "label", ev.Label, "worker", ev.Worker)
	case runner.EventFailed:
		m.log.Info("Job failed", "index", ev.Index, "label", ev.Label, "worker", ev.Worker,
			"exitCode", ev.Result.ExitCode, "reason", ev.Result.Message())
	case runner.EventWorkerLost:
		m.log.Info("Worker lost, pool shrinks", "worker", ev.Worker, "index", ev.Index, "reason", ev.Result.Message())
	case runner.EventPipeClosed:
		m.log.V(1).Info("Pipe closed", "worker", ev.Worker)
	}

	if m.opts.Store == nil || ev.Index < 0 || ev.Type == runner.EventWorkerLost {
		return
	}
	st, ok := m.table.Status(ev.Index)
	if !ok {
		return
	}
	if err := m.opts.Store.SaveJobStatus(ctx, m.opts.RunID, &st); err != nil {
		m.log.Error(err, "Failed to save job status", "index", ev.Index)
	}
}

func (m *Monitor) logPipes(pipes []*runner.WorkerPipe) {
	parts := make([]string, 0, len(pipes))
	for _, p := range pipes {
		parts = append(parts, fmt.Sprintf("%s=%s", p.Worker().Name, pipeState(p)))
	}
	counts := m.table.Counts()
	m.log.Info("Pool status", "pipes", strings.Join(parts, " "),
		"queued", m.table.Remaining(), "running", counts[sweepv1.StateAssigned]+counts[sweepv1.StateRunning],
		"completed", counts[sweepv1.StateCompleted], "failed", counts[sweepv1.StateFailed])
}

func pipeState(p *runner.WorkerPipe) string {
	if p.Closed() {
		if p.Lost() {
			return "lost"
		}
		return "closed"
	}
	if idx, ok := p.Current(); ok {
		return strconv.Itoa(idx)
	}
	return "idle"
}

func (m *Monitor) saveRun(ctx context.Context, start time.Time) {
	if m.opts.Store == nil {
		return
	}
	run := &sweepv1.RunStatus{
		RunID:     m.opts.RunID,
		Suite:     m.opts.Suite,
		State:     sweepv1.RunRunning,
		Jobs:      m.table.Len(),
		StartTime: start,
	}
	if err := m.opts.Store.SaveRun(ctx, run); err != nil {
		m.log.Error(err, "Failed to save run")
	}
}

func (m *Monitor) report(start time.Time, lost int) *RunReport {
	r := &RunReport{
		RunID:       m.opts.RunID,
		Suite:       m.opts.Suite,
		Jobs:        m.table.Snapshot(),
		WorkersLost: lost,
		MaxActive:   m.table.MaxActive(),
		StartTime:   start,
		EndTime:     time.Now(),
	}
	for _, j := range r.Jobs {
		switch j.State {
		case sweepv1.StateCompleted:
			r.Completed++
		case sweepv1.StateFailed:
			r.Failed++
		}
	}
	switch {
	case !m.table.AllTerminal():
		r.State = sweepv1.RunRunning
	case r.Failed == 0:
		r.State = sweepv1.RunAllCompleted
	default:
		r.State = sweepv1.RunPartiallyFailed
	}
	return r
}

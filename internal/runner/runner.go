package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	sweepv1 "github.com/kination/sweeper/api/v1"
	"github.com/kination/sweeper/internal/executor"
	"github.com/kination/sweeper/internal/scheduler"
)

// Dispatcher assigns the job list to worker pipes
type Dispatcher struct {
	table  scheduler.Queue
	exec   executor.Executor
	render RenderFunc
	log    logr.Logger
	opts   Options

	events chan Event
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher over table
func NewDispatcher(table scheduler.Queue, exec executor.Executor, render RenderFunc, log logr.Logger, opts Options) *Dispatcher {
	return &Dispatcher{
		table:  table,
		exec:   exec,
		render: render,
		log:    log.WithName("dispatcher"),
		opts:   opts,
	}
}

// Events streams pipe events. The channel is closed once every pipe has
// shut down and every index is terminal. It is nil before Launch.
func (d *Dispatcher) Events() <-chan Event {
	return d.events
}

// Launch opens one pipe per worker and starts dispatching. The first
// min(len(workers), jobs) indices go to the workers in order; every pipe then
// pulls the next index whenever its job finishes.
func (d *Dispatcher) Launch(ctx context.Context, workers []sweepv1.Worker) ([]*WorkerPipe, error) {
	if d.opts.DryRun {
		return nil, d.dryRun(workers)
	}
	if len(workers) == 0 {
		return nil, ErrPoolExhausted
	}
	// Rendering is pure, so a full pass catches bad indices before any job runs.
	for i := 0; i < d.table.Len(); i++ {
		if _, err := d.render(i, workers[0]); err != nil {
			return nil, fmt.Errorf("failed to render job %d: %w", i, err)
		}
	}

	// Every index emits at most three events and every pipe at most two.
	d.events = make(chan Event, 3*d.table.Len()+2*len(workers)+1)

	pipes := make([]*WorkerPipe, 0, len(workers))
	for _, w := range workers {
		pipe := newWorkerPipe(w)
		pipes = append(pipes, pipe)
		idx, ok := d.table.Next(w.Name)

		d.wg.Add(1)
		go d.drive(ctx, pipe, idx, ok)
	}
	d.log.Info("Worker pipes launched", "pipes", len(pipes), "jobs", d.table.Len())

	go func() {
		d.wg.Wait()
		if failed := d.table.FailQueued("no workers left"); len(failed) > 0 {
			d.log.Info("Jobs left without a worker", "indices", failed)
			for _, idx := range failed {
				st, _ := d.table.Status(idx)
				d.emit(Event{Type: EventFailed, Index: idx, Label: st.Label, Result: executor.Result{ExitCode: -1}})
			}
		}
		close(d.events)
	}()

	return pipes, nil
}

// drive runs jobs on one pipe until the job list is exhausted, the worker is
// lost or ctx is cancelled.
func (d *Dispatcher) drive(ctx context.Context, pipe *WorkerPipe, idx int, ok bool) {
	defer d.wg.Done()
	worker := pipe.Worker()
	lost := false
	defer func() {
		pipe.close(lost)
		d.emit(Event{Type: EventPipeClosed, Worker: worker.Name, Index: -1})
	}()

	for ok {
		lost = d.runOne(ctx, pipe, idx)
		if lost || ctx.Err() != nil {
			return
		}
		idx, ok = d.table.Next(worker.Name)
	}
}

// runOne runs the job at idx, records its terminal state and reports whether
// the worker was lost.
func (d *Dispatcher) runOne(ctx context.Context, pipe *WorkerPipe, idx int) bool {
	worker := pipe.Worker()
	cmd, err := d.render(idx, worker)
	pipe.start(idx)
	defer pipe.finish()
	if err != nil {
		d.recordFailure(worker, idx, "", executor.Result{ExitCode: -1, Err: err})
		return false
	}
	d.emit(Event{Type: EventAssigned, Worker: worker.Name, Index: idx, Label: cmd.Label, Command: cmd.String()})

	done := d.exec.Execute(ctx, worker, cmd)
	if err := d.table.MarkRunning(idx); err != nil {
		d.log.Error(err, "Job state out of sync", "index", idx)
	}
	d.emit(Event{Type: EventRunning, Worker: worker.Name, Index: idx, Label: cmd.Label})

	res := <-done
	if !res.OK() {
		d.recordFailure(worker, idx, cmd.Label, res)
		if res.WorkerLost() {
			d.emit(Event{Type: EventWorkerLost, Worker: worker.Name, Index: idx, Label: cmd.Label, Result: res})
			return true
		}
		return false
	}

	if err := d.table.Complete(idx); err != nil {
		d.log.Error(err, "Job state out of sync", "index", idx)
	}
	d.emit(Event{Type: EventCompleted, Worker: worker.Name, Index: idx, Label: cmd.Label, Result: res})
	return false
}

func (d *Dispatcher) recordFailure(worker sweepv1.Worker, idx int, label string, res executor.Result) {
	if err := d.table.Fail(idx, res.ExitCode, res.Message()); err != nil {
		d.log.Error(err, "Job state out of sync", "index", idx)
	}
	d.emit(Event{Type: EventFailed, Worker: worker.Name, Index: idx, Label: label, Result: res})
}

func (d *Dispatcher) emit(ev Event) {
	ev.Time = time.Now()
	d.events <- ev
}

// dryRun renders and logs every command. No job changes state.
func (d *Dispatcher) dryRun(workers []sweepv1.Worker) error {
	if len(workers) == 0 {
		workers = []sweepv1.Worker{{Name: "dry-run"}}
	}
	for i := 0; i < d.table.Len(); i++ {
		w := workers[i%len(workers)]
		cmd, err := d.render(i, w)
		if err != nil {
			return fmt.Errorf("failed to render job %d: %w", i, err)
		}
		d.log.Info("DRY RUN", "index", i, "label", cmd.Label, "worker", w.Name, "command", cmd.String())
	}
	return nil
}

package monitor

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr/funcr"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	sweepv1 "github.com/kination/sweeper/api/v1"
	"github.com/kination/sweeper/internal/executor"
	"github.com/kination/sweeper/internal/render"
	"github.com/kination/sweeper/internal/runner"
	"github.com/kination/sweeper/internal/scheduler"
	"github.com/kination/sweeper/internal/store"
	"github.com/kination/sweeper/internal/sweep"
)

// scriptedExecutor returns a fixed result per index, or loses a worker.
// Jobs listed in hold finish only once their channel is closed.
type scriptedExecutor struct {
	exitCode map[int]int
	lost     map[string]bool
	hold     map[int]chan struct{}
	delay    time.Duration
}

func (s *scriptedExecutor) Type() string { return "scripted" }

func (s *scriptedExecutor) Prefix(w sweepv1.Worker) []string { return nil }

func (s *scriptedExecutor) Execute(ctx context.Context, w sweepv1.Worker, cmd render.Command) <-chan executor.Result {
	res := executor.Result{ExitCode: s.exitCode[cmd.Index]}
	if s.lost[w.Name] {
		res = executor.Result{ExitCode: 255, Err: executor.ErrWorkerLost}
	}
	hold := s.hold[cmd.Index]
	ch := make(chan executor.Result, 1)
	go func() {
		if hold != nil {
			<-hold
		}
		time.Sleep(s.delay)
		ch <- res
	}()
	return ch
}

type run struct {
	table    *scheduler.JobTable
	render   *render.Renderer
	dispatch *runner.Dispatcher
}

func newRun(exec executor.Executor) run {
	suite := sweep.MustSuite("grid",
		sweep.MustVariable("size", "exp", sweep.NewValue("small", "n=10"), sweep.NewValue("big", "n=1000")),
		sweep.MustVariable("mode", "exp", sweep.NewValue("a", "mode=a"), sweep.NewValue("b", "mode=b"), sweep.NewValue("c", "mode=c")),
	)
	r := render.New(suite, render.DefaultConfig(), render.NoPrefix)
	table := scheduler.NewJobTable(sweep.Labels(suite.Variants()))
	return run{table: table, render: r, dispatch: runner.NewDispatcher(table, exec, r.Render, GinkgoLogr, runner.Options{})}
}

func workers(names ...string) []sweepv1.Worker {
	out := make([]sweepv1.Worker, len(names))
	for i, n := range names {
		out[i] = sweepv1.Worker{Name: n}
	}
	return out
}

var _ = Describe("Monitor", func() {
	var (
		ctx  context.Context
		exec *scriptedExecutor
		st   *store.MemoryStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		exec = &scriptedExecutor{exitCode: map[int]int{}, lost: map[string]bool{}, delay: 2 * time.Millisecond}
		st = store.NewMemoryStore()
	})

	watch := func(r run, names ...string) (*RunReport, []*runner.WorkerPipe) {
		pipes, err := r.dispatch.Launch(ctx, workers(names...))
		Expect(err).NotTo(HaveOccurred())
		m := New(r.table, GinkgoLogr, Options{RunID: "run-1", Suite: "grid", Interval: time.Millisecond, Store: st})
		report, err := m.Watch(ctx, r.dispatch.Events(), pipes)
		Expect(err).NotTo(HaveOccurred())
		return report, pipes
	}

	It("reports a clean run as AllCompleted", func() {
		report, pipes := watch(newRun(exec), "w1", "w2")

		Expect(report.AllCompleted()).To(BeTrue())
		Expect(report.State).To(Equal(sweepv1.RunAllCompleted))
		Expect(report.Jobs).To(HaveLen(6))
		Expect(report.Completed).To(Equal(6))
		Expect(report.MaxActive).To(BeNumerically("<=", 2))
		for i, j := range report.Jobs {
			Expect(j.Index).To(Equal(i))
		}
		for _, p := range pipes {
			Expect(pipeState(p)).To(Equal("closed"))
		}
	})

	It("keeps going past a failed job and reports it", func() {
		exec.exitCode[2] = 1
		report, _ := watch(newRun(exec), "w1", "w2")

		Expect(report.AllCompleted()).To(BeFalse())
		Expect(report.State).To(Equal(sweepv1.RunPartiallyFailed))
		Expect(report.Completed).To(Equal(5))
		failed := report.FailedJobs()
		Expect(failed).To(HaveLen(1))
		Expect(failed[0].Index).To(Equal(2))
		Expect(failed[0].Label).To(Equal("small_c"))
	})

	It("counts lost workers", func() {
		exec.lost["w1"] = true
		report, pipes := watch(newRun(exec), "w1", "w2", "w3")

		Expect(report.WorkersLost).To(Equal(1))
		Expect(report.Failed).To(Equal(1))
		Expect(report.Completed).To(Equal(5))
		Expect(pipeState(pipes[0])).To(Equal("lost"))
	})

	It("fails every index exactly once when the whole pool is lost", func() {
		exec.lost["w1"] = true
		report, _ := watch(newRun(exec), "w1")

		Expect(report.Failed).To(Equal(6))
		Expect(report.WorkersLost).To(Equal(1))
		for _, j := range report.Jobs {
			Expect(j.State).To(Equal(sweepv1.StateFailed))
		}
	})

	It("writes the run record and every job to the store", func() {
		exec.exitCode[4] = 7
		watch(newRun(exec), "w1", "w2")

		saved, err := st.GetRun(ctx, "run-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(saved.State).To(Equal(sweepv1.RunPartiallyFailed))
		Expect(saved.Jobs).To(Equal(6))
		Expect(saved.EndTime).NotTo(BeNil())

		jobs, err := st.ListJobStatuses(ctx, "run-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(jobs).To(HaveLen(6))
		Expect(jobs[4].State).To(Equal(sweepv1.StateFailed))
		Expect(jobs[4].ExitCode).To(Equal(7))
	})

	It("shows the running index and idle pipes on every tick", func() {
		held := make(chan struct{})
		exec.hold = map[int]chan struct{}{0: held}
		paused := make(chan struct{})

		r := newRun(exec)
		// w2 pauses between jobs before starting index 3
		r.dispatch = runner.NewDispatcher(r.table, exec, func(i int, w sweepv1.Worker) (render.Command, error) {
			if w.Name == "w2" && i == 3 {
				<-paused
			}
			return r.render.Render(i, w)
		}, GinkgoLogr, runner.Options{})

		var mu sync.Mutex
		var lines []string
		sink := funcr.New(func(prefix, args string) {
			mu.Lock()
			defer mu.Unlock()
			lines = append(lines, args)
		}, funcr.Options{})
		poolStatus := func() string {
			mu.Lock()
			defer mu.Unlock()
			for i := len(lines) - 1; i >= 0; i-- {
				if strings.Contains(lines[i], `"msg"="Pool status"`) {
					return lines[i]
				}
			}
			return ""
		}

		pipes, err := r.dispatch.Launch(ctx, workers("w1", "w2"))
		Expect(err).NotTo(HaveOccurred())

		type outcome struct {
			report *RunReport
			err    error
		}
		done := make(chan outcome, 1)
		m := New(r.table, sink, Options{RunID: "run-3", Interval: time.Millisecond})
		go func() {
			report, err := m.Watch(ctx, r.dispatch.Events(), pipes)
			done <- outcome{report, err}
		}()

		Eventually(func() sweepv1.JobState {
			st, _ := r.table.Status(3)
			return st.State
		}, 5*time.Second, time.Millisecond).Should(Equal(sweepv1.StateAssigned))
		Expect(pipeState(pipes[0])).To(Equal("0"))
		Expect(pipeState(pipes[1])).To(Equal("idle"))
		Eventually(poolStatus, 5*time.Second, time.Millisecond).Should(ContainSubstring(`"pipes"="w1=0 w2=idle"`))

		close(paused)
		close(held)

		var out outcome
		Eventually(done, 5*time.Second).Should(Receive(&out))
		Expect(out.err).NotTo(HaveOccurred())
		Expect(out.report.AllCompleted()).To(BeTrue())
		Expect(pipes[0].Handled()[0]).To(Equal(0))
		Expect(pipes[1].Handled()[:3]).To(Equal([]int{1, 2, 3}))
	})

	It("stops when the context is cancelled", func() {
		r := newRun(exec)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		m := New(r.table, GinkgoLogr, Options{RunID: "run-2"})
		report, err := m.Watch(cctx, make(chan runner.Event), nil)
		Expect(err).To(MatchError(context.Canceled))
		Expect(report.State).To(Equal(sweepv1.RunRunning))
	})

	It("defaults the interval", func() {
		m := New(scheduler.NewJobTable(nil), GinkgoLogr, Options{})
		Expect(m.opts.Interval).To(Equal(DefaultInterval))
	})
})

package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	sweepv1 "github.com/kination/sweeper/api/v1"
	"github.com/kination/sweeper/internal/executor"
	"github.com/kination/sweeper/internal/render"
	"github.com/kination/sweeper/internal/scheduler"
	"github.com/kination/sweeper/internal/sweep"
)

// fakeExecutor records every submission and flags overlapping jobs on one worker
type fakeExecutor struct {
	mu       sync.Mutex
	delay    time.Duration
	exitCode map[int]int
	lostOn   map[string]bool
	inflight map[string]int
	overlap  bool
	calls    map[string][]int
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		delay:    5 * time.Millisecond,
		exitCode: map[int]int{},
		lostOn:   map[string]bool{},
		inflight: map[string]int{},
		calls:    map[string][]int{},
	}
}

func (f *fakeExecutor) Type() string { return "fake" }

func (f *fakeExecutor) Prefix(worker sweepv1.Worker) []string { return []string{"on", worker.Name} }

func (f *fakeExecutor) Execute(ctx context.Context, worker sweepv1.Worker, cmd render.Command) <-chan executor.Result {
	f.mu.Lock()
	f.inflight[worker.Name]++
	if f.inflight[worker.Name] > 1 {
		f.overlap = true
	}
	f.calls[worker.Name] = append(f.calls[worker.Name], cmd.Index)
	res := executor.Result{ExitCode: f.exitCode[cmd.Index]}
	if f.lostOn[worker.Name] {
		res = executor.Result{ExitCode: 255, Err: executor.ErrWorkerLost}
	}
	f.mu.Unlock()

	ch := make(chan executor.Result, 1)
	go func() {
		time.Sleep(f.delay)
		f.mu.Lock()
		f.inflight[worker.Name]--
		f.mu.Unlock()
		ch <- res
	}()
	return ch
}

func (f *fakeExecutor) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += len(c)
	}
	return n
}

func workers(names ...string) []sweepv1.Worker {
	out := make([]sweepv1.Worker, len(names))
	for i, n := range names {
		out[i] = sweepv1.Worker{Name: n, Address: n}
	}
	return out
}

// testSource is a concat of a 2-variant and a 3-variant suite
func testSource() sweep.VariantSource {
	a := sweep.MustSuite("a", sweep.MustVariable("x", "t",
		sweep.NewValue("x1", "x=1"), sweep.NewValue("x2", "x=2")))
	b := sweep.MustSuite("b", sweep.MustVariable("y", "t",
		sweep.NewValue("y1", "y=1"), sweep.NewValue("y2", "y=2"), sweep.NewValue("y3", "y=3")))
	return sweep.MustConcatSuite("ab", a, b)
}

func newDispatcher(exec executor.Executor, opts Options) (*Dispatcher, *scheduler.JobTable) {
	src := testSource()
	r := render.New(src, render.DefaultConfig(), exec)
	table := scheduler.NewJobTable(sweep.Labels(src.Variants()))
	return NewDispatcher(table, exec, r.Render, GinkgoLogr, opts), table
}

// countingQueue records which worker pulled each index
type countingQueue struct {
	*scheduler.JobTable
	mu     sync.Mutex
	pulled map[string][]int
}

func (q *countingQueue) Next(worker string) (int, bool) {
	idx, ok := q.JobTable.Next(worker)
	if ok {
		q.mu.Lock()
		q.pulled[worker] = append(q.pulled[worker], idx)
		q.mu.Unlock()
	}
	return idx, ok
}

func drain(d *Dispatcher) []Event {
	var events []Event
	Eventually(func() bool {
		for {
			select {
			case ev, ok := <-d.Events():
				if !ok {
					return true
				}
				events = append(events, ev)
			default:
				return false
			}
		}
	}, 5*time.Second, 5*time.Millisecond).Should(BeTrue())
	return events
}

var _ = Describe("Dispatcher", func() {
	var (
		ctx  context.Context
		exec *fakeExecutor
	)

	BeforeEach(func() {
		ctx = context.Background()
		exec = newFakeExecutor()
	})

	It("runs every index exactly once on a pool smaller than the job list", func() {
		d, table := newDispatcher(exec, Options{})
		pipes, err := d.Launch(ctx, workers("w1", "w2"))
		Expect(err).NotTo(HaveOccurred())
		Expect(pipes).To(HaveLen(2))

		drain(d)

		Expect(table.Counts()[sweepv1.StateCompleted]).To(Equal(5))
		Expect(exec.total()).To(Equal(5))
		Expect(exec.overlap).To(BeFalse())
		Expect(table.MaxActive()).To(BeNumerically("<=", 2))

		seen := map[int]bool{}
		for _, p := range pipes {
			Expect(p.Closed()).To(BeTrue())
			Expect(p.Lost()).To(BeFalse())
			Expect(len(p.Handled())).To(BeElementOf(2, 3))
			for _, idx := range p.Handled() {
				Expect(seen[idx]).To(BeFalse(), "index %d handled twice", idx)
				seen[idx] = true
			}
		}
		Expect(seen).To(HaveLen(5))
	})

	It("pulls every index through the queue it was given", func() {
		src := testSource()
		r := render.New(src, render.DefaultConfig(), exec)
		q := &countingQueue{JobTable: scheduler.NewJobTable(sweep.Labels(src.Variants())), pulled: map[string][]int{}}
		d := NewDispatcher(q, exec, r.Render, GinkgoLogr, Options{})

		pipes, err := d.Launch(ctx, workers("w1", "w2"))
		Expect(err).NotTo(HaveOccurred())
		drain(d)

		Expect(q.AllTerminal()).To(BeTrue())
		for _, p := range pipes {
			Expect(q.pulled[p.Worker().Name]).To(Equal(p.Handled()))
		}
		Expect(len(q.pulled["w1"]) + len(q.pulled["w2"])).To(Equal(5))
	})

	It("hands the first indices to workers in order", func() {
		d, _ := newDispatcher(exec, Options{})
		pipes, err := d.Launch(ctx, workers("w1", "w2", "w3"))
		Expect(err).NotTo(HaveOccurred())
		drain(d)

		for i, p := range pipes {
			Expect(p.Handled()[0]).To(Equal(i))
		}
	})

	It("closes idle pipes when the pool is larger than the job list", func() {
		d, table := newDispatcher(exec, Options{})
		pipes, err := d.Launch(ctx, workers("w1", "w2", "w3", "w4", "w5", "w6", "w7"))
		Expect(err).NotTo(HaveOccurred())
		drain(d)

		Expect(pipes[5].Handled()).To(BeEmpty())
		Expect(pipes[6].Handled()).To(BeEmpty())
		Expect(pipes[6].Closed()).To(BeTrue())
		Expect(table.AllTerminal()).To(BeTrue())
	})

	It("records a non-zero exit as Failed and keeps going", func() {
		exec.exitCode[2] = 3
		d, table := newDispatcher(exec, Options{})
		_, err := d.Launch(ctx, workers("w1", "w2"))
		Expect(err).NotTo(HaveOccurred())
		drain(d)

		st, _ := table.Status(2)
		Expect(st.State).To(Equal(sweepv1.StateFailed))
		Expect(st.ExitCode).To(Equal(3))
		Expect(table.Counts()[sweepv1.StateCompleted]).To(Equal(4))
	})

	It("closes the pipe of a lost worker and finishes on the rest", func() {
		exec.lostOn["w2"] = true
		d, table := newDispatcher(exec, Options{})
		pipes, err := d.Launch(ctx, workers("w1", "w2"))
		Expect(err).NotTo(HaveOccurred())
		events := drain(d)

		Expect(pipes[1].Lost()).To(BeTrue())
		Expect(pipes[1].Handled()).To(Equal([]int{1}))
		st, _ := table.Status(1)
		Expect(st.State).To(Equal(sweepv1.StateFailed))
		Expect(table.Counts()[sweepv1.StateCompleted]).To(Equal(4))

		var lost []string
		for _, ev := range events {
			if ev.Type == EventWorkerLost {
				lost = append(lost, ev.Worker)
			}
		}
		Expect(lost).To(Equal([]string{"w2"}))
	})

	It("fails the remaining jobs when every worker is lost", func() {
		exec.lostOn["w1"] = true
		exec.lostOn["w2"] = true
		d, table := newDispatcher(exec, Options{})
		_, err := d.Launch(ctx, workers("w1", "w2"))
		Expect(err).NotTo(HaveOccurred())
		drain(d)

		Expect(table.Counts()[sweepv1.StateFailed]).To(Equal(5))
		st, _ := table.Status(4)
		Expect(st.Message).To(Equal("no workers left"))
		Expect(exec.total()).To(Equal(2))
	})

	It("refuses to start without workers", func() {
		d, _ := newDispatcher(exec, Options{})
		_, err := d.Launch(ctx, nil)
		Expect(errors.Is(err, ErrPoolExhausted)).To(BeTrue())
		Expect(exec.total()).To(BeZero())
	})

	It("submits nothing in dry run", func() {
		d, table := newDispatcher(exec, Options{DryRun: true})
		pipes, err := d.Launch(ctx, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(pipes).To(BeNil())
		Expect(exec.total()).To(BeZero())
		Expect(table.Counts()[sweepv1.StateQueued]).To(Equal(5))
	})

	It("aborts before dispatch when an index fails to render", func() {
		src := testSource()
		table := scheduler.NewJobTable(sweep.Labels(src.Variants()))
		r := render.New(src, render.DefaultConfig(), exec)
		broken := func(index int, w sweepv1.Worker) (render.Command, error) {
			if index == 3 {
				return render.Command{}, fmt.Errorf("%w: %d", render.ErrIndexOutOfRange, index)
			}
			return r.Render(index, w)
		}
		d := NewDispatcher(table, exec, broken, GinkgoLogr, Options{})

		_, err := d.Launch(ctx, workers("w1"))
		Expect(err).To(MatchError(ContainSubstring("job 3")))
		Expect(exec.total()).To(BeZero())
	})
})

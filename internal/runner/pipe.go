package runner

import (
	"sync"

	sweepv1 "github.com/kination/sweeper/api/v1"
)

// WorkerPipe is the live assignment state of one worker
type WorkerPipe struct {
	worker sweepv1.Worker

	mu      sync.RWMutex
	current int
	handled []int
	lost    bool
	closed  bool

	done chan struct{}
}

func newWorkerPipe(worker sweepv1.Worker) *WorkerPipe {
	return &WorkerPipe{
		worker:  worker,
		current: -1,
		done:    make(chan struct{}),
	}
}

// Worker returns the worker this pipe feeds
func (p *WorkerPipe) Worker() sweepv1.Worker {
	return p.worker
}

// Current returns the index being run, or false when the pipe is idle
func (p *WorkerPipe) Current() (int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, p.current >= 0
}

// Handled returns the indices run by this pipe in assignment order
func (p *WorkerPipe) Handled() []int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]int(nil), p.handled...)
}

// Lost reports whether the pipe closed because its worker became unusable
func (p *WorkerPipe) Lost() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lost
}

// Closed reports whether the pipe takes no more work
func (p *WorkerPipe) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// Done is closed when the pipe has shut down
func (p *WorkerPipe) Done() <-chan struct{} {
	return p.done
}

func (p *WorkerPipe) start(idx int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = idx
	p.handled = append(p.handled, idx)
}

func (p *WorkerPipe) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = -1
}

func (p *WorkerPipe) close(lost bool) {
	p.mu.Lock()
	p.current = -1
	p.lost = lost
	p.closed = true
	p.mu.Unlock()
	close(p.done)
}

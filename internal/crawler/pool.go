package crawler

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// workerPool runs submitted tasks on a fixed number of goroutines.
//
// The queue is unbounded so that Submit never blocks. Tasks are submitted
// from inside other tasks (a fetch submits an extraction, a completing
// fetch hands the next backlog entry to the download pool), and a bounded
// queue would let a full pool wait on itself.
type workerPool struct {
	name   string
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool

	group errgroup.Group
}

// newWorkerPool starts size workers. size must be positive.
func newWorkerPool(name string, size int, logger *slog.Logger) *workerPool {
	p := &workerPool{
		name:   name,
		logger: logger,
	}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < size; i++ {
		p.group.Go(func() error {
			p.work()
			return nil
		})
	}
	return p
}

// Submit queues a task. It returns ErrPoolClosed after Close has been called.
func (p *workerPool) Submit(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("%s pool: %w", p.name, ErrPoolClosed)
	}
	p.tasks = append(p.tasks, task)
	p.cond.Signal()
	return nil
}

// Close stops accepting tasks, lets the workers drain what is already
// queued, and waits for them to exit. It is safe to call more than once.
func (p *workerPool) Close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	_ = p.group.Wait() //nolint:errcheck // workers never return an error
}

func (p *workerPool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// work is the worker loop.
func (p *workerPool) work() {
	for {
		p.mu.Lock()
		for len(p.tasks) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.tasks) == 0 {
			p.mu.Unlock()
			return
		}
		task := p.tasks[0]
		p.tasks[0] = nil
		p.tasks = p.tasks[1:]
		p.mu.Unlock()

		p.run(task)
	}
}

// run executes one task. A panicking task is logged and the worker survives.
func (p *workerPool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", "pool", p.name, "panic", r)
		}
	}()
	task()
}

// Package async runs blocking units of work on a small bounded pool of
// goroutines and notifies callers through futures and callbacks.
package async

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Fixed pool parameters.
const (
	CoreWorkers   = 1
	MaxWorkers    = 5
	KeepAlive     = 10 * time.Second
	QueueCapacity = 1
)

var (
	// ErrSaturated is the cause reported when all workers are busy and the
	// intake queue is full.
	ErrSaturated = errors.New("async: pool saturated, work rejected")

	// ErrShutdown is the cause reported for work submitted after Shutdown.
	ErrShutdown = errors.New("async: pool is shut down")
)

// Work is a blocking unit of work.
type Work func() (any, error)

// Callback is invoked once with the future after it resolves.
type Callback func(*Future)

type task struct {
	work   Work
	future *Future
}

// Stats is a snapshot of pool occupancy.
type Stats struct {
	Workers int
	Busy    int
	Queued  int
}

// Pool executes work on at most MaxWorkers goroutines. Work is handed to a
// new worker while fewer than CoreWorkers exist, then queued, then handed to
// a new worker up to MaxWorkers; beyond that it is rejected. Workers above
// the core count exit after KeepAlive without work.
type Pool struct {
	core      int
	max       int
	keepAlive time.Duration

	queue chan *task
	quit  chan struct{}

	mu       sync.Mutex
	workers  int
	busy     int
	shutdown bool
	wg       sync.WaitGroup
}

// Option adjusts a Pool. Only the idle keep-alive can be changed.
type Option func(*Pool)

// WithKeepAlive overrides how long surplus workers wait for work.
func WithKeepAlive(d time.Duration) Option {
	return func(p *Pool) { p.keepAlive = d }
}

// NewPool returns a pool with the fixed core, max and queue parameters.
func NewPool(opts ...Option) *Pool {
	p := &Pool{
		core:      CoreWorkers,
		max:       MaxWorkers,
		keepAlive: KeepAlive,
		queue:     make(chan *task, QueueCapacity),
		quit:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit schedules work and returns its future without blocking. A rejected
// submission returns a future that has already failed with ErrSaturated (or
// ErrShutdown). If callback is non-nil it runs on its own goroutine after
// the future resolves, outside the pool.
func (p *Pool) Submit(work Work, callback Callback) *Future {
	if work == nil {
		panic("async: nil work")
	}

	t := &task{work: work, future: newFuture()}
	if err := p.execute(t); err != nil {
		t.future.complete(nil, err)
	}

	if callback != nil {
		go func() {
			<-t.future.done
			callback(t.future)
		}()
	}

	return t.future
}

func (p *Pool) execute(t *task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown {
		return ErrShutdown
	}

	if p.workers < p.core {
		p.startWorker(t)
		return nil
	}

	select {
	case p.queue <- t:
		return nil
	default:
	}

	if p.workers < p.max {
		p.startWorker(t)
		return nil
	}

	return ErrSaturated
}

// startWorker must be called with p.mu held.
func (p *Pool) startWorker(first *task) {
	p.workers++
	p.busy++
	p.wg.Add(1)
	go p.worker(first)
}

func (p *Pool) worker(first *task) {
	defer p.wg.Done()

	t := first
	for t != nil {
		p.run(t)
		t = p.next()
	}
}

func (p *Pool) run(t *task) {
	defer func() {
		if r := recover(); r != nil {
			t.future.complete(nil, fmt.Errorf("async: work panicked: %v", r))
		}
		p.mu.Lock()
		p.busy--
		p.mu.Unlock()
	}()

	result, err := t.work()
	t.future.complete(result, err)
}

// next waits for queued work. It returns nil when the worker should exit.
func (p *Pool) next() *task {
	timer := time.NewTimer(p.keepAlive)
	defer timer.Stop()

	for {
		select {
		case t := <-p.queue:
			p.markBusy()
			return t
		case <-p.quit:
			select {
			case t := <-p.queue:
				p.markBusy()
				return t
			default:
			}
			p.retire()
			return nil
		case <-timer.C:
			p.mu.Lock()
			if p.workers > p.core {
				p.workers--
				p.mu.Unlock()
				return nil
			}
			p.mu.Unlock()
			timer.Reset(p.keepAlive)
		}
	}
}

func (p *Pool) markBusy() {
	p.mu.Lock()
	p.busy++
	p.mu.Unlock()
}

func (p *Pool) retire() {
	p.mu.Lock()
	p.workers--
	p.mu.Unlock()
}

// Stats returns the current occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Workers: p.workers, Busy: p.busy, Queued: len(p.queue)}
}

// Shutdown stops accepting work and waits for workers to finish the work
// already accepted.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return
	}
	p.shutdown = true
	close(p.quit)
	p.mu.Unlock()

	p.wg.Wait()
}

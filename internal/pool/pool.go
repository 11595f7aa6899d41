// Package pool implements named, bounded worker pools with synchronous
// rejection: when a pool's queue is full, Submit returns
// vterrors.RejectedExecution immediately rather than blocking the caller
// or silently growing the queue. Each named concern gets its own pool;
// cmd/vindexd creates the index, search, bulk, and flush pools.
package pool

import (
	"context"
	"sync"

	"github.com/dreamware/vindex/internal/vterrors"
)

// Pool is a fixed number of worker goroutines draining a bounded channel.
type Pool struct {
	name    string
	tasks   chan func(ctx context.Context)
	wg      sync.WaitGroup
	stop    chan struct{}
}

// New starts a Pool named name with workers goroutines and a queue that
// holds at most queueSize pending tasks beyond what's already running.
func New(name string, workers, queueSize int) *Pool {
	p := &Pool{
		name:  name,
		tasks: make(chan func(ctx context.Context), queueSize),
		stop:  make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			return
		case task := <-p.tasks:
			task(context.Background())
		}
	}
}

// Submit enqueues fn for execution, returning vterrors.RejectedExecution
// immediately if the queue is already full — never blocking the caller.
func (p *Pool) Submit(fn func(ctx context.Context)) error {
	select {
	case p.tasks <- fn:
		return nil
	default:
		return &vterrors.RejectedExecution{Pool: p.name}
	}
}

// Stop signals every worker to exit after finishing its current task and
// waits for them to do so. Queued-but-not-started tasks are dropped.
func (p *Pool) Stop() {
	close(p.stop)
	p.wg.Wait()
}

// QueueDepth reports the number of tasks currently queued (not yet picked
// up by a worker), used by the operator surface's /health reporting.
func (p *Pool) QueueDepth() int {
	return len(p.tasks)
}

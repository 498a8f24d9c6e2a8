// Package concurrency provides a bounded worker pool used to dispatch
// strategy ticks and archive drain tasks without spawning an unbounded
// number of goroutines under load.
package concurrency

import (
	"github.com/alitto/pond"
)

// PoolConfig bounds a worker pool's concurrency and queue depth.
type PoolConfig struct {
	MaxWorkers int
	MaxQueued  int
}

// Pool wraps github.com/alitto/pond's fixed-size worker pool.
type Pool struct {
	inner *pond.WorkerPool
}

// NewPool builds a Pool per cfg.
func NewPool(cfg PoolConfig) *Pool {
	return &Pool{inner: pond.New(cfg.MaxWorkers, cfg.MaxQueued, pond.Strategy(pond.Balanced()))}
}

// Submit enqueues task to run asynchronously, blocking the caller only if
// the queue is full.
func (p *Pool) Submit(task func()) {
	p.inner.Submit(task)
}

// SubmitAndWait runs every task in tasks and blocks until all complete.
func (p *Pool) SubmitAndWait(tasks []func()) {
	group := p.inner.Group()
	for _, t := range tasks {
		group.Submit(t)
	}
	group.Wait()
}

// Stop waits for queued and running tasks to finish, then shuts the pool down.
func (p *Pool) Stop() {
	p.inner.StopAndWait()
}

// Stats reports current pool occupancy, surfaced on the control-plane's
// /stats route.
type Stats struct {
	Running   int
	Submitted uint64
	Completed uint64
}

// Stats returns a snapshot of the pool's current load.
func (p *Pool) Stats() Stats {
	return Stats{
		Running:   p.inner.RunningWorkers(),
		Submitted: p.inner.SubmittedTasks(),
		Completed: p.inner.CompletedTasks(),
	}
}

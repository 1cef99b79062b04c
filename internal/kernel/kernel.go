// Package kernel runs data-parallel stages of the detector.
//
// A stage is expressed as a function over a one-dimensional index domain
// [0, n). A Backend decides how that domain is split and executed; every
// Dispatch call returns only after all of its work has finished, so
// consecutive dispatches form barriers. Stages that produce a variable number
// of results compact them into a Buffer.
//
// Usage:
//
//	pool := kernel.NewPool(runtime.GOMAXPROCS(0))
//	defer pool.Close()
//
//	pool.Dispatch(height, func(start, end int) {
//	    for y := start; y < end; y++ {
//	        processRow(y)
//	    }
//	})
package kernel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Backend executes fn over disjoint ranges covering [0, n) and blocks until
// every range is done. fn must only write to state owned by its range.
type Backend interface {
	Dispatch(n int, fn func(start, end int))
}

// Sequential runs every dispatch inline on the calling goroutine.
type Sequential struct{}

// Dispatch calls fn(0, n).
func (Sequential) Dispatch(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	fn(0, n)
}

// Pool is a persistent worker pool. Workers are started once and reused for
// every dispatch until Close is called.
type Pool struct {
	numWorkers int
	workC      chan workItem
	closeOnce  sync.Once
	closed     atomic.Bool
}

type workItem struct {
	fn      func()
	barrier *sync.WaitGroup
}

// NewPool starts numWorkers workers. If numWorkers <= 0, GOMAXPROCS is used.
func NewPool(numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}

	p := &Pool{
		numWorkers: numWorkers,
		workC:      make(chan workItem, numWorkers*2),
	}
	for i := 0; i < numWorkers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for item := range p.workC {
		item.fn()
		item.barrier.Done()
	}
}

// NumWorkers returns the number of workers in the pool.
func (p *Pool) NumWorkers() int {
	return p.numWorkers
}

// Close stops the workers after pending work completes. Dispatching on a
// closed pool falls back to sequential execution. Close is idempotent but
// must not run concurrently with Dispatch.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.workC)
	})
}

// Dispatch splits [0, n) into one contiguous chunk per worker.
func (p *Pool) Dispatch(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	if p.closed.Load() {
		fn(0, n)
		return
	}

	workers := min(p.numWorkers, n)
	if workers == 1 {
		fn(0, n)
		return
	}

	chunk := (n + workers - 1) / workers

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		start := i * chunk
		end := min(start+chunk, n)
		if start >= n {
			wg.Done()
			continue
		}
		p.workC <- workItem{
			fn:      func() { fn(start, end) },
			barrier: &wg,
		}
	}
	wg.Wait()
}

// Each is a convenience wrapper that invokes fn once per index.
func Each(b Backend, n int, fn func(i int)) {
	b.Dispatch(n, func(start, end int) {
		for i := start; i < end; i++ {
			fn(i)
		}
	})
}

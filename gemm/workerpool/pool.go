// Copyright 2025 go-highway Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package workerpool provides the fork-join executor the GEMM driver uses
// to run a phase's row jobs across goroutines. It is a persistent pool in
// the same shape as contrib/workerpool: workers are spawned once and reused
// across many calls, instead of being spawned per matmul.
//
// Two things are added on top of that shape for the GEMM driver: each
// worker owns a private scratch slice (sized for one packed-A panel) that
// survives across ParallelFor calls, and a panic raised inside a job is
// captured and re-raised from the call that dispatched it, so a malformed
// tile never silently vanishes inside a worker goroutine.
package workerpool

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool is a persistent worker pool with per-worker scratch storage.
type Pool struct {
	numWorkers int
	scratch    [][]byte
	workC      chan workItem
	closeOnce  sync.Once
	closed     atomic.Bool
}

type workItem struct {
	fn      func(workerID int)
	barrier *sync.WaitGroup
	panics  *panicBox
}

type panicBox struct {
	mu  sync.Mutex
	val any
}

func (b *panicBox) record(v any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.val == nil {
		b.val = v
	}
}

// New creates a pool with numWorkers persistent goroutines, each with a
// private scratch buffer of scratchBytes bytes. If numWorkers <= 0, uses
// GOMAXPROCS. scratchBytes may be 0 if no worker-private scratch is needed.
func New(numWorkers, scratchBytes int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}

	p := &Pool{
		numWorkers: numWorkers,
		scratch:    make([][]byte, numWorkers),
		workC:      make(chan workItem, numWorkers*2),
	}
	for i := range p.scratch {
		if scratchBytes > 0 {
			p.scratch[i] = make([]byte, scratchBytes)
		}
	}

	for i := range numWorkers {
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	for item := range p.workC {
		func() {
			defer func() {
				if r := recover(); r != nil {
					item.panics.record(r)
				}
				item.barrier.Done()
			}()
			item.fn(id)
		}()
	}
}

// NumWorkers returns the number of workers in the pool.
func (p *Pool) NumWorkers() int {
	return p.numWorkers
}

// Scratch returns the private scratch buffer for worker id. Only valid
// from inside a job dispatched by this pool.
func (p *Pool) Scratch(id int) []byte {
	return p.scratch[id]
}

// Close shuts down the pool. Safe to call more than once.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.workC)
	})
}

// ParallelFor runs fn(workerID, start, end) for a static partition of
// [0, n) across the pool's workers, blocking until all partitions finish.
// Falls back to sequential execution (workerID 0) if the pool is closed or
// n is too small to split. A panic inside any fn is re-raised here once
// every partition has returned.
func (p *Pool) ParallelFor(n int, fn func(workerID, start, end int)) {
	if n <= 0 {
		return
	}
	if p.closed.Load() {
		fn(0, 0, n)
		return
	}

	workers := min(p.numWorkers, n)
	if workers <= 1 {
		fn(0, 0, n)
		return
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	var pb panicBox
	wg.Add(workers)

	for i := range workers {
		start := i * chunk
		end := min(start+chunk, n)
		if start >= n {
			wg.Done()
			continue
		}
		p.workC <- workItem{
			fn: func(workerID int) {
				fn(workerID, start, end)
			},
			barrier: &wg,
			panics:  &pb,
		}
	}
	wg.Wait()

	if pb.val != nil {
		panic(pb.val)
	}
}

// ParallelForAtomic runs fn(workerID, i) for each i in [0, n) using atomic
// work-stealing, for better load balance when per-item cost varies.
func (p *Pool) ParallelForAtomic(n int, fn func(workerID, i int)) {
	if n <= 0 {
		return
	}
	if p.closed.Load() {
		for i := range n {
			fn(0, i)
		}
		return
	}

	workers := min(p.numWorkers, n)
	if workers <= 1 {
		for i := range n {
			fn(0, i)
		}
		return
	}

	var next atomic.Int64
	var wg sync.WaitGroup
	var pb panicBox
	wg.Add(workers)

	for range workers {
		p.workC <- workItem{
			fn: func(workerID int) {
				for {
					idx := int(next.Add(1)) - 1
					if idx >= n {
						return
					}
					fn(workerID, idx)
				}
			},
			barrier: &wg,
			panics:  &pb,
		}
	}
	wg.Wait()

	if pb.val != nil {
		panic(pb.val)
	}
}

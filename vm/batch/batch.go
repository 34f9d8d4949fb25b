// Package batch runs a collection of independent PunkVM program images
// to completion in parallel, one single-threaded VM per image,
// aggregating pass/fail/cycle statistics. Grounded directly on
// pkg/search/worker.go's WorkerPool: the same channel-fed task queue,
// sync.WaitGroup join, sync/atomic counters, and time.Ticker progress
// reporter, repurposed from distributing superoptimizer search tasks to
// distributing VM runs. This does not add concurrency inside a single
// program's cycle loop (spec.md's non-goals rule out multi-core
// execution of one program); each task still runs on its own
// sequential, single-threaded vm.VM.
package batch

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/punkvm/punkvm/vm"
)

// Task is one independent program image to run to completion.
type Task struct {
	Name  string
	Image []byte
	Cfg   vm.Config // zero value means vm.DefaultConfig()
}

// Outcome is the result of running one Task.
type Outcome struct {
	Name   string
	Passed bool
	Err    error
	Cycles uint64
	Stats  vm.Stats
}

// Pool runs a batch of Tasks across a fixed number of worker
// goroutines, mirroring search.WorkerPool's field shape (NumWorkers
// plus atomic progress counters guarded by no mutex, since each counter
// is independently updated).
type Pool struct {
	NumWorkers int

	completed atomic.Int64
	passed    atomic.Int64
	failed    atomic.Int64
}

// NewPool creates a pool with the given number of workers; 0 or
// negative selects runtime.NumCPU(), matching
// search.NewWorkerPool's default.
func NewPool(numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &Pool{NumWorkers: numWorkers}
}

// Progress returns the pool's running completed/passed/failed counts.
func (p *Pool) Progress() (completed, passed, failed int64) {
	return p.completed.Load(), p.passed.Load(), p.failed.Load()
}

// Run distributes tasks across the pool's workers and blocks until
// every task has completed, returning one Outcome per task in
// submission order. A progress line is printed every 10 seconds while
// work remains, matching worker.go's RunTasks ticker cadence.
func (p *Pool) Run(tasks []Task, verbose bool) []Outcome {
	total := int64(len(tasks))
	outcomes := make([]Outcome, len(tasks))

	type indexedTask struct {
		idx  int
		task Task
	}
	ch := make(chan indexedTask, len(tasks))
	for i, t := range tasks {
		ch <- indexedTask{idx: i, task: t}
	}
	close(ch)

	done := make(chan struct{})
	start := time.Now()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				comp, passed, failed := p.Progress()
				elapsed := time.Since(start).Round(time.Second)
				pct := float64(comp) / float64(total) * 100
				fmt.Printf("  [%s] %d/%d programs (%.1f%%) | %d passed | %d failed\n",
					elapsed, comp, total, pct, passed, failed)
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < p.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range ch {
				outcomes[it.idx] = p.runOne(it.task, verbose)
				p.completed.Add(1)
				if outcomes[it.idx].Passed {
					p.passed.Add(1)
				} else {
					p.failed.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	close(done)

	comp, passed, failed := p.Progress()
	elapsed := time.Since(start).Round(time.Second)
	fmt.Printf("  [%s] %d/%d programs (100.0%%) | %d passed | %d failed | DONE\n",
		elapsed, comp, total, passed, failed)

	return outcomes
}

// runOne loads and runs a single task's image on a fresh VM, grounded
// on worker.go's processTask: construct, execute, record the outcome,
// never letting one failing program abort the batch.
func (p *Pool) runOne(t Task, verbose bool) Outcome {
	cfg := t.Cfg
	if cfg.MemorySize == 0 {
		cfg = vm.DefaultConfig()
	}
	machine, err := vm.New(cfg)
	if err != nil {
		return Outcome{Name: t.Name, Passed: false, Err: fmt.Errorf("batch: construct vm for %s: %w", t.Name, err)}
	}
	if err := machine.LoadProgram(t.Image); err != nil {
		return Outcome{Name: t.Name, Passed: false, Err: fmt.Errorf("batch: load program %s: %w", t.Name, err)}
	}
	runErr := machine.Run()
	stats := machine.Stats()
	if verbose {
		if runErr != nil {
			fmt.Printf("  FAIL: %s: %v\n", t.Name, runErr)
		} else {
			fmt.Printf("  PASS: %s (%d cycles)\n", t.Name, stats.Cycles)
		}
	}
	return Outcome{
		Name:   t.Name,
		Passed: runErr == nil,
		Err:    runErr,
		Cycles: stats.Cycles,
		Stats:  stats,
	}
}

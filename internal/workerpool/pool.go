// Package workerpool wraps automation/tools/worker.DynamicWorkerPool in a
// small, reusable surface for parallelizable CPU steps in this engine; its
// one caller is the scene frame driver's per-object prep fan-out (C7). The teacher's
// engine/scene/scene.go spins one such pool for its own exclusive use; this
// package generalizes that single call site so a second caller does not
// have to duplicate the construction/WaitGroup-barrier pattern.
package workerpool

import (
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
)

// Pool runs submitted work items across a bounded, reused goroutine set.
// Workers persist across calls to Run, avoiding per-call spawn/teardown
// overhead, matching the teacher's rationale for keeping computePool alive
// across frames rather than recreating it.
type Pool struct {
	raw worker.DynamicWorkerPool
}

// Default queue depth and idle timeout, copied from the teacher's own
// constants at its one call site (engine/scene/scene.go's NewScene).
const (
	defaultQueueSize = 256
	defaultIdle      = 1 * time.Second
)

// New creates a Pool with workers goroutines. workers is clamped to at
// least 1.
func New(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{raw: worker.NewDynamicWorkerPool(workers, defaultQueueSize, defaultIdle)}
}

// Run submits every fn in jobs to the pool and blocks until all have
// returned, collecting the first non-nil error. Jobs run concurrently with
// each other; this call itself is a barrier, mirroring the teacher's
// per-frame "submit all animator prep, then wg.Wait()" phase.
func (p *Pool) Run(jobs []func() error) error {
	var wg sync.WaitGroup
	errs := make([]error, len(jobs))
	for i, job := range jobs {
		wg.Add(1)
		idx := i
		fn := job
		p.raw.SubmitTask(worker.Task{
			ID: idx,
			Do: func() (any, error) {
				defer wg.Done()
				err := fn()
				errs[idx] = err
				return nil, err
			},
		})
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

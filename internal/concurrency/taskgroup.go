// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TaskGroup tracks running tasks by key and guarantees join-on-shutdown.

package concurrency

import (
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// TaskGroup runs one goroutine per task and keeps a value for every task
// still running. Finished tasks remove themselves, so the tracked set is
// always the live set. Go must not be called concurrently with Wait.
type TaskGroup[K comparable, V any] struct {
	mu    sync.Mutex
	tasks map[K]V
	wg    conc.WaitGroup

	started  atomic.Int64
	finished atomic.Int64
}

// NewTaskGroup creates an empty group.
func NewTaskGroup[K comparable, V any]() *TaskGroup[K, V] {
	return &TaskGroup[K, V]{tasks: make(map[K]V)}
}

// Go registers val under key and runs fn on a new goroutine. A panic in fn
// is captured and reported by Wait.
func (g *TaskGroup[K, V]) Go(key K, val V, fn func()) {
	g.mu.Lock()
	g.tasks[key] = val
	g.mu.Unlock()
	g.started.Add(1)

	g.wg.Go(func() {
		defer func() {
			g.mu.Lock()
			delete(g.tasks, key)
			g.mu.Unlock()
			g.finished.Add(1)
		}()
		fn()
	})
}

// Each calls fn for every running task. fn runs outside the group lock and
// sees a snapshot taken at call time.
func (g *TaskGroup[K, V]) Each(fn func(K, V)) {
	g.mu.Lock()
	keys := make([]K, 0, len(g.tasks))
	vals := make([]V, 0, len(g.tasks))
	for k, v := range g.tasks {
		keys = append(keys, k)
		vals = append(vals, v)
	}
	g.mu.Unlock()
	for i := range keys {
		fn(keys[i], vals[i])
	}
}

// Len returns the number of running tasks.
func (g *TaskGroup[K, V]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tasks)
}

// Wait blocks until every task has returned. The first recovered panic, if
// any, is returned instead of being re-raised.
func (g *TaskGroup[K, V]) Wait() *panics.Recovered {
	return g.wg.WaitAndRecover()
}

// Stats returns task counters.
func (g *TaskGroup[K, V]) Stats() map[string]int64 {
	started := g.started.Load()
	finished := g.finished.Load()
	return map[string]int64{
		"started_tasks":  started,
		"finished_tasks": finished,
		"running_tasks":  started - finished,
	}
}

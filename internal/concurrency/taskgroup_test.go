package concurrency_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/evsock/internal/concurrency"
)

func TestTaskGroupTracksLiveTasks(t *testing.T) {
	g := concurrency.NewTaskGroup[int, string]()
	release := make(chan struct{})
	var started sync.WaitGroup
	for i := 0; i < 3; i++ {
		started.Add(1)
		g.Go(i, "task", func() {
			started.Done()
			<-release
		})
	}
	started.Wait()
	assert.Equal(t, 3, g.Len())

	seen := map[int]string{}
	g.Each(func(k int, v string) { seen[k] = v })
	assert.Len(t, seen, 3)

	close(release)
	require.Nil(t, g.Wait())
	assert.Zero(t, g.Len())
	assert.Equal(t, int64(3), g.Stats()["finished_tasks"])
	assert.Zero(t, g.Stats()["running_tasks"])
}

func TestTaskGroupRecoversPanics(t *testing.T) {
	g := concurrency.NewTaskGroup[string, int]()
	g.Go("boom", 1, func() { panic("handler exploded") })
	g.Go("ok", 2, func() {})

	rec := g.Wait()
	require.NotNil(t, rec)
	assert.Equal(t, "handler exploded", rec.Value)
	assert.Zero(t, g.Len(), "panicking task still leaves the tracked set")
}

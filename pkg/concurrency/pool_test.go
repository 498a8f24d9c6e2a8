package concurrency

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolSubmitRunsTask(t *testing.T) {
	p := NewPool(PoolConfig{MaxWorkers: 2, MaxQueued: 8})
	defer p.Stop()

	var ran int32
	p.Submit(func() { atomic.AddInt32(&ran, 1) })

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&ran) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestPoolSubmitAndWaitRunsAllTasks(t *testing.T) {
	p := NewPool(PoolConfig{MaxWorkers: 4, MaxQueued: 16})
	defer p.Stop()

	var count int32
	tasks := make([]func(), 0, 10)
	for i := 0; i < 10; i++ {
		tasks = append(tasks, func() { atomic.AddInt32(&count, 1) })
	}
	p.SubmitAndWait(tasks)

	assert.Equal(t, int32(10), atomic.LoadInt32(&count))
}

func TestPoolStatsReflectsCompletedTasks(t *testing.T) {
	p := NewPool(PoolConfig{MaxWorkers: 2, MaxQueued: 8})
	defer p.Stop()

	p.SubmitAndWait([]func(){func() {}, func() {}})

	stats := p.Stats()
	assert.GreaterOrEqual(t, stats.Completed, uint64(2))
}

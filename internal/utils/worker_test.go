package utils

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	tomb "gopkg.in/tomb.v2"
)

func TestWorkerPool_ProcessesTasks(t *testing.T) {
	tb, _ := tomb.WithContext(context.Background())
	pool := NewWorkerPool(2)

	var total int32
	go pool.Setup(tb, func(_ *tomb.Tomb, task any) error {
		atomic.AddInt32(&total, int32(task.(int)))
		return nil
	})

	pool.AddTask(1)
	pool.AddTask(2)
	pool.AddTask(4)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&total) == 7
	}, time.Second, time.Millisecond)

	tb.Kill(nil)
	assert.NoError(t, tb.Wait())
}

func TestWorkerPool_StopsOnKill(t *testing.T) {
	tb, _ := tomb.WithContext(context.Background())
	pool := NewWorkerPool(1)

	started := make(chan struct{})
	go pool.Setup(tb, func(_ *tomb.Tomb, _ any) error {
		close(started)
		return nil
	})

	pool.AddTask(struct{}{})
	<-started
	tb.Kill(nil)
	assert.NoError(t, tb.Wait())
}

func TestNewWorkerPool_ClampsSize(t *testing.T) {
	pool := NewWorkerPool(0)
	assert.Equal(t, 1, pool.n)
}

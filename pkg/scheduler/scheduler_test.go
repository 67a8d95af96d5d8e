package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"
)

func TestEveryRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var n atomic.Int32
	done := make(chan struct{})

	go func() {
		Every(ctx, zaptest.NewLogger(t), Task{
			Name:     "count",
			Interval: 5 * time.Millisecond,
			Run: func(context.Context) error {
				n.Add(1)
				return nil
			},
		})
		close(done)
	}()

	require.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Every did not return after cancel")
	}
}

func TestEveryKeepsGoingAfterErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var n atomic.Int32
	done := make(chan struct{})

	go func() {
		Every(ctx, zaptest.NewLogger(t), Task{
			Name:     "flaky",
			Interval: 5 * time.Millisecond,
			Run: func(context.Context) error {
				n.Add(1)
				return errors.New("peer unreachable")
			},
		})
		close(done)
	}()

	assert.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestRunStartsAllTasks(t *testing.T) {
	g, ctx := errgroup.WithContext(context.Background())
	ctx, cancel := context.WithCancel(ctx)
	var a, b atomic.Int32

	Run(ctx, g, zaptest.NewLogger(t),
		Task{Name: "a", Interval: 3 * time.Millisecond, Run: func(context.Context) error { a.Add(1); return nil }},
		Task{Name: "b", Interval: 4 * time.Millisecond, Run: func(context.Context) error { b.Add(1); return nil }},
	)

	require.Eventually(t, func() bool { return a.Load() > 0 && b.Load() > 0 }, time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, g.Wait())
}

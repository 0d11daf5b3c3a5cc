package eventloop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runLoop(t *testing.T) (*Loop, context.CancelFunc, <-chan error) {
	t.Helper()

	l := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	t.Cleanup(cancel)
	return l, cancel, done
}

func TestLoopRunsPostsInOrder(t *testing.T) {
	l, _, _ := runLoop(t)

	results := make(chan int, 100)
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() { results <- i })
	}

	for want := 0; want < 100; want++ {
		select {
		case got := <-results:
			require.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for callback %d", want)
		}
	}
}

func TestLoopPostFromCallback(t *testing.T) {
	l, _, _ := runLoop(t)

	done := make(chan struct{})
	l.Post(func() {
		l.Post(func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("nested post never ran")
	}
}

func TestLoopAsyncPostsContinuation(t *testing.T) {
	l, _, _ := runLoop(t)

	var onLoop atomic.Bool
	done := make(chan string, 1)
	l.Async(func() func() {
		value := "listed"
		return func() {
			onLoop.Store(true)
			done <- value
		}
	})

	select {
	case got := <-done:
		assert.Equal(t, "listed", got)
		assert.True(t, onLoop.Load())
	case <-time.After(2 * time.Second):
		t.Fatal("continuation never ran")
	}
}

func TestLoopRecoversFromPanic(t *testing.T) {
	l, _, _ := runLoop(t)

	done := make(chan struct{})
	l.Post(func() { panic("boom") })
	l.Post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop stopped after panic")
	}
}

func TestLoopStopsOnCancel(t *testing.T) {
	l, cancel, done := runLoop(t)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	ran := false
	l.Post(func() { ran = true })
	assert.False(t, ran)
}

package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartLoops_WaitsForEveryLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var stopped atomic.Int32
	loop := func(ctx context.Context) {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		stopped.Add(1)
	}
	wait := startLoops(ctx, loop, loop)

	cancel()
	wait()
	assert.Equal(t, int32(2), stopped.Load())
}

func TestStartLoops_NoLoops(t *testing.T) {
	wait := startLoops(context.Background())

	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait blocked with nothing running")
	}
}

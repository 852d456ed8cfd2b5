package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackground_WaitBlocksUntilCancelledWorkReturns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var bg background
	var finished atomic.Int32

	for i := 0; i < 3; i++ {
		bg.Go(func() {
			<-ctx.Done()
			time.Sleep(10 * time.Millisecond)
			finished.Add(1)
		})
	}

	done := make(chan struct{})
	go func() {
		bg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before work was cancelled")
	case <-time.After(20 * time.Millisecond):
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after cancel")
	}
	assert.Equal(t, int32(3), finished.Load())
}

func TestBackground_WaitWithNothingStarted(t *testing.T) {
	var bg background
	bg.Wait()
}

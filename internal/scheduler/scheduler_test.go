package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestStartIntervalRunsRepeatedly(t *testing.T) {
	s := New(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var count int32
	s.StartInterval(ctx, "test-job", 5*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt32(&count, 1)
	})

	time.Sleep(30 * time.Millisecond)
	cancel()
	s.Shutdown()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&count), int32(2))
}

func TestRunSafelyRecoversPanic(t *testing.T) {
	s := New(zerolog.Nop())
	assert.NotPanics(t, func() {
		s.runSafely(context.Background(), "panicky", func(ctx context.Context) {
			panic("boom")
		})
	})
}

func TestStartDailyFiresOnlyOncePerDay(t *testing.T) {
	s := New(zerolog.Nop())
	fixed := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	var count int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.StartDaily(ctx, "digest", 9, 0, func(ctx context.Context) {
		atomic.AddInt32(&count, 1)
	})

	time.Sleep(10 * time.Millisecond)
	cancel()
	s.Shutdown()

	assert.LessOrEqual(t, atomic.LoadInt32(&count), int32(1))
}

func TestShutdownReturnsPromptlyWhenNoJobsRegistered(t *testing.T) {
	s := New(zerolog.Nop())
	done := make(chan struct{})
	go func() {
		s.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Shutdown did not return promptly with no registered jobs")
	}
}

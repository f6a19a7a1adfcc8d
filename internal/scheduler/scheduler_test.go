package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"tootkeeper/internal/collector"
)

type mockRunner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockRunner) RunFullSync(_ context.Context) (collector.Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return collector.Counts{Toots: 1}, m.err
}

func (m *mockRunner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedulerRunsImmediately(t *testing.T) {
	runner := &mockRunner{}
	sched := New(runner, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// With a cancelled context the loop exits right after the initial pass,
	// but the initial pass itself is gated on ctx too.
	sched.Run(ctx)

	if diff := cmp.Diff(0, runner.callCount()); diff != "" {
		t.Errorf("call count mismatch (-want +got):\n%s", diff)
	}
}

func TestSchedulerTicks(t *testing.T) {
	runner := &mockRunner{}
	sched := New(runner, testLogger())
	sched.SetTickInterval(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}

	// One immediate pass plus at least one tick.
	if got := runner.callCount(); got < 2 {
		t.Errorf("expected at least 2 sync passes, got %d", got)
	}
}

func TestSchedulerKeepsTickingAfterErrors(t *testing.T) {
	runner := &mockRunner{err: collector.ErrAlreadyRunning}
	sched := New(runner, testLogger())
	sched.SetTickInterval(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	sched.Run(ctx)

	if got := runner.callCount(); got < 2 {
		t.Errorf("expected scheduler to keep running despite errors, got %d passes", got)
	}
}

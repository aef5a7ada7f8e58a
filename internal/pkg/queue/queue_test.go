package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQueue_RunsJobs(t *testing.T) {
	q := NewQueue(testLogger(), 2, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var completed atomic.Int32
	for i := 0; i < 5; i++ {
		ok := q.Enqueue(func(ctx context.Context) error {
			completed.Add(1)
			return nil
		})
		if !ok {
			t.Fatalf("enqueue rejected job %d", i)
		}
	}

	q.Shutdown()

	if completed.Load() != 5 {
		t.Fatalf("expected 5 completed jobs, got %d", completed.Load())
	}
	stats := q.Snapshot()
	if stats.Enqueued != 5 || stats.Succeeded != 5 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestQueue_ErrorHandler(t *testing.T) {
	q := NewQueue(testLogger(), 1, 4)

	var handled atomic.Int32
	q.SetErrorHandler(func(err error, job Job) {
		handled.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	q.Enqueue(func(ctx context.Context) error { return nil })
	q.Enqueue(func(ctx context.Context) error { return errors.New("smtp down") })

	q.Shutdown()

	if handled.Load() != 1 {
		t.Fatalf("expected error handler to run once, got %d", handled.Load())
	}
	stats := q.Snapshot()
	if stats.Failed != 1 || stats.Succeeded != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestQueue_FullDropsJob(t *testing.T) {
	q := NewQueue(testLogger(), 1, 1)
	// 不启动 worker，让队列保持满

	if !q.Enqueue(func(ctx context.Context) error { return nil }) {
		t.Fatalf("first enqueue should succeed")
	}
	if q.Enqueue(func(ctx context.Context) error { return nil }) {
		t.Fatalf("second enqueue should be dropped")
	}
	if q.Snapshot().Dropped != 1 {
		t.Fatalf("expected one dropped job")
	}
}

func TestQueue_PanicRecovered(t *testing.T) {
	q := NewQueue(testLogger(), 1, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	q.Enqueue(func(ctx context.Context) error { panic("boom") })
	q.Enqueue(func(ctx context.Context) error { return nil })

	q.Shutdown()

	stats := q.Snapshot()
	if stats.Panics != 1 {
		t.Fatalf("expected one recovered panic, got %d", stats.Panics)
	}
	if stats.Succeeded != 1 {
		t.Fatalf("worker must survive a panic, got %+v", stats)
	}
}

func TestQueue_RejectsAfterShutdown(t *testing.T) {
	q := NewQueue(testLogger(), 1, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	q.Shutdown()

	if q.Enqueue(func(ctx context.Context) error { return nil }) {
		t.Fatalf("closed queue must reject jobs")
	}
}

func TestQueue_ShutdownWithTimeout(t *testing.T) {
	q := NewQueue(testLogger(), 1, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	q.Enqueue(func(ctx context.Context) error {
		time.Sleep(10 * time.Millisecond)
		return nil
	})

	if err := q.ShutdownWithTimeout(time.Second); err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
	if err := q.ShutdownWithTimeout(time.Second); err == nil {
		t.Fatalf("second shutdown must report already closed")
	}
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestMemoryQueueRoundTrip(t *testing.T) {
	t.Parallel()

	q := NewMemory(4)
	ctx := context.Background()

	if err := q.Enqueue(ctx, json.RawMessage(`{"n":1}`)); err != nil {
		t.Fatalf("unexpected enqueue error: %v", err)
	}
	if err := q.Enqueue(ctx, json.RawMessage(`{"n":2}`)); err != nil {
		t.Fatalf("unexpected enqueue error: %v", err)
	}

	first, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("unexpected dequeue error: %v", err)
	}
	if string(first) != `{"n":1}` {
		t.Fatalf("expected FIFO order, got %s", first)
	}
}

func TestMemoryQueueDequeueBlocksUntilEnqueue(t *testing.T) {
	t.Parallel()

	q := NewMemory(1)
	got := make(chan json.RawMessage, 1)

	go func() {
		payload, err := q.Dequeue(context.Background())
		if err != nil {
			return
		}
		got <- payload
	}()

	time.Sleep(10 * time.Millisecond)
	if err := q.Enqueue(context.Background(), json.RawMessage(`{}`)); err != nil {
		t.Fatalf("unexpected enqueue error: %v", err)
	}

	select {
	case payload := <-got:
		if string(payload) != `{}` {
			t.Fatalf("unexpected payload: %s", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not wake up after enqueue")
	}
}

func TestMemoryQueueDequeueHonorsContext(t *testing.T) {
	t.Parallel()

	q := NewMemory(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := q.Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestMemoryQueueDrainsAfterClose(t *testing.T) {
	t.Parallel()

	q := NewMemory(4)
	ctx := context.Background()

	if err := q.Enqueue(ctx, json.RawMessage(`{"n":1}`)); err != nil {
		t.Fatalf("unexpected enqueue error: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	if _, err := q.Dequeue(ctx); err != nil {
		t.Fatalf("expected the buffered payload to drain, got %v", err)
	}
	if _, err := q.Dequeue(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after drain, got %v", err)
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := Retry(context.Background(), 4, time.Millisecond, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("transient %d", attempts)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryAbandonsAtCeiling(t *testing.T) {
	t.Parallel()

	attempts := 0
	err := Retry(context.Background(), 3, time.Millisecond, func(context.Context) error {
		attempts++
		return fmt.Errorf("always failing")
	})
	if err == nil {
		t.Fatal("expected an error at the ceiling")
	}
	if attempts != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", attempts)
	}
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Retry(ctx, 10, 50*time.Millisecond, func(context.Context) error {
		attempts++
		cancel()
		return fmt.Errorf("failing")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt before cancellation, got %d", attempts)
	}
}

package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestEnqueueValidation(t *testing.T) {
	q := New(4)
	if _, err := q.Enqueue(Job{}); err == nil {
		t.Fatal("expected validation error for missing callback")
	}
	if _, err := q.Enqueue(Job{Run: func(context.Context) error { return nil }, MaxRetries: -1}); err == nil {
		t.Fatal("expected validation error for negative retries")
	}
}

func TestJobsRunInArrivalOrder(t *testing.T) {
	q := New(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var order []int
	done := make(chan struct{})
	for i := 1; i <= 3; i++ {
		i := i
		_, err := q.Enqueue(Job{Run: func(context.Context) error {
			order = append(order, i)
			if i == 3 {
				close(done)
			}
			return nil
		}})
		if err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	if err := q.Start(ctx, 1); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("jobs did not run")
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("unexpected order: %v", order)
	}
	if err := q.Stop(time.Second); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	stats := q.Stats()
	if stats.Completed != 3 || stats.Enqueued != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestRetryThenFail(t *testing.T) {
	q := New(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts atomic.Int32
	failed := make(chan struct{})
	_, err := q.Enqueue(Job{
		MaxRetries: 2,
		Run: func(context.Context) error {
			if attempts.Add(1) == 3 {
				close(failed)
			}
			return errors.New("persistent failure")
		},
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if err := q.Start(ctx, 1); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer q.Stop(time.Second)

	select {
	case <-failed:
	case <-time.After(time.Second):
		t.Fatalf("expected 3 attempts, got %d", attempts.Load())
	}

	deadline := time.Now().Add(time.Second)
	for {
		stats := q.Stats()
		if stats.Failed == 1 && stats.Retried == 2 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("unexpected stats: %+v", stats)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRetryEventuallySucceeds(t *testing.T) {
	q := New(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var attempts atomic.Int32
	done := make(chan struct{})
	_, err := q.Enqueue(Job{
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
		Run: func(context.Context) error {
			if attempts.Add(1) < 3 {
				return errors.New("transient")
			}
			close(done)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if err := q.Start(ctx, 1); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer q.Stop(time.Second)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never succeeded")
	}
}

func TestAttemptTimeoutCancelsRun(t *testing.T) {
	q := New(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	canceled := make(chan struct{})
	_, err := q.Enqueue(Job{
		AttemptTimeout: 10 * time.Millisecond,
		Run: func(runCtx context.Context) error {
			<-runCtx.Done()
			close(canceled)
			return runCtx.Err()
		},
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if err := q.Start(ctx, 1); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer q.Stop(time.Second)

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("attempt timeout did not fire")
	}
}

func TestDoubleStartRejected(t *testing.T) {
	q := New(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Start(ctx, 1); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer q.Stop(time.Second)
	if err := q.Start(ctx, 1); !errors.Is(err, ErrQueueStarted) {
		t.Fatalf("expected ErrQueueStarted, got: %v", err)
	}
}

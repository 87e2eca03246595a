package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/huddle/internal/domain/model"
)

func job(user string) model.StreakJob {
	return model.StreakJob{
		UserID:  user,
		OrgID:   "org1",
		EventID: "event1",
		At:      time.Date(2025, 3, 20, 18, 0, 0, 0, time.UTC),
	}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if c := q.Capacity(); c != 2 {
		t.Errorf("expected capacity 2, got %d", c)
	}

	if err := q.Enqueue(ctx, job("u1")); err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.UserID != "u1" {
		t.Errorf("expected u1, got %v", got.UserID)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	for _, u := range []string{"u1", "u2"} {
		if err := q.Enqueue(ctx, job(u)); err != nil {
			t.Fatalf("expected enqueue of %s to succeed, got %v", u, err)
		}
	}

	if err := q.Enqueue(ctx, job("u3")); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_IgnoresNonPositiveCapacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(0))
	if q.Capacity() != defaultQueueCapacity {
		t.Errorf("expected default capacity %d, got %d", defaultQueueCapacity, q.Capacity())
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := q.Enqueue(ctx, job("u1")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if l := q.Len(context.Background()); l != 0 {
		t.Errorf("expected nothing queued, got %d", l)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(50))
	ctx := context.Background()
	producers := 10
	perProducer := 100

	var consumers sync.WaitGroup
	seen := make(chan string, producers*perProducer)
	for i := 0; i < 4; i++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for j := range q.Dequeue(ctx) {
				seen <- j.UserID
			}
		}()
	}

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				for q.Enqueue(ctx, job(fmt.Sprintf("u%d_%d", id, j))) != nil {
					time.Sleep(time.Millisecond)
				}
			}
		}(i)
	}
	wg.Wait()

	if err := q.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	consumers.Wait()
	close(seen)

	unique := make(map[string]struct{})
	for id := range seen {
		if _, dup := unique[id]; dup {
			t.Errorf("job %s delivered twice", id)
		}
		unique[id] = struct{}{}
	}
	if len(unique) != producers*perProducer {
		t.Errorf("expected %d jobs, got %d", producers*perProducer, len(unique))
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if err := q.Enqueue(ctx, job("u1")); err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	if err := q.Enqueue(ctx, job("u2")); err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}

	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}

	if err := q.Enqueue(ctx, job("u3")); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}

	// Jobs queued before Close are still delivered, then the channel closes.
	var drained []string
	timeout := time.After(100 * time.Millisecond)
	jobs := q.Dequeue(ctx)
	for open := true; open; {
		select {
		case j, ok := <-jobs:
			if !ok {
				open = false
				continue
			}
			drained = append(drained, j.UserID)
		case <-timeout:
			t.Fatal("expected dequeue channel to be closed within timeout")
		}
	}
	if len(drained) != 2 || drained[0] != "u1" || drained[1] != "u2" {
		t.Errorf("expected [u1 u2] drained in order, got %v", drained)
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected second close to succeed, got error: %v", err)
	}
}

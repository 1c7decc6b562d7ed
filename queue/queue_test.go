package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	records "github.com/medvertical/records"
	"github.com/medvertical/records/retry"
)

func okValidator(ctx context.Context, resource []byte) (*records.Result, error) {
	result := records.NewResult()
	result.Finalize(nil)
	return result, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}

func TestPriorityOrdering(t *testing.T) {
	var mu sync.Mutex
	var order []Priority

	q := New(okValidator, WithWorkers(1))
	defer q.Stop()

	q.Events().Subscribe(func(ev Event) {
		if ev.Type == EventItemCompleted {
			mu.Lock()
			order = append(order, ev.Item.Priority)
			mu.Unlock()
		}
	})

	q.Pause()
	for _, p := range []Priority{PriorityLow, PriorityCritical, PriorityNormal, PriorityHigh} {
		if _, err := q.Submit([]byte(`{}`), WithPriority(p)); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	q.Resume()

	waitFor(t, func() bool { return q.Stats().Completed == 4 })

	mu.Lock()
	defer mu.Unlock()
	want := []Priority{PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow}
	for i, p := range want {
		if order[i] != p {
			t.Fatalf("order[%d] = %s; want %s (full order %v)", i, order[i], p, order)
		}
	}
}

func TestFIFOWithinPriority(t *testing.T) {
	var mu sync.Mutex
	var order []string

	q := New(okValidator, WithWorkers(1))
	defer q.Stop()

	q.Events().Subscribe(func(ev Event) {
		if ev.Type == EventItemCompleted {
			mu.Lock()
			order = append(order, string(ev.Item.Resource))
			mu.Unlock()
		}
	})

	q.Pause()
	for _, payload := range []string{"first", "second", "third"} {
		if _, err := q.Submit([]byte(payload)); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	q.Resume()

	waitFor(t, func() bool { return q.Stats().Completed == 3 })

	mu.Lock()
	defer mu.Unlock()
	want := []string{"first", "second", "third"}
	for i, payload := range want {
		if order[i] != payload {
			t.Fatalf("order = %v; want %v", order, want)
		}
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	var calls atomic.Int32
	validator := func(ctx context.Context, resource []byte) (*records.Result, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("transient")
		}
		return okValidator(ctx, resource)
	}

	q := New(validator,
		WithWorkers(1),
		WithRetryPolicy(retry.Policy{MaxAttempts: 3, Delay: time.Millisecond}))
	defer q.Stop()

	id, err := q.Submit([]byte(`{}`))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	waitFor(t, func() bool {
		item, ok := q.Get(id)
		return ok && item.State == StateCompleted
	})

	item, _ := q.Get(id)
	if len(item.Attempts) != 3 {
		t.Errorf("len(Attempts) = %d; want 3", len(item.Attempts))
	}
	if item.Result == nil {
		t.Error("Result is nil")
	}
	if item.Err != nil {
		t.Errorf("Err = %v; want nil", item.Err)
	}
}

func TestRetryExhausted(t *testing.T) {
	validator := func(ctx context.Context, resource []byte) (*records.Result, error) {
		return nil, errors.New("permanent")
	}

	q := New(validator,
		WithWorkers(1),
		WithRetryPolicy(retry.Policy{MaxAttempts: 2, Delay: time.Millisecond}))
	defer q.Stop()

	var failed atomic.Int32
	q.Events().Subscribe(func(ev Event) {
		if ev.Type == EventItemFailed {
			failed.Add(1)
		}
	})

	id, err := q.Submit([]byte(`{}`))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	waitFor(t, func() bool {
		item, ok := q.Get(id)
		return ok && item.State == StateFailed
	})

	item, _ := q.Get(id)
	if item.Err == nil {
		t.Error("Err is nil for failed item")
	}
	if len(item.Attempts) != 2 {
		t.Errorf("len(Attempts) = %d; want 2", len(item.Attempts))
	} else if item.Attempts[1].Err == nil {
		t.Error("final attempt Err is nil")
	}
	if failed.Load() != 1 {
		t.Errorf("failed events = %d; want 1", failed.Load())
	}
	if stats := q.Stats(); stats.Failed != 1 {
		t.Errorf("Stats().Failed = %d; want 1", stats.Failed)
	}
}

func TestCancel(t *testing.T) {
	q := New(okValidator, WithWorkers(1))
	defer q.Stop()

	q.Pause()
	id, err := q.Submit([]byte(`{}`))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if !q.Cancel(id) {
		t.Fatal("Cancel() = false; want true")
	}
	if q.Cancel(id) {
		t.Error("second Cancel() = true; want false")
	}

	item, ok := q.Get(id)
	if !ok || item.State != StateCancelled {
		t.Errorf("state = %s; want %s", item.State, StateCancelled)
	}

	q.Resume()
	time.Sleep(20 * time.Millisecond)
	if stats := q.Stats(); stats.Completed != 0 {
		t.Errorf("Completed = %d after cancel; want 0", stats.Completed)
	}
}

func TestCancelBatch(t *testing.T) {
	q := New(okValidator, WithWorkers(1))
	defer q.Stop()

	q.Pause()
	batchID, ids, err := q.SubmitBatch([][]byte{[]byte(`a`), []byte(`b`), []byte(`c`)})
	if err != nil {
		t.Fatalf("SubmitBatch() error = %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("ids = %d; want 3", len(ids))
	}

	if n := q.CancelBatch(batchID); n != 3 {
		t.Errorf("CancelBatch() = %d; want 3", n)
	}
	for _, id := range ids {
		item, _ := q.Get(id)
		if item.State != StateCancelled {
			t.Errorf("item %s state = %s; want cancelled", id, item.State)
		}
		if item.BatchID != batchID {
			t.Errorf("item BatchID = %q; want %q", item.BatchID, batchID)
		}
	}
}

func TestPauseResume(t *testing.T) {
	q := New(okValidator, WithWorkers(2))
	defer q.Stop()

	q.Pause()
	if _, err := q.Submit([]byte(`{}`)); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if stats := q.Stats(); stats.Completed != 0 || stats.Queued != 1 {
		t.Errorf("while paused: completed %d queued %d; want 0, 1", stats.Completed, stats.Queued)
	}

	q.Resume()
	waitFor(t, func() bool { return q.Stats().Completed == 1 })
}

func TestStopCancelsQueued(t *testing.T) {
	q := New(okValidator, WithWorkers(1))

	q.Pause()
	id1, _ := q.Submit([]byte(`{}`))
	id2, _ := q.Submit([]byte(`{}`))
	q.Stop()

	for _, id := range []uuid.UUID{id1, id2} {
		item, _ := q.Get(id)
		if item.State != StateCancelled {
			t.Errorf("item state = %s; want cancelled", item.State)
		}
	}

	if _, err := q.Submit([]byte(`{}`)); !errors.Is(err, ErrStopped) {
		t.Errorf("Submit() after Stop error = %v; want ErrStopped", err)
	}
}

func TestRequesterRecorded(t *testing.T) {
	q := New(okValidator, WithWorkers(1))
	defer q.Stop()

	id, err := q.Submit([]byte(`{}`), WithRequester("batch-import"), WithPriority(PriorityHigh))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	waitFor(t, func() bool {
		item, ok := q.Get(id)
		return ok && item.State == StateCompleted
	})

	item, _ := q.Get(id)
	if item.Requester != "batch-import" {
		t.Errorf("Requester = %q; want batch-import", item.Requester)
	}
	if item.Priority != PriorityHigh {
		t.Errorf("Priority = %s; want high", item.Priority)
	}
}

func TestParsePriority(t *testing.T) {
	for name, want := range map[string]Priority{
		"low": PriorityLow, "normal": PriorityNormal,
		"high": PriorityHigh, "critical": PriorityCritical,
	} {
		got, err := ParsePriority(name)
		if err != nil || got != want {
			t.Errorf("ParsePriority(%q) = %v, %v; want %v", name, got, err, want)
		}
	}
	if _, err := ParsePriority("urgent"); err == nil {
		t.Error("ParsePriority(urgent) error = nil; want error")
	}
}

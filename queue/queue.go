// Package queue schedules validations by priority with bounded worker
// concurrency, per-item retry, and lifecycle events.
package queue

import (
	"container/heap"
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	records "github.com/medvertical/records"
	"github.com/medvertical/records/event"
	"github.com/medvertical/records/retry"
)

// Validator runs one validation. The engine's Validate method
// satisfies it.
type Validator func(ctx context.Context, resource []byte) (*records.Result, error)

// ErrStopped is returned by Submit after Stop has been called.
var ErrStopped = errors.New("queue: stopped")

// EventType identifies what a queue event describes.
type EventType string

const (
	EventItemQueued        EventType = "itemQueued"
	EventItemCompleted     EventType = "itemCompleted"
	EventItemFailed        EventType = "itemFailed"
	EventItemCancelled     EventType = "itemCancelled"
	EventProcessingStarted EventType = "processingStarted"
	EventProcessingPaused  EventType = "processingPaused"
	EventProcessingResumed EventType = "processingResumed"
	EventProcessingStopped EventType = "processingStopped"
)

// Event is published as items move through the queue. Item is a
// snapshot; mutating it has no effect on the queue.
type Event struct {
	Type EventType
	Item Item
}

// Queue is a priority validation queue. Workers pop the highest
// priority item, items of equal priority run in submission order.
type Queue struct {
	validator Validator
	workers   int
	policy    retry.Policy
	bus       *event.Bus[Event]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	cond    *sync.Cond
	pending itemHeap
	items   map[uuid.UUID]*Item
	seq     uint64
	paused  bool
	stopped bool

	processing int
	submitted  uint64
	completed  uint64
	failed     uint64
	cancelled  uint64
}

// Option configures the queue.
type Option func(*Queue)

// WithWorkers sets the number of worker goroutines. Defaults to
// runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithRetryPolicy sets the retry policy for failed validations.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(q *Queue) {
		q.policy = policy
	}
}

// New creates a queue and starts its workers.
func New(validator Validator, opts ...Option) *Queue {
	q := &Queue{
		validator: validator,
		workers:   runtime.NumCPU(),
		policy:    retry.DefaultPolicy(),
		bus:       event.NewBus[Event](),
		items:     make(map[uuid.UUID]*Item),
	}
	for _, opt := range opts {
		opt(q)
	}

	q.cond = sync.NewCond(&q.mu)
	q.ctx, q.cancel = context.WithCancel(context.Background())

	q.wg.Add(q.workers)
	for i := 0; i < q.workers; i++ {
		go q.worker()
	}
	return q
}

// SubmitOption configures one submission.
type SubmitOption func(*Item)

// WithPriority sets the item's priority. Defaults to normal.
func WithPriority(p Priority) SubmitOption {
	return func(item *Item) { item.Priority = p }
}

// WithBatchID groups the item under a batch.
func WithBatchID(id string) SubmitOption {
	return func(item *Item) { item.BatchID = id }
}

// WithRequester records who submitted the item.
func WithRequester(requester string) SubmitOption {
	return func(item *Item) { item.Requester = requester }
}

// Submit enqueues a resource for validation and returns the item's id.
func (q *Queue) Submit(resource []byte, opts ...SubmitOption) (uuid.UUID, error) {
	item := &Item{
		ID:         uuid.New(),
		Resource:   resource,
		Priority:   PriorityNormal,
		State:      StateQueued,
		EnqueuedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(item)
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return uuid.Nil, ErrStopped
	}
	item.seq = q.seq
	q.seq++
	q.submitted++
	q.items[item.ID] = item
	heap.Push(&q.pending, item)
	snapshot := *item
	q.mu.Unlock()

	q.cond.Signal()
	q.bus.Publish(Event{Type: EventItemQueued, Item: snapshot})
	return item.ID, nil
}

// SubmitBatch enqueues multiple resources under one batch id. When no
// batch id is given, one is generated and shared by all items.
func (q *Queue) SubmitBatch(resources [][]byte, opts ...SubmitOption) (string, []uuid.UUID, error) {
	probe := &Item{}
	for _, opt := range opts {
		opt(probe)
	}
	batchID := probe.BatchID
	if batchID == "" {
		batchID = uuid.NewString()
	}

	ids := make([]uuid.UUID, 0, len(resources))
	for _, resource := range resources {
		id, err := q.Submit(resource, append(opts, WithBatchID(batchID))...)
		if err != nil {
			return batchID, ids, err
		}
		ids = append(ids, id)
	}
	return batchID, ids, nil
}

// Get returns a snapshot of an item.
func (q *Queue) Get(id uuid.UUID) (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok {
		return Item{}, false
	}
	return *item, true
}

// Cancel cancels a queued item. Items already processing or finished
// are not affected; it returns whether the item was cancelled.
func (q *Queue) Cancel(id uuid.UUID) bool {
	q.mu.Lock()
	item, ok := q.items[id]
	if !ok || item.State != StateQueued {
		q.mu.Unlock()
		return false
	}
	heap.Remove(&q.pending, item.index)
	item.State = StateCancelled
	item.CompletedAt = time.Now()
	q.cancelled++
	snapshot := *item
	q.mu.Unlock()

	q.bus.Publish(Event{Type: EventItemCancelled, Item: snapshot})
	return true
}

// CancelBatch cancels every queued item of a batch and returns how
// many were cancelled.
func (q *Queue) CancelBatch(batchID string) int {
	q.mu.Lock()
	var snapshots []Item
	for _, item := range q.items {
		if item.BatchID != batchID || item.State != StateQueued {
			continue
		}
		heap.Remove(&q.pending, item.index)
		item.State = StateCancelled
		item.CompletedAt = time.Now()
		q.cancelled++
		snapshots = append(snapshots, *item)
	}
	q.mu.Unlock()

	for _, snapshot := range snapshots {
		q.bus.Publish(Event{Type: EventItemCancelled, Item: snapshot})
	}
	return len(snapshots)
}

// Pause stops workers from picking up new items. In-flight items run
// to completion.
func (q *Queue) Pause() {
	q.mu.Lock()
	already := q.paused
	q.paused = true
	q.mu.Unlock()

	if !already {
		q.bus.Publish(Event{Type: EventProcessingPaused})
	}
}

// Resume lets workers pick up items again.
func (q *Queue) Resume() {
	q.mu.Lock()
	already := !q.paused
	q.paused = false
	q.mu.Unlock()

	if !already {
		q.cond.Broadcast()
		q.bus.Publish(Event{Type: EventProcessingResumed})
	}
}

// Stop shuts the queue down and waits for workers to finish their
// current items. Remaining queued items are cancelled.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true

	var snapshots []Item
	for q.pending.Len() > 0 {
		item := heap.Pop(&q.pending).(*Item)
		item.State = StateCancelled
		item.CompletedAt = time.Now()
		q.cancelled++
		snapshots = append(snapshots, *item)
	}
	q.mu.Unlock()

	q.cond.Broadcast()
	q.cancel()
	q.wg.Wait()

	for _, snapshot := range snapshots {
		q.bus.Publish(Event{Type: EventItemCancelled, Item: snapshot})
	}
	q.bus.Publish(Event{Type: EventProcessingStopped})
}

// Events returns the bus queue events are published on.
func (q *Queue) Events() *event.Bus[Event] {
	return q.bus
}

// Stats describes the queue's current state.
type Stats struct {
	Queued     int
	Processing int
	Submitted  uint64
	Completed  uint64
	Failed     uint64
	Cancelled  uint64
	Workers    int
	Paused     bool
}

// Stats returns a snapshot of the queue's counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return Stats{
		Queued:     q.pending.Len(),
		Processing: q.processing,
		Submitted:  q.submitted,
		Completed:  q.completed,
		Failed:     q.failed,
		Cancelled:  q.cancelled,
		Workers:    q.workers,
		Paused:     q.paused,
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()

	for {
		item := q.next()
		if item == nil {
			return
		}
		q.process(item)
	}
}

// next blocks until an item is available or the queue stops.
func (q *Queue) next() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.stopped {
			return nil
		}
		if !q.paused && q.pending.Len() > 0 {
			item := heap.Pop(&q.pending).(*Item)
			item.State = StateProcessing
			item.StartedAt = time.Now()
			q.processing++
			return item
		}
		q.cond.Wait()
	}
}

func (q *Queue) process(item *Item) {
	q.bus.Publish(Event{Type: EventProcessingStarted, Item: *item})

	var result *records.Result
	history, err := q.policy.Do(q.ctx, func(ctx context.Context) error {
		r, verr := q.validator(ctx, item.Resource)
		if verr != nil {
			return verr
		}
		result = r
		return nil
	})

	q.mu.Lock()
	item.Attempts = history
	item.CompletedAt = time.Now()
	q.processing--
	if err != nil {
		item.State = StateFailed
		item.Err = err
		q.failed++
	} else {
		item.State = StateCompleted
		item.Result = result
		q.completed++
	}
	snapshot := *item
	q.mu.Unlock()

	if err != nil {
		q.bus.Publish(Event{Type: EventItemFailed, Item: snapshot})
	} else {
		q.bus.Publish(Event{Type: EventItemCompleted, Item: snapshot})
	}
}

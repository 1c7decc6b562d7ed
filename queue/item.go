package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	records "github.com/medvertical/records"
	"github.com/medvertical/records/retry"
)

// Priority orders items in the queue. Higher priorities are processed
// first; items of equal priority run in submission order.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority converts a priority name to its value.
func ParsePriority(s string) (Priority, error) {
	switch s {
	case "low":
		return PriorityLow, nil
	case "normal":
		return PriorityNormal, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return PriorityNormal, fmt.Errorf("queue: unknown priority %q", s)
	}
}

// State describes where an item is in its lifecycle.
type State string

const (
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Item is one queued validation. Queued and processing items are owned
// by the queue; callers observe them through snapshots returned by Get
// and carried on events.
type Item struct {
	// ID uniquely identifies the item.
	ID uuid.UUID

	// Resource is the FHIR resource to validate.
	Resource []byte

	// Priority orders the item relative to others.
	Priority Priority

	// State is the item's lifecycle state.
	State State

	// Attempts is the history of validation attempts, in order.
	Attempts []retry.Attempt

	// BatchID groups items submitted together.
	BatchID string

	// Requester identifies who submitted the item.
	Requester string

	// Result holds the validation outcome once completed.
	Result *records.Result

	// Err holds the final error when the item failed.
	Err error

	EnqueuedAt  time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	// heap bookkeeping
	seq   uint64
	index int
}

// itemHeap orders items by priority, then submission order.
type itemHeap []*Item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x any) {
	item := x.(*Item)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

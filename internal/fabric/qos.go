package fabric

import (
	"errors"
	"fmt"
	"sync"
)

// NumPriorityClasses is the number of strict priority rings per egress port
// (spec.md §4.C).
const NumPriorityClasses = 8

// classCredits are the per-round deficit credits for classes 0-7, lowest
// class first (spec.md §4.C: "[1,2,4,8,16,32,64,128]").
var classCredits = [NumPriorityClasses]int{1, 2, 4, 8, 16, 32, 64, 128}

// ErrQueueFull is returned by Enqueue when the target class ring is at
// capacity (spec.md §4.C: "enqueue fails silently from the caller's point
// of view only in that the frame is dropped and a counter incremented" —
// the scheduler package itself still reports the condition to its caller).
var ErrQueueFull = errors.New("priority queue full")

// PriorityQueue holds one bounded ring per priority class for a single
// egress port and schedules output among them with a deficit-weighted
// round robin (spec.md §4.C).
type PriorityQueue struct {
	mu       sync.Mutex
	rings    [NumPriorityClasses][]Frame
	capacity int
	enqueued [NumPriorityClasses]uint64
	dequeued [NumPriorityClasses]uint64
	dropped  [NumPriorityClasses]uint64
}

// NewPriorityQueue creates a priority queue whose each of the 8 class
// rings holds up to capacity frames.
func NewPriorityQueue(capacity int) *PriorityQueue {
	pq := &PriorityQueue{capacity: capacity}
	for c := range pq.rings {
		pq.rings[c] = make([]Frame, 0, capacity)
	}
	return pq
}

// Enqueue adds f to the ring for priority class (0-7). Returns
// ErrQueueFull if that class's ring is already at capacity.
func (pq *PriorityQueue) Enqueue(class uint8, f Frame) error {
	if class >= NumPriorityClasses {
		return fmt.Errorf("enqueue: class %d out of range [0,%d)", class, NumPriorityClasses)
	}

	pq.mu.Lock()
	defer pq.mu.Unlock()

	if len(pq.rings[class]) >= pq.capacity {
		pq.dropped[class]++
		return fmt.Errorf("class %d: %w", class, ErrQueueFull)
	}

	pq.rings[class] = append(pq.rings[class], f)
	pq.enqueued[class]++
	return nil
}

// Dequeue runs one scheduling round of deficit-weighted round robin,
// always starting at class 7 and descending to class 0, and returns up to
// burst frames in priority order. Each class's deficit is credits fresh
// for this call only and does not persist across calls; within a class,
// that credit bounds how many frames it may contribute (spec.md §4.C).
//
// Dequeue never blocks: if every ring is empty it returns an empty slice.
func (pq *PriorityQueue) Dequeue(burst int) []Frame {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	out := make([]Frame, 0, burst)

	for i := 0; i < NumPriorityClasses && len(out) < burst; i++ {
		class := NumPriorityClasses - 1 - i
		ring := pq.rings[class]
		if len(ring) == 0 {
			continue
		}

		deficit := classCredits[class]
		for len(ring) > 0 && deficit > 0 && len(out) < burst {
			out = append(out, ring[0])
			ring = ring[1:]
			deficit--
			pq.dequeued[class]++
		}

		pq.rings[class] = ring
	}

	return out
}

// QueueStats is a snapshot of one class ring's counters, for monitoring.
type QueueStats struct {
	Class    uint8
	Depth    int
	Enqueued uint64
	Dequeued uint64
	Dropped  uint64
}

// Stats returns a snapshot of every class ring's depth and counters.
func (pq *PriorityQueue) Stats() [NumPriorityClasses]QueueStats {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	var out [NumPriorityClasses]QueueStats
	for c := range pq.rings {
		out[c] = QueueStats{
			Class:    uint8(c), //nolint:gosec // c < NumPriorityClasses
			Depth:    len(pq.rings[c]),
			Enqueued: pq.enqueued[c],
			Dequeued: pq.dequeued[c],
			Dropped:  pq.dropped[c],
		}
	}
	return out
}

// Empty reports whether every class ring is currently empty.
func (pq *PriorityQueue) Empty() bool {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	for _, ring := range pq.rings {
		if len(ring) > 0 {
			return false
		}
	}
	return true
}

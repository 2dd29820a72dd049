package ripple

import "sync"

// Source is a single Gaussian impulse injected into the field.
type Source struct {
	// U, V locate the impulse in the normalized domain [0,1]².
	U, V float64
	// Amplitude is the peak height added at the source centre.
	Amplitude float32
	// Sigma is the Gaussian spread in grid cells.
	Sigma float32
}

// NewSource returns a source with its position clamped to the domain.
func NewSource(u, v float64, amplitude, sigma float32) Source {
	return Source{U: clamp01(u), V: clamp01(v), Amplitude: amplitude, Sigma: sigma}
}

// CellSource places a source exactly on cell (x, y) of a width×height grid.
func CellSource(width, height, x, y int, amplitude, sigma float32) Source {
	var u, v float64
	if width > 1 {
		u = float64(x) / float64(width-1)
	}
	if height > 1 {
		v = float64(y) / float64(height-1)
	}
	return NewSource(u, v, amplitude, sigma)
}

// DrainPolicy decides what happens to sources left over after a drain.
type DrainPolicy int

const (
	// DropExcess discards everything beyond the per-step cap.
	DropExcess DrainPolicy = iota
	// CarryForward keeps the remainder for the next drain.
	CarryForward
)

func (p DrainPolicy) String() string {
	if p == CarryForward {
		return "carry"
	}
	return "drop"
}

// ParseDrainPolicy maps a config string to a policy; unknown values drop.
func ParseDrainPolicy(s string) DrainPolicy {
	if s == "carry" {
		return CarryForward
	}
	return DropExcess
}

// QueueStats counts queue traffic since creation.
type QueueStats struct {
	Enqueued uint64
	Rejected uint64
	Drained  uint64
	Dropped  uint64
}

// SourceQueue is a bounded FIFO of pending impulses. It has a single producer
// (the pointer mapper) and a single consumer (the frame drain) which may run on
// different goroutines.
type SourceQueue struct {
	mu       sync.Mutex
	pending  []Source
	capacity int
	perDrain int
	policy   DrainPolicy
	stats    QueueStats
}

// NewSourceQueue builds a queue that hands out at most perDrain sources per
// drain and holds at most max(perDrain, backlog) between drains.
func NewSourceQueue(perDrain int, policy DrainPolicy, backlog int) *SourceQueue {
	if perDrain < 1 {
		perDrain = 1
	}
	capacity := perDrain
	if backlog > perDrain {
		capacity = backlog
	}
	return &SourceQueue{
		pending:  make([]Source, 0, capacity),
		capacity: capacity,
		perDrain: perDrain,
		policy:   policy,
	}
}

// Enqueue appends s unless the backlog is full, in which case the newest
// source is rejected and the oldest ones are preserved.
func (q *SourceQueue) Enqueue(s Source) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) >= q.capacity {
		q.stats.Rejected++
		return false
	}
	q.pending = append(q.pending, s)
	q.stats.Enqueued++
	return true
}

// Drain appends up to perDrain sources, oldest first, to dst[:0] and applies
// the drain policy to whatever remains.
func (q *SourceQueue) Drain(dst []Source) []Source {
	dst = dst[:0]
	q.mu.Lock()
	defer q.mu.Unlock()
	n := minInt(len(q.pending), q.perDrain)
	dst = append(dst, q.pending[:n]...)
	q.stats.Drained += uint64(n)
	rest := len(q.pending) - n
	switch {
	case rest == 0:
		q.pending = q.pending[:0]
	case q.policy == CarryForward:
		copy(q.pending, q.pending[n:])
		q.pending = q.pending[:rest]
	default:
		q.stats.Dropped += uint64(rest)
		q.pending = q.pending[:0]
	}
	return dst
}

// Len reports the number of pending sources.
func (q *SourceQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Clear discards all pending sources.
func (q *SourceQueue) Clear() {
	q.mu.Lock()
	q.pending = q.pending[:0]
	q.mu.Unlock()
}

// Stats returns a snapshot of the traffic counters.
func (q *SourceQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// Policy reports the drain policy.
func (q *SourceQueue) Policy() DrainPolicy { return q.policy }

package query

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/xtxerr/pidx/internal/spiral"
)

// Record summarizes one execution. It is kept in the engine history and
// handed to the Recorder.
type Record struct {
	QueryID       string
	Curve         spiral.Curve
	MaxDepth      int
	MaxResults    int
	Matched       int
	Steps         int
	StartNodes    int
	Truncated     bool
	StopReason    string
	CacheHit      bool
	ExecutionTime time.Duration
	ExecutedAt    time.Time
}

// history is a bounded ring of recent executions. The oldest record is
// overwritten once the ring is full.
type history struct {
	mu       sync.RWMutex
	data     []Record
	head     int
	count    int
	capacity int

	dropped atomic.Int64
}

func newHistory(capacity int) *history {
	if capacity <= 0 {
		capacity = 1000
	}
	return &history{
		data:     make([]Record, capacity),
		capacity: capacity,
	}
}

func (h *history) push(r Record) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == h.capacity {
		h.dropped.Add(1)
	} else {
		h.count++
	}
	h.data[h.head] = r
	h.head = (h.head + 1) % h.capacity
}

// snapshot returns the records oldest first.
func (h *history) snapshot() []Record {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Record, h.count)
	start := (h.head - h.count + h.capacity) % h.capacity
	for i := 0; i < h.count; i++ {
		out[i] = h.data[(start+i)%h.capacity]
	}
	return out
}

// last returns up to n of the newest records, newest first.
func (h *history) last(n int) []Record {
	all := h.snapshot()
	if n <= 0 || n > len(all) {
		n = len(all)
	}
	out := make([]Record, n)
	for i := 0; i < n; i++ {
		out[i] = all[len(all)-1-i]
	}
	return out
}

func (h *history) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

func (h *history) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.head, h.count = 0, 0
	clear(h.data)
}

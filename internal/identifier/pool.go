package identifier

import (
	"context"
	"sync"

	pidxerrors "github.com/xtxerr/pidx/internal/errors"
)

// preparedPool holds pre-generated identifiers without a time component.
// Entries are popped exactly once.
type preparedPool struct {
	mu       sync.Mutex
	entries  []Identifier
	capacity int
	lowWater int
}

func newPreparedPool(capacity int, lowWaterFraction float64) *preparedPool {
	low := int(float64(capacity) * lowWaterFraction)
	return &preparedPool{
		entries:  make([]Identifier, 0, capacity),
		capacity: capacity,
		lowWater: low,
	}
}

// pop removes one entry. It returns ErrPoolExhausted when empty.
func (p *preparedPool) pop() (Identifier, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.entries)
	if n == 0 {
		return Identifier{}, pidxerrors.ErrPoolExhausted
	}
	id := p.entries[n-1]
	p.entries = p.entries[:n-1]
	return id, nil
}

// popN removes up to n entries.
func (p *preparedPool) popN(n int) []Identifier {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n > len(p.entries) {
		n = len(p.entries)
	}
	cut := len(p.entries) - n
	out := make([]Identifier, n)
	copy(out, p.entries[cut:])
	p.entries = p.entries[:cut]
	return out
}

// push adds an entry unless the pool is full.
func (p *preparedPool) push(id Identifier) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.entries) >= p.capacity {
		return false
	}
	id.FromPool = true
	p.entries = append(p.entries, id)
	return true
}

func (p *preparedPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

func (p *preparedPool) free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity - len(p.entries)
}

func (p *preparedPool) belowLowWater() bool {
	return p.size() < p.lowWater
}

func (p *preparedPool) drain() {
	p.mu.Lock()
	p.entries = p.entries[:0]
	p.mu.Unlock()
}

// =============================================================================
// Generator pool management
// =============================================================================

// Prefill generates entries for the pooled shape until the pool is full.
// It returns the number of entries added.
func (g *Generator) Prefill(ctx context.Context) (int, error) {
	if g.cfg.PoolSize == 0 {
		return 0, nil
	}
	if err := g.Warm(ctx); err != nil {
		return 0, err
	}

	added := 0
	for n := g.prepared.free(); n > 0; n-- {
		if err := ctx.Err(); err != nil {
			return added, err
		}
		id, err := g.build(ctx, g.cfg.Length, true, false)
		if err != nil {
			return added, err
		}
		if !g.prepared.push(id) {
			break
		}
		added++
	}

	log.Debug("identifier pool filled", "added", added, "size", g.prepared.size())
	return added, nil
}

// afterPoolDraw starts a single background refill once the pool falls below
// its low-water mark.
func (g *Generator) afterPoolDraw() {
	if !g.prepared.belowLowWater() {
		return
	}
	if !g.stats.refilling.CompareAndSwap(false, true) {
		return
	}

	g.bgMu.Lock()
	defer g.bgMu.Unlock()
	if g.closed {
		g.stats.refilling.Store(false)
		return
	}

	g.bg.Add(1)
	go func() {
		defer g.bg.Done()
		defer g.stats.refilling.Store(false)

		g.stats.refills.Add(1)
		if _, err := g.Prefill(g.ctx); err != nil && g.ctx.Err() == nil {
			log.Warn("identifier pool refill failed", "error", err)
		}
	}()
}

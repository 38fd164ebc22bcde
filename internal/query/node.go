package query

import (
	"math"
	"sync/atomic"
	"time"
)

// Position is a point in the query plane.
type Position struct {
	X, Y float64
}

// Distance returns the Euclidean distance to o.
func (p Position) Distance(o Position) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// Node is a positioned record. The caller owns it; the engine reads its
// position and payload and updates only the access statistics.
type Node struct {
	ID       string
	Payload  map[string]any
	Position Position
	Metadata map[string]any

	lastAccessed atomic.Int64 // unix nanoseconds
	accessCount  atomic.Int64
}

// NewNode creates a node at (x, y).
func NewNode(id string, x, y float64, payload map[string]any) *Node {
	return &Node{
		ID:       id,
		Payload:  payload,
		Position: Position{X: x, Y: y},
		Metadata: map[string]any{},
	}
}

// Touch records one access at t. Safe under concurrent queries.
func (n *Node) Touch(t time.Time) {
	n.accessCount.Add(1)
	n.lastAccessed.Store(t.UnixNano())
}

// AccessCount returns how many times the node was matched.
func (n *Node) AccessCount() int64 {
	return n.accessCount.Load()
}

// LastAccessed returns the time of the last match, or the zero time.
func (n *Node) LastAccessed() time.Time {
	ns := n.lastAccessed.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

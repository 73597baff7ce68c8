package testutil

import (
	"fmt"
	"sync"
)

// SequentialUIDs mints "<prefix>-1", "<prefix>-2", ... and never runs out.
//
// The same scenario with a fresh SequentialUIDs produces byte-identical
// ledgers, which golden comparisons rely on.
//
// Thread-safety: SequentialUIDs is safe for concurrent use via internal mutex.
type SequentialUIDs struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialUIDs creates a generator. An empty prefix means "uid".
func NewSequentialUIDs(prefix string) *SequentialUIDs {
	if prefix == "" {
		prefix = "uid"
	}
	return &SequentialUIDs{prefix: prefix}
}

// Generate returns the next UID.
func (g *SequentialUIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

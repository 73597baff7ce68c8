package store

import (
	"sync"

	"github.com/google/uuid"
)

// UIDSuffix is appended to every minted UID so it can be used verbatim as an
// iCalendar UID.
const UIDSuffix = "@outagecal"

// UIDGenerator mints durable event UIDs.
type UIDGenerator interface {
	Generate() string
}

// UUIDv7Generator mints time-sortable UIDs of the form "<uuidv7>@outagecal".
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String() + UIDSuffix
}

// FixedGenerator returns predetermined UIDs for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu   sync.Mutex
	uids []string
	idx  int
}

// NewFixedGenerator creates a generator that returns uids in order.
//
//	gen := NewFixedGenerator("uid-1", "uid-2")
//	gen.Generate() // "uid-1"
//	gen.Generate() // "uid-2"
//	gen.Generate() // panic: all uids exhausted
func NewFixedGenerator(uids ...string) *FixedGenerator {
	return &FixedGenerator{uids: uids}
}

// Generate returns the next predetermined UID.
// Panics if all UIDs have been consumed.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.uids) {
		panic("FixedGenerator: all uids exhausted")
	}
	uid := g.uids[g.idx]
	g.idx++
	return uid
}

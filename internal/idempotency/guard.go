package idempotency

import (
	"context"
	"sync"
	"time"
)

// Receipt is the response recorded for an accepted dispatch request;
// replays with the same key get the identical receipt back without
// re-dispatching.
type Receipt struct {
	CorrelationID string `json:"correlationId"`
	Count         int    `json:"count"`
}

// Guard deduplicates dispatch requests sharing a client-supplied key.
// Lookup and commit are separate operations; two concurrent requests with
// the same key may both pass the lookup, the first Commit wins.
type Guard interface {
	// ReserveOrGet returns the receipt recorded for key, if any.
	ReserveOrGet(ctx context.Context, key string) (*Receipt, bool, error)
	// Commit records the receipt for key with set-if-absent semantics.
	Commit(ctx context.Context, key string, receipt Receipt) error
}

// MemoryGuard is a process-local guard for tests and broker-less dev runs.
// Entries expire lazily on lookup.
type MemoryGuard struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	receipt   Receipt
	expiresAt time.Time
}

func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	return &MemoryGuard{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (g *MemoryGuard) ReserveOrGet(_ context.Context, key string) (*Receipt, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.entries[key]
	if !ok {
		return nil, false, nil
	}
	if g.ttl > 0 && g.now().After(entry.expiresAt) {
		delete(g.entries, key)
		return nil, false, nil
	}

	receipt := entry.receipt
	return &receipt, true, nil
}

func (g *MemoryGuard) Commit(_ context.Context, key string, receipt Receipt) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if entry, ok := g.entries[key]; ok {
		if g.ttl <= 0 || g.now().Before(entry.expiresAt) {
			return nil
		}
	}

	g.entries[key] = memoryEntry{
		receipt:   receipt,
		expiresAt: g.now().Add(g.ttl),
	}
	return nil
}

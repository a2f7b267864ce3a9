package memory

import (
	"context"
	"sync"
)

// Dedupe remembers webhook event IDs for the lifetime of the process.
type Dedupe struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewDedupe() *Dedupe {
	return &Dedupe{seen: make(map[string]struct{})}
}

func (d *Dedupe) FirstSeen(ctx context.Context, eventID string) (bool, error) {
	_ = ctx

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[eventID]; ok {
		return false, nil
	}
	d.seen[eventID] = struct{}{}
	return true, nil
}

package auditlog

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryLedger is an in-memory, thread-safe Ledger. It backs tests and
// single-process deployments that do not need durability across restarts.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries []*Entry
}

// New creates a MemoryLedger initialised with the canonical genesis entry
// at index 0.
func New() *MemoryLedger {
	l := &MemoryLedger{}
	genesis := &Entry{
		Index:     0,
		Timestamp: time.Now().UTC(),
		Action:    ActionGenesis,
		Actor:     SystemActor,
		DataHash:  GenesisHash,
		PrevHash:  GenesisHash,
		Hash:      GenesisHash, // genesis hash is the well-known constant, not computed
	}
	l.entries = append(l.entries, genesis)
	return l
}

// Append implements Ledger.
func (l *MemoryLedger) Append(_ context.Context, subject, action, actor string, payload []byte) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	dataHash, err := payloadHash(payload)
	if err != nil {
		return nil, fmt.Errorf("hash payload: %w", err)
	}
	prev := l.entries[len(l.entries)-1]

	entry := &Entry{
		Index:     len(l.entries),
		Timestamp: time.Now().UTC(),
		Subject:   subject,
		Action:    action,
		Actor:     actor,
		DataHash:  dataHash,
		PrevHash:  prev.Hash,
	}
	entry.Hash, err = hashEntry(entry)
	if err != nil {
		return nil, fmt.Errorf("hash entry: %w", err)
	}
	l.entries = append(l.entries, entry)
	return entry, nil
}

// Get implements Ledger.
func (l *MemoryLedger) Get(_ context.Context, index int) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.entries) {
		return nil, fmt.Errorf("index %d out of range", index)
	}
	return l.entries[index], nil
}

// Len implements Ledger.
func (l *MemoryLedger) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries), nil
}

// Verify implements Ledger. The genesis entry (index 0) is validated
// against GenesisHash; every later entry against its recomputed hash and
// its predecessor's.
func (l *MemoryLedger) Verify(_ context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i, curr := range l.entries {
		if i == 0 {
			if curr.Hash != GenesisHash {
				return fmt.Errorf("genesis entry has wrong hash: got %q", curr.Hash)
			}
			continue
		}

		prev := l.entries[i-1]
		if curr.PrevHash != prev.Hash {
			return fmt.Errorf("hash chain broken at index %d", curr.Index)
		}
		want, err := hashEntry(curr)
		if err != nil {
			return err
		}
		if curr.Hash != want {
			return fmt.Errorf("entry %d has invalid hash", curr.Index)
		}
	}
	return nil
}

// Root implements Ledger.
func (l *MemoryLedger) Root(_ context.Context) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[len(l.entries)-1].Hash, nil
}

package integrity

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned when no artifact is registered for a kind + key.
var ErrNotFound = errors.New("integrity: artifact not found")

// Store persists registered artifacts. Put replaces any existing record
// for the same kind and key.
type Store interface {
	Put(ctx context.Context, a *Artifact) error
	Get(ctx context.Context, kind Kind, key string) (*Artifact, error)
	ListByKind(ctx context.Context, kind Kind) ([]*Artifact, error)
}

// MemoryStore is an in-memory, thread-safe Store.
type MemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]*Artifact // kind + "\x00" + key
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{artifacts: make(map[string]*Artifact)}
}

func storeKey(kind Kind, key string) string {
	return string(kind) + "\x00" + key
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, a *Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.artifacts[storeKey(a.Kind, a.Key)] = &cp
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, kind Kind, key string) (*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[storeKey(kind, key)]
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", ErrNotFound, kind, key)
	}
	cp := *a
	return &cp, nil
}

// ListByKind implements Store.
func (s *MemoryStore) ListByKind(_ context.Context, kind Kind) ([]*Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Artifact
	for _, a := range s.artifacts {
		if a.Kind == kind {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

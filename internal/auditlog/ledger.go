// Package auditlog maintains the append-only, hash-chained record of
// integrity operations. The excluded state store owns artifact persistence;
// this log owns the tamper-evident history of what was computed and
// verified, and when.
package auditlog

import "context"

// Ledger is the interface for the append-only audit chain. Both
// MemoryLedger and PostgresLedger implement it.
type Ledger interface {
	// Append adds a new entry chained to the previous one. payload is
	// hashed with the primary algorithm and stored as DataHash.
	Append(ctx context.Context, subject, action, actor string, payload []byte) (*Entry, error)

	// Get returns the entry at the given zero-based index.
	Get(ctx context.Context, index int) (*Entry, error)

	// Len returns the total number of entries, genesis included.
	Len(ctx context.Context) (int, error)

	// Verify walks the entire chain and checks hash consistency.
	Verify(ctx context.Context) error

	// Root returns the hash of the most recent entry, the chain tip.
	Root(ctx context.Context) (string, error)
}

package integrity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blackroad/shainfinity/internal/digest"
)

// PostgresStore persists artifacts to the artifacts table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Put implements Store. Registering an existing kind + key replaces the
// stored record.
func (s *PostgresStore) Put(ctx context.Context, a *Artifact) error {
	chainFinal := ""
	if !a.ChainFinal.IsZero() {
		chainFinal = a.ChainFinal.String()
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO artifacts (id, kind, key, hash, chain_final, size, registered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (kind, key) DO UPDATE
		 SET id = EXCLUDED.id, hash = EXCLUDED.hash, chain_final = EXCLUDED.chain_final,
		     size = EXCLUDED.size, registered_at = EXCLUDED.registered_at`,
		a.ID, a.Kind, a.Key, a.Hash.String(), chainFinal, a.Size, a.RegisteredAt,
	); err != nil {
		return fmt.Errorf("put artifact %s %q: %w", a.Kind, a.Key, err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, kind Kind, key string) (*Artifact, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, kind, key, hash, chain_final, size, registered_at
		 FROM artifacts WHERE kind = $1 AND key = $2`, kind, key,
	)
	a, err := scanArtifact(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s %q", ErrNotFound, kind, key)
		}
		return nil, fmt.Errorf("get artifact %s %q: %w", kind, key, err)
	}
	return a, nil
}

// ListByKind implements Store.
func (s *PostgresStore) ListByKind(ctx context.Context, kind Kind) ([]*Artifact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, key, hash, chain_final, size, registered_at
		 FROM artifacts WHERE kind = $1 ORDER BY key`, kind,
	)
	if err != nil {
		return nil, fmt.Errorf("list artifacts %s: %w", kind, err)
	}
	defer rows.Close()

	var out []*Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row rowScanner) (*Artifact, error) {
	a := &Artifact{}
	var hashStr, chainStr string
	if err := row.Scan(&a.ID, &a.Kind, &a.Key, &hashStr, &chainStr, &a.Size, &a.RegisteredAt); err != nil {
		return nil, err
	}

	var err error
	a.Hash, err = digest.Parse(hashStr)
	if err != nil {
		return nil, fmt.Errorf("stored hash: %w", err)
	}
	if chainStr != "" {
		a.ChainFinal, err = digest.Parse(chainStr)
		if err != nil {
			return nil, fmt.Errorf("stored chain final: %w", err)
		}
	}
	return a, nil
}

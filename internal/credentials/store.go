package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Credential is the process-wide CRM bearer token and its issuance time.
type Credential struct {
	Token    string
	IssuedAt time.Time
}

// Store persists the credential across process restarts.
type Store interface {
	// Load returns the stored credential, or nil when none was ever issued.
	Load(ctx context.Context) (*Credential, error)
	// Save replaces the stored credential.
	Save(ctx context.Context, cred Credential) error
}

// PGStore keeps the credential in a single-row integration-owned table.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres-backed credential store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Load implements Store.
func (s *PGStore) Load(ctx context.Context) (*Credential, error) {
	var cred Credential
	err := s.pool.QueryRow(ctx,
		`SELECT token, issued_at FROM remonline_credentials WHERE id = 1`,
	).Scan(&cred.Token, &cred.IssuedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	return &cred, nil
}

// Save implements Store.
func (s *PGStore) Save(ctx context.Context, cred Credential) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO remonline_credentials (id, token, issued_at)
		 VALUES (1, $1, $2)
		 ON CONFLICT (id) DO UPDATE SET token = EXCLUDED.token, issued_at = EXCLUDED.issued_at`,
		cred.Token, cred.IssuedAt,
	)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

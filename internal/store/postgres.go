package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"boardbank/internal/ledger"
)

const currentDocument = "current"

// Querier is the slice of pgxpool.Pool the Postgres store uses.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps the live document and every archive as jsonb rows of
// boardbank.documents.
type PostgresStore struct {
	db Querier
}

var _ ledger.Store = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, db Querier) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS boardbank`); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS boardbank.documents (
			name       text PRIMARY KEY,
			document   jsonb NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) (*ledger.Session, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, `
		SELECT document
		FROM boardbank.documents
		WHERE name = $1
	`, currentDocument).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.NewSession(), nil
		}
		return nil, fmt.Errorf("select session: %w", err)
	}
	return decode(raw)
}

func (s *PostgresStore) Save(ctx context.Context, session *ledger.Session) error {
	data, err := encode(session)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, `
		INSERT INTO boardbank.documents (name, document, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (name) DO UPDATE
		SET document = EXCLUDED.document, updated_at = now()
	`, currentDocument, string(data)); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Archive(ctx context.Context, session *ledger.Session, at time.Time) (string, error) {
	data, err := encode(session)
	if err != nil {
		return "", err
	}
	name := archiveName(at)
	cmd, err := s.db.Exec(ctx, `
		INSERT INTO boardbank.documents (name, document, updated_at)
		VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (name) DO NOTHING
	`, name, string(data), at)
	if err != nil {
		return "", fmt.Errorf("insert archive: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return "", fmt.Errorf("archive %s already exists", name)
	}
	return name, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"agri-pipeline/internal/common/database"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS generation_results (
	id           UUID PRIMARY KEY,
	user_id      TEXT NOT NULL,
	kind         TEXT NOT NULL,
	payload      JSONB NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_generation_results_user_kind
	ON generation_results (user_id, kind, generated_at DESC);`

const insertSQL = `INSERT INTO generation_results (id, user_id, kind, payload, generated_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING`

type PostgresStore struct {
	client *database.PostgresClient
}

func NewPostgresStore(client *database.PostgresClient) *PostgresStore {
	return &PostgresStore{client: client}
}

func (s *PostgresStore) Backend() string { return "postgres" }

// EnsureSchema creates the results table when it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.client.DB.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create generation_results: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, rec *Record) (err error) {
	defer func() { observe(s.Backend(), err) }()

	if err := rec.validate(); err != nil {
		return err
	}
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, insertSQL,
			rec.ID, rec.UserID, string(rec.Kind), []byte(rec.Payload), rec.GeneratedAt, rec.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert result %s: %w", rec.ID, err)
		}
		return nil
	})
}

package blobstore

import (
	"context"
	"fmt"

	"github.com/medeasy/medeasy/internal/platform/db"
)

// PostgresStore keeps blobs in the document_content bytea table of the
// documents schema. It joins the transaction found in ctx.
type PostgresStore struct {
	pool db.Querier
}

func NewPostgresStore(pool db.Querier) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Put(ctx context.Context, key string, content []byte, contentType string) error {
	if len(content) > MaxFileSize {
		return ErrFileTooLarge
	}
	_, err := db.Conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO document_content (key, content, content_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET content = EXCLUDED.content, content_type = EXCLUDED.content_type`,
		key, content, contentType)
	if err != nil {
		return fmt.Errorf("store blob %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var content []byte
	err := db.Conn(ctx, s.pool).QueryRow(ctx, `SELECT content FROM document_content WHERE key = $1`, key).Scan(&content)
	if db.IsNoRows(err) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", key, err)
	}
	return content, nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	tag, err := db.Conn(ctx, s.pool).Exec(ctx, `DELETE FROM document_content WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBlobNotFound
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// runMigrations creates the document schema in a single transaction.
func (d *SQLiteDB) runMigrations(ctx context.Context) (err error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = createDocumentsTable(ctx, tx); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	if err = createSeededCollectionsTable(ctx, tx); err != nil {
		return fmt.Errorf("failed to create seeded_collections table: %w", err)
	}
	if err = createIndexes(ctx, tx); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration transaction: %w", err)
	}
	return nil
}

// createDocumentsTable stores every collection as JSON documents; seq keeps insertion order.
func createDocumentsTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			data TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (collection, id)
		)
	`)
	return err
}

// createSeededCollectionsTable records which collections already received their seed rows.
func createSeededCollectionsTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS seeded_collections (
			name TEXT PRIMARY KEY,
			seeded_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func createIndexes(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_documents_collection_seq ON documents(collection, seq)`)
	return err
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteDB is an embedded database holding collections as JSON documents.
// SQLite allows one writer at a time, so every write transaction of every
// collection goes through writeMu.
type SQLiteDB struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// OpenSQLite opens (creating if needed) the database at path and migrates it.
func OpenSQLite(ctx context.Context, path string) (*SQLiteDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL for concurrent readers; write transactions take the lock up front
	// so busy_timeout covers writers in other processes too
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := &SQLiteDB{db: db}
	if err := d.runMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return d, nil
}

// Close closes the database connection
func (d *SQLiteDB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func (d *SQLiteDB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// SQLiteCollection is a Collection stored in the documents table. Writers are
// serialized in-process and each operation runs in its own transaction.
type SQLiteCollection[T Record] struct {
	d    *SQLiteDB
	name string
	seed func() []T

	mu     sync.Mutex
	seeded bool
}

// NewSQLiteCollection binds a collection name to the database.
func NewSQLiteCollection[T Record](d *SQLiteDB, name string, seed func() []T) *SQLiteCollection[T] {
	return &SQLiteCollection[T]{d: d, name: name, seed: seed}
}

// ensureSeededLocked writes the seed the first time a collection is used.
func (c *SQLiteCollection[T]) ensureSeededLocked(ctx context.Context) error {
	if c.seeded {
		return nil
	}
	err := c.d.withTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM seeded_collections WHERE name = ?`, c.name).Scan(&one)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check seed marker: %w", err)
		}
		if c.seed != nil {
			for _, rec := range c.seed() {
				if err := c.insert(ctx, tx, rec); err != nil {
					return err
				}
			}
		}
		return c.markSeeded(ctx, tx)
	})
	if err != nil {
		return fmt.Errorf("seed %s: %w", c.name, err)
	}
	c.seeded = true
	return nil
}

func (c *SQLiteCollection[T]) markSeeded(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO seeded_collections (name) VALUES (?)`, c.name)
	return err
}

func (c *SQLiteCollection[T]) List(ctx context.Context) ([]T, error) {
	c.mu.Lock()
	err := c.ensureSeededLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	rows, err := c.d.db.QueryContext(ctx, `SELECT data FROM documents WHERE collection = ? ORDER BY seq`, c.name)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.name, err)
	}
	return c.scanAll(rows)
}

func (c *SQLiteCollection[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	c.mu.Lock()
	err := c.ensureSeededLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return zero, err
	}
	return c.get(c.d.db.QueryRowContext(ctx, `SELECT data FROM documents WHERE collection = ? AND id = ?`, c.name, id))
}

func (c *SQLiteCollection[T]) Create(ctx context.Context, build func([]T) (T, error)) (T, error) {
	var rec T
	err := c.write(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT data FROM documents WHERE collection = ? ORDER BY seq`, c.name)
		if err != nil {
			return err
		}
		existing, err := c.scanAll(rows)
		if err != nil {
			return err
		}
		rec, err = build(existing)
		if err != nil {
			return err
		}
		if rec.GetID() == "" {
			return fmt.Errorf("create: record has no id")
		}
		return c.insert(ctx, tx, rec)
	})
	return rec, err
}

func (c *SQLiteCollection[T]) Update(ctx context.Context, id string, mutate func(*T) error) (T, error) {
	return c.UpdateChecked(ctx, id, ignoreSnapshot(mutate))
}

func (c *SQLiteCollection[T]) UpdateChecked(ctx context.Context, id string, mutate func([]T, *T) error) (T, error) {
	var rec T
	err := c.write(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT data FROM documents WHERE collection = ? ORDER BY seq`, c.name)
		if err != nil {
			return err
		}
		existing, err := c.scanAll(rows)
		if err != nil {
			return err
		}
		i := indexOf(existing, id)
		if i < 0 {
			return ErrNotFound
		}
		current := existing[i]
		if err := mutate(existing, &current); err != nil {
			return err
		}
		if current.GetID() != id {
			return fmt.Errorf("update: id of %q may not change", id)
		}
		data, err := json.Marshal(current)
		if err != nil {
			return fmt.Errorf("encode %s record: %w", c.name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE documents SET data = ?, updated_at = CURRENT_TIMESTAMP WHERE collection = ? AND id = ?`,
			string(data), c.name, id); err != nil {
			return fmt.Errorf("update %s: %w", c.name, err)
		}
		rec = current
		return nil
	})
	return rec, err
}

func (c *SQLiteCollection[T]) Delete(ctx context.Context, id string) (T, error) {
	var rec T
	err := c.write(ctx, func(tx *sql.Tx) error {
		current, err := c.get(tx.QueryRowContext(ctx, `SELECT data FROM documents WHERE collection = ? AND id = ?`, c.name, id))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, c.name, id); err != nil {
			return fmt.Errorf("delete from %s: %w", c.name, err)
		}
		rec = current
		return nil
	})
	return rec, err
}

func (c *SQLiteCollection[T]) DeleteWhere(ctx context.Context, match func(T) bool) (int, error) {
	var n int
	err := c.write(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT data FROM documents WHERE collection = ? ORDER BY seq`, c.name)
		if err != nil {
			return err
		}
		items, err := c.scanAll(rows)
		if err != nil {
			return err
		}
		for _, item := range items {
			if !match(item) {
				continue
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, c.name, item.GetID()); err != nil {
				return fmt.Errorf("delete from %s: %w", c.name, err)
			}
			n++
		}
		return nil
	})
	return n, err
}

func (c *SQLiteCollection[T]) ReplaceAll(ctx context.Context, items []T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = ?`, c.name); err != nil {
			return fmt.Errorf("clear %s: %w", c.name, err)
		}
		for _, item := range items {
			if err := c.insert(ctx, tx, item); err != nil {
				return err
			}
		}
		return c.markSeeded(ctx, tx)
	})
	if err == nil {
		c.seeded = true
	}
	return err
}

func (c *SQLiteCollection[T]) write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureSeededLocked(ctx); err != nil {
		return err
	}
	return c.d.withTx(ctx, fn)
}

func (c *SQLiteCollection[T]) insert(ctx context.Context, tx *sql.Tx, rec T) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", c.name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)`,
		c.name, rec.GetID(), string(data)); err != nil {
		return fmt.Errorf("insert into %s: %w", c.name, err)
	}
	return nil
}

func (c *SQLiteCollection[T]) get(row *sql.Row) (T, error) {
	var zero T
	var data string
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, ErrNotFound
		}
		return zero, fmt.Errorf("get from %s: %w", c.name, err)
	}
	var rec T
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return zero, fmt.Errorf("decode %s record: %w", c.name, err)
	}
	return rec, nil
}

func (c *SQLiteCollection[T]) scanAll(rows *sql.Rows) ([]T, error) {
	defer rows.Close()
	var items []T
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", c.name, err)
		}
		var rec T
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("decode %s record: %w", c.name, err)
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

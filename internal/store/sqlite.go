package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Reasonable pooling for SQLite; it's a single-writer engine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// Get returns the entry stored under key.
func (r *SQLiteRepo) Get(ctx context.Context, key string) (Entry, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT value, version, updated_at
		FROM kv
		WHERE key = ?`,
		key,
	)
	e := Entry{Key: key}
	var updated int64
	if err := row.Scan(&e.Value, &e.Version, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	e.UpdatedAt = fromUnix(updated)
	return e, true, nil
}

// Set stores value under key, bumping its version.
func (r *SQLiteRepo) Set(ctx context.Context, key string, value []byte) error {
	return r.Update(ctx, key, func([]byte, bool) ([]byte, error) { return value, nil })
}

// Delete removes key. Deleting a missing key is not an error.
func (r *SQLiteRepo) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

// Update reads key, applies fn and writes the result in a single transaction.
// The write only succeeds if the version read is still current.
func (r *SQLiteRepo) Update(ctx context.Context, key string, fn UpdateFunc) error {
	return r.UpdateMany(ctx, []string{key}, func(cur map[string][]byte) (map[string][]byte, error) {
		v, found := cur[key]
		next, err := fn(v, found)
		if err != nil {
			return nil, err
		}
		return map[string][]byte{key: next}, nil
	})
}

// UpdateMany reads keys, applies fn and writes every returned value in one
// transaction, each guarded by the version it was read at.
func (r *SQLiteRepo) UpdateMany(ctx context.Context, keys []string, fn UpdateManyFunc) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	cur := make(map[string][]byte, len(keys))
	versions := make(map[string]int64, len(keys))
	for _, key := range keys {
		var (
			v       []byte
			version int64
		)
		err := tx.QueryRowContext(ctx, `SELECT value, version FROM kv WHERE key = ?`, key).Scan(&v, &version)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return err
		}
		cur[key], versions[key] = v, version
	}

	next, err := fn(cur)
	if errors.Is(err, ErrNoChange) {
		return nil
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC().Unix()
	for key, value := range next {
		if value == nil {
			value = []byte{}
		}
		var res sql.Result
		if version, found := versions[key]; found {
			res, err = tx.ExecContext(ctx, `
				UPDATE kv
				SET value = ?, version = version + 1, updated_at = ?
				WHERE key = ? AND version = ?`,
				value, now, key, version,
			)
		} else {
			res, err = tx.ExecContext(ctx, `
				INSERT INTO kv (key, value, version, updated_at)
				VALUES (?, ?, 1, ?)`,
				key, value, now,
			)
		}
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n != 1 {
			return fmt.Errorf("kv %q: concurrent update", key)
		}
	}
	return tx.Commit()
}

// LogDelivery appends a delivery outcome.
func (r *SQLiteRepo) LogDelivery(ctx context.Context, d Delivery) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO delivery_log (category, template_id, outcome, detail, at)
		VALUES (?, ?, ?, ?, ?)`,
		d.Category, d.TemplateID, d.Outcome, d.Detail, toUnix(d.At),
	)
	return err
}

// RecentDeliveries returns up to limit rows, newest first.
func (r *SQLiteRepo) RecentDeliveries(ctx context.Context, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, category, template_id, outcome, detail, at
		FROM delivery_log
		ORDER BY at DESC, id DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Delivery
	for rows.Next() {
		var (
			d  Delivery
			at int64
		)
		if err := rows.Scan(&d.ID, &d.Category, &d.TemplateID, &d.Outcome, &d.Detail, &at); err != nil {
			return nil, err
		}
		d.At = fromUnix(at)
		res = append(res, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
)

// KV is the path-addressed value store used for profiles, chat logs and digests.
type KV interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
	Set(ctx context.Context, path string, value any) error
	List(ctx context.Context, prefix string) ([]Entry, error)
	Delete(ctx context.Context, path string) error
	Create(ctx context.Context, claim Write, rest ...Write) error
}

// Write is one value to store at Path.
type Write struct {
	Path  string
	Value any
}

type kvRow struct {
	Path      string     `db:"path"`
	ValueJSON string     `db:"value_json"`
	ExpiresAt *time.Time `db:"expires_at"`
	UpdatedAt time.Time  `db:"updated_at"`
}

func (r kvRow) entry() Entry {
	return Entry{
		Path:      r.Path,
		Value:     json.RawMessage(r.ValueJSON),
		ExpiresAt: r.ExpiresAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// Get returns the JSON value stored at path, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	var row kvRow
	err := sqlscan.Get(ctx, s.db, &row,
		`SELECT path, value_json, expires_at, updated_at
		 FROM kv
		 WHERE path = ? AND (expires_at IS NULL OR expires_at > ?)`,
		path, time.Now().UTC(),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return json.RawMessage(row.ValueJSON), nil
}

// GetInto decodes the value at path into v.
func (s *SQLiteStore) GetInto(ctx context.Context, path string, v any) error {
	raw, err := s.Get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Set stores value as JSON at path, replacing any previous value.
func (s *SQLiteStore) Set(ctx context.Context, path string, value any) error {
	return s.set(ctx, path, value, nil)
}

// SetWithTTL stores value at path until ttl elapses.
func (s *SQLiteStore) SetWithTTL(ctx context.Context, path string, value any, ttl time.Duration) error {
	expiresAt := time.Now().UTC().Add(ttl)
	return s.set(ctx, path, value, &expiresAt)
}

func (s *SQLiteStore) set(ctx context.Context, path string, value any, expiresAt *time.Time) error {
	payload, err := encode(Write{Path: path, Value: value})
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, upsertKV, path, payload, expiresAt, time.Now().UTC())
	return err
}

const upsertKV = `INSERT INTO kv (path, value_json, expires_at, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET
		value_json=excluded.value_json,
		expires_at=excluded.expires_at,
		updated_at=excluded.updated_at`

// Create stores claim only when its path holds no live value, together with
// rest in the same transaction. It returns ErrExists when the path is taken.
func (s *SQLiteStore) Create(ctx context.Context, claim Write, rest ...Write) error {
	payload, err := encode(claim)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO kv (path, value_json, expires_at, updated_at)
		 VALUES (?, ?, NULL, ?)
		 ON CONFLICT(path) DO UPDATE SET
			value_json=excluded.value_json,
			expires_at=NULL,
			updated_at=excluded.updated_at
		 WHERE kv.expires_at IS NOT NULL AND kv.expires_at <= ?`,
		claim.Path, payload, now, now,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrExists
	}

	for _, w := range rest {
		payload, err := encode(w)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, upsertKV, w.Path, payload, nil, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func encode(w Write) (string, error) {
	if strings.TrimSpace(w.Path) == "" {
		return "", fmt.Errorf("path is required")
	}
	payload, err := json.Marshal(w.Value)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", w.Path, err)
	}
	return string(payload), nil
}

// List returns the live entries under prefix, ordered by path.
func (s *SQLiteStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	var rows []kvRow
	err := sqlscan.Select(ctx, s.db, &rows,
		`SELECT path, value_json, expires_at, updated_at
		 FROM kv
		 WHERE substr(path, 1, ?) = ? AND (expires_at IS NULL OR expires_at > ?)
		 ORDER BY path ASC`,
		len(prefix), prefix, time.Now().UTC(),
	)
	if err != nil {
		return nil, err
	}
	ret := make([]Entry, 0, len(rows))
	for _, row := range rows {
		ret = append(ret, row.entry())
	}
	return ret, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE path = ?`, path)
	return err
}

// DeleteExpired removes kv rows whose expires_at is before now.
func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE expires_at IS NOT NULL AND expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ KV = (*SQLiteStore)(nil)

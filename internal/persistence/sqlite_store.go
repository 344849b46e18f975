package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MimeLyc/ai-search-assistant/internal/jobs"
	"github.com/MimeLyc/ai-search-assistant/pkg/log"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore is the key-value collaborator and the job store, backed by one sqlite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}

	migrations, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, migrations)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		log.Debug("Applied migration %s in %s", r.Source.Path, r.Duration)
	}
	return nil
}

type jobRow struct {
	ID             string    `db:"id"`
	Source         string    `db:"source"`
	DedupeKey      string    `db:"dedupe_key"`
	Link           string    `db:"link"`
	CircularNumber string    `db:"circular_number"`
	Title          string    `db:"title"`
	Department     string    `db:"department"`
	CircularDate   string    `db:"circular_date"`
	MeantFor       string    `db:"meant_for"`
	Status         string    `db:"status"`
	Error          string    `db:"error"`
	Attempts       int       `db:"attempts"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (r jobRow) toJob() *jobs.IngestJob {
	return &jobs.IngestJob{
		ID:        r.ID,
		Source:    r.Source,
		DedupeKey: r.DedupeKey,
		Payload: jobs.IngestPayload{
			Link:           r.Link,
			CircularNumber: r.CircularNumber,
			Title:          r.Title,
			Department:     r.Department,
			Date:           r.CircularDate,
			MeantFor:       r.MeantFor,
		},
		Status:    jobs.Status(r.Status),
		Error:     r.Error,
		Attempts:  r.Attempts,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (s *SQLiteStore) LoadJobs(ctx context.Context) ([]*jobs.IngestJob, error) {
	var rows []jobRow
	err := sqlscan.Select(ctx, s.db, &rows,
		`SELECT id, source, dedupe_key, link, circular_number, title, department, circular_date, meant_for,
		        status, error, attempts, created_at, updated_at
		 FROM jobs
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}

	ret := make([]*jobs.IngestJob, 0, len(rows))
	for _, row := range rows {
		ret = append(ret, row.toJob())
	}
	return ret, nil
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, jobID)
	return err
}

func (s *SQLiteStore) UpsertJob(ctx context.Context, job *jobs.IngestJob) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
			id, source, dedupe_key, link, circular_number, title, department, circular_date, meant_for,
			status, error, attempts, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source=excluded.source,
			dedupe_key=excluded.dedupe_key,
			link=excluded.link,
			circular_number=excluded.circular_number,
			title=excluded.title,
			department=excluded.department,
			circular_date=excluded.circular_date,
			meant_for=excluded.meant_for,
			status=excluded.status,
			error=excluded.error,
			attempts=excluded.attempts,
			updated_at=excluded.updated_at`,
		job.ID,
		job.Source,
		job.DedupeKey,
		job.Payload.Link,
		job.Payload.CircularNumber,
		job.Payload.Title,
		job.Payload.Department,
		job.Payload.Date,
		job.Payload.MeantFor,
		string(job.Status),
		job.Error,
		job.Attempts,
		job.CreatedAt.UTC(),
		job.UpdatedAt.UTC(),
	)
	return err
}

var _ jobs.Store = (*SQLiteStore)(nil)

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rfpdesk/internal/db/migrations"
	"github.com/rfpdesk/internal/model"
)

// timeLayout sorts lexically in chronological order for UTC times.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Journal records the terminal outcome of every generation and dispatch job.
type Journal struct {
	db *sql.DB
}

// OpenJournal opens the SQLite journal at path and applies pending
// migrations.
func OpenJournal(ctx context.Context, path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One writer at a time prevents SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=30000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if err := runMigrations(db); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Journal{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return err
	}
	dbDriver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return err
	}
	return m.Up()
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Ping checks the journal database is reachable.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Append stores an entry, assigning an ID when it has none.
func (j *Journal) Append(ctx context.Context, e model.JournalEntry) (model.JournalEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO journal (id, kind, channel, container, count, state, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), string(e.Channel), string(e.Container), e.Count, e.State, e.Error,
		e.StartedAt.UTC().Format(timeLayout), e.FinishedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return e, fmt.Errorf("append journal entry: %w", err)
	}
	return e, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]model.JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, kind, channel, container, count, state, error, started_at, finished_at
		FROM journal
		ORDER BY finished_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []model.JournalEntry{}
	for rows.Next() {
		var (
			e                 model.JournalEntry
			kind, ch, cont    string
			started, finished string
		)
		if err := rows.Scan(&e.ID, &kind, &ch, &cont, &e.Count, &e.State, &e.Error, &started, &finished); err != nil {
			return nil, err
		}
		e.Kind = model.JobKind(kind)
		e.Channel = model.Channel(ch)
		e.Container = model.ContainerMode(cont)
		if e.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("journal %s: started_at: %w", e.ID, err)
		}
		if e.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return nil, fmt.Errorf("journal %s: finished_at: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Package journal records an audit trail of store mutations.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/axenox/Sketch/internal/logging"
	"github.com/axenox/Sketch/internal/metrics"
	"github.com/axenox/Sketch/internal/protocol"
)

// Outcomes stored with each entry.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// DefaultLimit bounds Recent when the caller passes a non-positive limit.
const DefaultLimit = 100

//go:embed migrations/*.up.sql
var migrations embed.FS

// Journal stores mutation records. It is never consulted to resolve paths.
type Journal interface {
	Record(ctx context.Context, e protocol.JournalEntry) error
	Recent(ctx context.Context, tenant string, limit int) ([]protocol.JournalEntry, error)
	Close() error
}

// Nop discards every record.
type Nop struct{}

func (Nop) Record(context.Context, protocol.JournalEntry) error { return nil }

func (Nop) Recent(context.Context, string, int) ([]protocol.JournalEntry, error) {
	return []protocol.JournalEntry{}, nil
}

func (Nop) Close() error { return nil }

// Postgres is a PostgreSQL-backed journal.
type Postgres struct {
	db *sql.DB
}

// Open connects to databaseURL.
func Open(databaseURL string) (*Postgres, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Postgres{db: db}, nil
}

// Close closes the database connection.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Migrate applies the embedded migrations in file name order. Every
// migration is idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	files, err := fs.Glob(migrations, "migrations/*.up.sql")
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(files)

	for _, f := range files {
		logging.Info("running migration", zap.String("file", f))
		content, err := migrations.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := p.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
	}
	return nil
}

// Record inserts e. A zero CreatedAt is stamped with the current time.
func (p *Postgres) Record(ctx context.Context, e protocol.JournalEntry) error {
	start := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = start.UTC()
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO journal (op, tenant, path, dst, doc_id, outcome, message, subject, request_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.Op, e.Tenant, e.Path, e.Dst, e.DocID, e.Outcome, e.Message, e.Subject, e.RequestID, e.CreatedAt)
	metrics.RecordJournalQuery("record", time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries for tenant, newest first.
func (p *Postgres) Recent(ctx context.Context, tenant string, limit int) ([]protocol.JournalEntry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	start := time.Now()
	entries, err := p.recent(ctx, tenant, limit)
	metrics.RecordJournalQuery("recent", time.Since(start), err == nil)
	return entries, err
}

func (p *Postgres) recent(ctx context.Context, tenant string, limit int) ([]protocol.JournalEntry, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, op, tenant, path, dst, doc_id, outcome, message, subject, request_id, created_at
		 FROM journal WHERE tenant = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, tenant, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	entries := []protocol.JournalEntry{}
	for rows.Next() {
		var e protocol.JournalEntry
		if err := rows.Scan(&e.ID, &e.Op, &e.Tenant, &e.Path, &e.Dst, &e.DocID,
			&e.Outcome, &e.Message, &e.Subject, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Package sqlite provides a local SQLite posting store for offline runs.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/gamejobs-crawler/internal/ingest"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
  link      TEXT PRIMARY KEY,
  company   TEXT NOT NULL,
  position  TEXT NOT NULL,
  deadline  TEXT,
  job_type  TEXT NOT NULL DEFAULT '',
  category  TEXT NOT NULL DEFAULT '',
  tags      TEXT NOT NULL DEFAULT '[]',
  is_active INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_jobs_deadline ON jobs(deadline);
`

const upsertSQL = `
INSERT INTO jobs (link, company, position, deadline, job_type, category, tags, is_active)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(link) DO UPDATE SET
  company = excluded.company,
  position = excluded.position,
  deadline = excluded.deadline,
  job_type = excluded.job_type,
  category = excluded.category,
  tags = excluded.tags,
  is_active = jobs.is_active AND excluded.is_active;`

// PostingStore persists postings in a single SQLite file.
type PostingStore struct {
	db *sql.DB
}

var _ ingest.Store = (*PostingStore)(nil)

// Open opens (or creates) the database at path and applies the schema. Use
// ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*PostingStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: a single writer, and ":memory:" lives on that connection.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &PostingStore{db: db}, nil
}

// Close releases the database handle.
func (s *PostingStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ExistingLinks returns up to limit stored links.
func (s *PostingStore) ExistingLinks(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT link FROM jobs ORDER BY rowid LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var links []string
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// Upsert writes postings in one transaction.
func (s *PostingStore) Upsert(ctx context.Context, postings []ingest.Posting) (err error) {
	if len(postings) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, p := range postings {
		tags, err := json.Marshal(ingest.NormalizeTags(p.Tags))
		if err != nil {
			return fmt.Errorf("marshal tags: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			p.Link, p.Company, p.Position, dateValue(p.Deadline), p.JobType, p.Category, string(tags), p.IsActive,
		); err != nil {
			return fmt.Errorf("upsert %s: %w", p.Link, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// DeactivateExpired flips active postings whose deadline is before today.
func (s *PostingStore) DeactivateExpired(ctx context.Context, today ingest.Date) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET is_active = 0 WHERE deadline < ? AND is_active = 1`, today.String())
	if err != nil {
		return 0, fmt.Errorf("deactivate expired: %w", err)
	}
	return affected(res)
}

// PurgeInactive deletes inactive postings whose deadline is before cutoff.
func (s *PostingStore) PurgeInactive(ctx context.Context, cutoff ingest.Date) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE deadline < ? AND is_active = 0`, cutoff.String())
	if err != nil {
		return 0, fmt.Errorf("purge inactive: %w", err)
	}
	return affected(res)
}

// ListPostings returns every stored posting in insertion order.
func (s *PostingStore) ListPostings(ctx context.Context) ([]ingest.Posting, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT link, company, position, deadline, job_type, category, tags, is_active
FROM jobs ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("select postings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ingest.Posting
	for rows.Next() {
		var (
			p        ingest.Posting
			deadline sql.NullString
			tags     string
		)
		if err := rows.Scan(&p.Link, &p.Company, &p.Position, &deadline, &p.JobType, &p.Category, &tags, &p.IsActive); err != nil {
			return nil, fmt.Errorf("scan posting: %w", err)
		}
		if deadline.Valid && deadline.String != "" {
			d, err := ingest.ParseDate(deadline.String)
			if err != nil {
				return nil, fmt.Errorf("posting %s: %w", p.Link, err)
			}
			p.Deadline = &d
		}
		if err := json.Unmarshal([]byte(tags), &p.Tags); err != nil {
			return nil, fmt.Errorf("posting %s tags: %w", p.Link, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func dateValue(d *ingest.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func affected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

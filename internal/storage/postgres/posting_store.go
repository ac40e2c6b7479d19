// Package postgres provides a Postgres-backed posting store.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/gamejobs-crawler/internal/ingest"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const (
	defaultTable     = "jobs"
	columnsPerRecord = 8
)

// Config controls the Postgres connection pool used for postings.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type database interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// PostingStore reads and writes postings with plain SQL.
type PostingStore struct {
	pool  database
	table string
}

var _ ingest.Store = (*PostingStore)(nil)

// NewPostingStore connects a pool using cfg.
func NewPostingStore(ctx context.Context, cfg Config) (*PostingStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostingStore{pool: pool, table: table}, nil
}

// NewPostingStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewPostingStoreWithPool(pool database, table string) (*PostingStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &PostingStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *PostingStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the postings table when it does not exist.
func (s *PostingStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	link      TEXT PRIMARY KEY,
	company   TEXT NOT NULL,
	position  TEXT NOT NULL,
	deadline  DATE,
	job_type  TEXT NOT NULL DEFAULT '',
	category  TEXT NOT NULL DEFAULT '',
	tags      TEXT[] NOT NULL DEFAULT '{}',
	is_active BOOLEAN NOT NULL DEFAULT TRUE
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create postings table: %w", err)
	}
	return nil
}

// ExistingLinks returns up to limit stored links.
func (s *PostingStore) ExistingLinks(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT link FROM %s LIMIT $1", s.table), limit)
	if err != nil {
		return nil, fmt.Errorf("select links: %w", err)
	}
	defer rows.Close()

	var links []string
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select links: %w", err)
	}
	return links, nil
}

// Upsert writes postings in one statement. A conflicting link updates the row
// but never reactivates it.
func (s *PostingStore) Upsert(ctx context.Context, postings []ingest.Posting) error {
	if len(postings) == 0 {
		return nil
	}
	values := make([]string, 0, len(postings))
	args := make([]any, 0, len(postings)*columnsPerRecord)
	for i, p := range postings {
		base := i * columnsPerRecord
		placeholders := make([]string, columnsPerRecord)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", base+j+1)
		}
		values = append(values, "("+strings.Join(placeholders, ",")+")")
		args = append(args,
			p.Link,
			p.Company,
			p.Position,
			toPGDate(p.Deadline),
			p.JobType,
			p.Category,
			tagsOrEmpty(p.Tags),
			p.IsActive,
		)
	}
	query := fmt.Sprintf(`
INSERT INTO %[1]s (link, company, position, deadline, job_type, category, tags, is_active)
VALUES %[2]s
ON CONFLICT (link) DO UPDATE SET
	company = EXCLUDED.company,
	position = EXCLUDED.position,
	deadline = EXCLUDED.deadline,
	job_type = EXCLUDED.job_type,
	category = EXCLUDED.category,
	tags = EXCLUDED.tags,
	is_active = %[1]s.is_active AND EXCLUDED.is_active`, s.table, strings.Join(values, ",\n"))

	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert postings: %w", err)
	}
	return nil
}

// DeactivateExpired flips active postings whose deadline is before today.
func (s *PostingStore) DeactivateExpired(ctx context.Context, today ingest.Date) (int, error) {
	query := fmt.Sprintf("UPDATE %s SET is_active = FALSE WHERE deadline < $1 AND is_active = TRUE", s.table)
	tag, err := s.pool.Exec(ctx, query, toPGDate(&today))
	if err != nil {
		return 0, fmt.Errorf("deactivate expired: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// PurgeInactive deletes inactive postings whose deadline is before cutoff.
func (s *PostingStore) PurgeInactive(ctx context.Context, cutoff ingest.Date) (int, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE deadline < $1 AND is_active = FALSE", s.table)
	tag, err := s.pool.Exec(ctx, query, toPGDate(&cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge inactive: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListPostings returns every stored posting ordered by link.
func (s *PostingStore) ListPostings(ctx context.Context) ([]ingest.Posting, error) {
	query := fmt.Sprintf(
		"SELECT link, company, position, deadline, job_type, category, tags, is_active FROM %s ORDER BY link",
		s.table,
	)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select postings: %w", err)
	}
	defer rows.Close()

	var out []ingest.Posting
	for rows.Next() {
		var (
			p        ingest.Posting
			deadline pgtype.Date
		)
		if err := rows.Scan(&p.Link, &p.Company, &p.Position, &deadline, &p.JobType, &p.Category, &p.Tags, &p.IsActive); err != nil {
			return nil, fmt.Errorf("scan posting: %w", err)
		}
		if deadline.Valid {
			d := ingest.DateOf(deadline.Time)
			p.Deadline = &d
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select postings: %w", err)
	}
	return out, nil
}

func toPGDate(d *ingest.Date) pgtype.Date {
	if d == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: d.Time(time.UTC), Valid: true}
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

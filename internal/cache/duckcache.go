// Package cache keeps summaries of previously submitted documents in DuckDB.
package cache

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"
)

// Options tunes the DuckDB connection.
type Options struct {
	MemoryLimit string // e.g. "256MB"; empty keeps the DuckDB default
	Threads     int    // zero keeps the DuckDB default
}

// Entry is one cached summary.
type Entry struct {
	Hash      string    `json:"hash"`
	FileName  string    `json:"fileName"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"createdAt"`
}

// SummaryCache stores summaries keyed by the SHA-256 of the document bytes.
type SummaryCache struct {
	db     *sql.DB
	dbPath string
	logger *zap.Logger
}

// Open opens (or creates) the cache database at dbPath.
func Open(dbPath string, opts Options, logger *zap.Logger) (*SummaryCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("duckcache")

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	var pragmas []string
	if opts.MemoryLimit != "" {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA memory_limit='%s'", opts.MemoryLimit))
	}
	if opts.Threads > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA threads=%d", opts.Threads))
	}
	pragmas = append(pragmas, "PRAGMA enable_progress_bar=false")

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return fmt.Errorf("%s: %w", pragma, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS summaries (
			pdf_hash   VARCHAR PRIMARY KEY,
			file_name  VARCHAR,
			summary    VARCHAR,
			created_at TIMESTAMP
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create summaries table: %w", err)
	}

	logger.Info("summary cache opened", zap.String("path", dbPath))
	return &SummaryCache{db: db, dbPath: dbPath, logger: logger}, nil
}

// Get returns the cached summary for hash.
func (c *SummaryCache) Get(ctx context.Context, hash string) (string, bool, error) {
	var summary string
	err := c.db.QueryRowContext(ctx,
		"SELECT summary FROM summaries WHERE pdf_hash = ?", hash).Scan(&summary)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying summary: %w", err)
	}
	return summary, true, nil
}

// Put stores summary for hash, replacing any previous entry.
func (c *SummaryCache) Put(ctx context.Context, hash, fileName, summary string) error {
	_, err := c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO summaries (pdf_hash, file_name, summary, created_at) VALUES (?, ?, ?, ?)",
		hash, fileName, summary, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storing summary: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (c *SummaryCache) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT pdf_hash, file_name, summary, created_at FROM summaries ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("listing summaries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Hash, &e.FileName, &e.Summary, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning summary: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Len returns the number of cached summaries.
func (c *SummaryCache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM summaries").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting summaries: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (c *SummaryCache) Close() error {
	return c.db.Close()
}

// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/prodrefs/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RowStoreConfig controls the Postgres connection pool used for output rows.
type RowStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type txBeginner interface {
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// RowStore writes output rows into Postgres, one transaction per run.
type RowStore struct {
	pool  txBeginner
	table string
}

// NewRowStore creates a Postgres-backed RowStore using the provided config.
func NewRowStore(ctx context.Context, cfg RowStoreConfig) (*RowStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
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
	return &RowStore{pool: pool, table: table}, nil
}

// NewRowStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRowStoreWithPool(pool txBeginner, table string) (*RowStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &RowStore{pool: pool, table: table}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = "product_refs"
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *RowStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Name identifies the sink in logs and reports.
func (s *RowStore) Name() string {
	return "postgres"
}

// WriteRows inserts every row atomically and returns the table name.
func (s *RowStore) WriteRows(ctx context.Context, runID string, rows []crawler.OutputRow) (location string, err error) {
	if s == nil || s.pool == nil {
		return "", fmt.Errorf("row store is not configured")
	}
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}
	if len(rows) == 0 {
		return s.table, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	position,
	input_keyword,
	product_name,
	description,
	price,
	currency,
	image_url,
	image_local_path,
	image_urls,
	image_local_paths,
	store_name,
	product_url,
	source_site,
	scraped_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)
ON CONFLICT (run_id, position) DO NOTHING`, s.table)

	for i, row := range rows {
		scrapedAt, perr := scrapedTime(row.ScrapedAt)
		if perr != nil {
			return "", fmt.Errorf("row %d: %w", i, perr)
		}
		args := []any{
			runID,
			i,
			row.InputKeyword,
			row.ProductName,
			row.Description,
			row.Price,
			row.Currency,
			row.ImageURL,
			row.ImageLocalPath,
			row.ImageURLs,
			row.ImageLocalPaths,
			row.StoreName,
			row.ProductURL,
			row.SourceSite,
			scrapedAt,
		}
		if _, err = tx.Exec(ctx, query, args...); err != nil {
			return "", fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit rows: %w", err)
	}
	return s.table, nil
}

// scrapedTime parses the RFC 3339 export value; empty maps to SQL NULL.
func scrapedTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("parse scraped_at %q: %w", v, err)
	}
	return &t, nil
}

var _ crawler.RowSink = (*RowStore)(nil)

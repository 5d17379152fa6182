// Package postgres provides an optional analytics sink that mirrors derived
// entity records into a relational table for downstream reporting.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/regscan/crawler/internal/crawl"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// EntityStoreConfig controls the Postgres connection pool used for the
// analytics table.
type EntityStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxIface interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// EntityStore writes entity rows into Postgres. It is a secondary sink; the
// document store remains the source of truth.
type EntityStore struct {
	pool  pgxIface
	table string
}

// NewEntityStore creates a Postgres-backed EntityStore using the provided config.
func NewEntityStore(ctx context.Context, cfg EntityStoreConfig) (*EntityStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("analytics.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "entities"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
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
	return &EntityStore{pool: pool, table: table}, nil
}

// NewEntityStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewEntityStoreWithPool(pool pgxIface, table string) (*EntityStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "entities"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &EntityStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *EntityStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// SaveEntities inserts the entity rows one by one and returns the number
// stored. A failed row aborts the batch with the count inserted so far.
func (s *EntityStore) SaveEntities(ctx context.Context, entities []crawl.Entity) (int, error) {
	if s == nil || s.pool == nil {
		return 0, crawl.E(crawl.KindConfig, "analytics.save", fmt.Errorf("entity store is not configured"))
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	entity_name,
	entity_type,
	sentiment,
	pan,
	cin,
	address,
	source_ref,
	source_name,
	source_date,
	run_id,
	scraped_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)`, s.table)

	stored := 0
	for _, e := range entities {
		args := []any{
			e.Name,
			e.Type,
			e.Sentiment,
			e.PAN,
			e.CIN,
			e.Address,
			e.SourceRef,
			e.SourceName,
			e.SourceDate,
			e.RunID,
			e.ScrapedAt,
		}
		if _, err := s.pool.Exec(ctx, query, args...); err != nil {
			return stored, crawl.E(crawl.KindStore, "analytics.save", fmt.Errorf("insert entity: %w", err))
		}
		stored++
	}
	return stored, nil
}

// Summary aggregates coverage counts over the analytics table.
func (s *EntityStore) Summary(ctx context.Context) (crawl.EntitySummary, error) {
	if s == nil || s.pool == nil {
		return crawl.EntitySummary{}, crawl.E(crawl.KindConfig, "analytics.summary", fmt.Errorf("entity store is not configured"))
	}
	query := fmt.Sprintf(`
SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE pan <> ''),
	COUNT(*) FILTER (WHERE cin <> ''),
	COUNT(*) FILTER (WHERE address <> ''),
	COUNT(*) FILTER (WHERE sentiment = 'Negative')
FROM %s`, s.table)

	var sum crawl.EntitySummary
	row := s.pool.QueryRow(ctx, query)
	if err := row.Scan(&sum.Total, &sum.WithPAN, &sum.WithCIN, &sum.WithAddress, &sum.NegativeSentiment); err != nil {
		return crawl.EntitySummary{}, crawl.E(crawl.KindStore, "analytics.summary", err)
	}
	if sum.Total > 0 {
		sum.PANCoverage = float64(sum.WithPAN) / float64(sum.Total) * 100
	}
	return sum, nil
}

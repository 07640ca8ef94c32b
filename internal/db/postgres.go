package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres introspects a PostgreSQL database through a connection pool, so
// concurrent requests do not serialize on a single connection.
type Postgres struct {
	pool       *pgxpool.Pool
	schemaName string
}

// NewPostgres connects to PostgreSQL and verifies the connection.
func NewPostgres(ctx context.Context, connString, schemaName string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{pool: pool, schemaName: schemaName}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Ping verifies the database is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// TableNames lists base tables in the configured schema.
func (p *Postgres) TableNames(ctx context.Context) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	rows, err := p.pool.Query(ctx, query, p.schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// Columns returns column metadata for a table.
func (p *Postgres) Columns(ctx context.Context, table string) (map[string]Column, error) {
	query := `
		SELECT column_name, data_type, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position
	`

	rows, err := p.pool.Query(ctx, query, p.schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string]Column)
	for rows.Next() {
		var name, dataType, nullable string
		var def *string
		if err := rows.Scan(&name, &dataType, &nullable, &def); err != nil {
			return nil, err
		}
		columns[name] = Column{
			Type:     dataType,
			Nullable: nullable == "YES",
			Default:  def,
		}
	}
	return columns, rows.Err()
}

// Indexes returns secondary indexes; the primary key index is excluded
// because primary keys are reported separately.
func (p *Postgres) Indexes(ctx context.Context, table string) ([]Index, error) {
	query := `
		SELECT
			i.relname AS index_name,
			ix.indisunique AS is_unique,
			array_agg(a.attname ORDER BY array_position(ix.indkey, a.attnum)) AS column_names
		FROM pg_class t
		JOIN pg_index ix ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		JOIN pg_namespace n ON n.oid = t.relnamespace
		WHERE t.relkind = 'r'
			AND n.nspname = $1
			AND t.relname = $2
			AND NOT ix.indisprimary
		GROUP BY i.relname, ix.indisunique
		ORDER BY i.relname
	`

	rows, err := p.pool.Query(ctx, query, p.schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexes []Index
	for rows.Next() {
		var idx Index
		if err := rows.Scan(&idx.Name, &idx.Unique, &idx.Columns); err != nil {
			return nil, err
		}
		indexes = append(indexes, idx)
	}
	return indexes, rows.Err()
}

// PrimaryKey returns the primary key columns in constraint order.
func (p *Postgres) PrimaryKey(ctx context.Context, table string) ([]string, error) {
	query := `
		SELECT kcu.column_name
		FROM information_schema.key_column_usage kcu
		JOIN information_schema.table_constraints tc
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE kcu.table_schema = $1
			AND kcu.table_name = $2
			AND tc.constraint_type = 'PRIMARY KEY'
		ORDER BY kcu.ordinal_position
	`

	rows, err := p.pool.Query(ctx, query, p.schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pk []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, err
		}
		pk = append(pk, col)
	}
	return pk, rows.Err()
}

// ForeignKeys returns foreign key constraints, multi-column constraints
// grouped under one entry.
func (p *Postgres) ForeignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	query := `
		SELECT
			tc.constraint_name,
			kcu.column_name,
			ccu.table_name AS foreign_table_name,
			ccu.column_name AS foreign_column_name
		FROM information_schema.table_constraints AS tc
		JOIN information_schema.key_column_usage AS kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage AS ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = $1
			AND tc.table_name = $2
		ORDER BY tc.constraint_name, kcu.ordinal_position
	`

	rows, err := p.pool.Query(ctx, query, p.schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []ForeignKey
	byName := make(map[string]int)
	for rows.Next() {
		var constraint, column, refTable, refColumn string
		if err := rows.Scan(&constraint, &column, &refTable, &refColumn); err != nil {
			return nil, err
		}
		i, ok := byName[constraint]
		if !ok {
			fks = append(fks, ForeignKey{ReferredTable: refTable})
			i = len(fks) - 1
			byName[constraint] = i
		}
		fks[i].ConstrainedColumns = append(fks[i].ConstrainedColumns, column)
		fks[i].ReferredColumns = append(fks[i].ReferredColumns, refColumn)
	}
	return fks, rows.Err()
}

// RowCount returns the exact row count for a table.
func (p *Postgres) RowCount(ctx context.Context, table string) (int64, error) {
	if err := validIdent(table); err != nil {
		return 0, err
	}
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s.%s", quoteIdent(p.schemaName), quoteIdent(table))
	if err := p.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// TableComment returns the table's comment, empty when none is set.
func (p *Postgres) TableComment(ctx context.Context, table string) (string, error) {
	query := `
		SELECT obj_description(c.oid, 'pg_class')
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relname = $2
	`
	var comment *string
	err := p.pool.QueryRow(ctx, query, p.schemaName, table).Scan(&comment)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if comment == nil {
		return "", nil
	}
	return *comment, nil
}

// SampleRows returns up to limit rows from the table.
func (p *Postgres) SampleRows(ctx context.Context, table string, limit int) ([]map[string]any, error) {
	if err := validIdent(table); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT * FROM %s.%s LIMIT $1", quoteIdent(p.schemaName), quoteIdent(table))

	rows, err := p.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []map[string]any
	fields := rows.FieldDescriptions()
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			row[fd.Name] = values[i]
		}
		samples = append(samples, row)
	}
	return samples, rows.Err()
}

// TableSize returns the total relation size, pretty-printed by the server.
func (p *Postgres) TableSize(ctx context.Context, table string) (string, error) {
	query := `SELECT pg_size_pretty(pg_total_relation_size(format('%I.%I', $1::text, $2::text)::regclass))`
	var size string
	if err := p.pool.QueryRow(ctx, query, p.schemaName, table).Scan(&size); err != nil {
		return "", err
	}
	return size, nil
}

// DistinctCount returns the number of distinct values in a column.
func (p *Postgres) DistinctCount(ctx context.Context, table, column string) (int64, error) {
	if err := validIdent(table); err != nil {
		return 0, err
	}
	if err := validIdent(column); err != nil {
		return 0, err
	}
	query := fmt.Sprintf("SELECT COUNT(DISTINCT %s) FROM %s.%s",
		quoteIdent(column), quoteIdent(p.schemaName), quoteIdent(table))
	var count int64
	if err := p.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// UsageCounters returns the table's access counters from
// pg_stat_user_tables.
func (p *Postgres) UsageCounters(ctx context.Context, table string) (UsageStats, error) {
	query := `
		SELECT
			COALESCE(seq_scan, 0),
			COALESCE(seq_tup_read, 0),
			COALESCE(idx_scan, 0),
			COALESCE(idx_tup_fetch, 0),
			COALESCE(n_live_tup, 0),
			COALESCE(n_dead_tup, 0)
		FROM pg_stat_user_tables
		WHERE schemaname = $1 AND relname = $2
	`
	var stats UsageStats
	err := p.pool.QueryRow(ctx, query, p.schemaName, table).Scan(
		&stats.SequentialScans,
		&stats.SequentialTuplesRead,
		&stats.IndexScans,
		&stats.IndexTuplesFetched,
		&stats.LiveTuples,
		&stats.DeadTuples,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return UsageStats{}, fmt.Errorf("no usage counters for table %q: %w", table, ErrStatisticsUnavailable)
	}
	if err != nil {
		return UsageStats{}, err
	}
	return stats, nil
}

// ExplainPlan returns the JSON execution plan for a query without running
// it. Used only as supplementary input for the advisory oracle.
func (p *Postgres) ExplainPlan(ctx context.Context, sql string) (string, error) {
	var plan string
	if err := p.pool.QueryRow(ctx, "EXPLAIN (FORMAT JSON) "+sql).Scan(&plan); err != nil {
		return "", err
	}
	return plan, nil
}

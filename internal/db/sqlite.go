package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite introspects a SQLite database file. Size and usage statistics are
// not tracked by SQLite, so those lookups return ErrStatisticsUnavailable.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database file and verifies the connection.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &SQLite{db: conn}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// TableNames lists user tables, excluding SQLite's internal tables.
func (s *SQLite) TableNames(ctx context.Context) ([]string, error) {
	query := `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`

	rows, err := s.db.QueryContext(ctx, query)
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

// Columns returns column metadata from PRAGMA table_info.
func (s *SQLite) Columns(ctx context.Context, table string) (map[string]Column, error) {
	if err := validIdent(table); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string]Column)
	for rows.Next() {
		var cid, notNull, pk int
		var name, colType string
		var def sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &def, &pk); err != nil {
			return nil, err
		}
		col := Column{Type: colType, Nullable: notNull == 0}
		if def.Valid {
			col.Default = &def.String
		}
		columns[name] = col
	}
	return columns, rows.Err()
}

// Indexes returns secondary indexes from PRAGMA index_list/index_info.
// Indexes SQLite created implicitly for primary keys are skipped.
func (s *SQLite) Indexes(ctx context.Context, table string) ([]Index, error) {
	if err := validIdent(table); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%s)", quoteIdent(table)))
	if err != nil {
		return nil, err
	}

	type indexMeta struct {
		name   string
		unique bool
	}
	var metas []indexMeta
	for rows.Next() {
		var seq, unique, partial int
		var name, origin string
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			rows.Close()
			return nil, err
		}
		if origin == "pk" {
			continue
		}
		metas = append(metas, indexMeta{name: name, unique: unique == 1})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	var indexes []Index
	for _, meta := range metas {
		cols, err := s.indexColumns(ctx, meta.name)
		if err != nil {
			return nil, err
		}
		indexes = append(indexes, Index{Name: meta.name, Columns: cols, Unique: meta.unique})
	}
	return indexes, nil
}

func (s *SQLite) indexColumns(ctx context.Context, indexName string) ([]string, error) {
	if err := validIdent(indexName); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%s)", quoteIdent(indexName)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var seqno, cid int
		var name sql.NullString
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, err
		}
		if name.Valid {
			cols = append(cols, name.String)
		}
	}
	return cols, rows.Err()
}

// PrimaryKey returns the primary key columns, ordered by their position in
// the key.
func (s *SQLite) PrimaryKey(ctx context.Context, table string) ([]string, error) {
	if err := validIdent(table); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type pkCol struct {
		name string
		pos  int
	}
	var pkCols []pkCol
	for rows.Next() {
		var cid, notNull, pk int
		var name, colType string
		var def sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &def, &pk); err != nil {
			return nil, err
		}
		if pk > 0 {
			pkCols = append(pkCols, pkCol{name: name, pos: pk})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(pkCols, func(i, j int) bool { return pkCols[i].pos < pkCols[j].pos })
	pk := make([]string, 0, len(pkCols))
	for _, c := range pkCols {
		pk = append(pk, c.name)
	}
	return pk, nil
}

// ForeignKeys returns foreign key constraints from PRAGMA foreign_key_list,
// multi-column constraints grouped by their constraint id.
func (s *SQLite) ForeignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	if err := validIdent(table); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []ForeignKey
	byID := make(map[int]int)
	for rows.Next() {
		var id, seq int
		var refTable, from string
		var to sql.NullString
		var onUpdate, onDelete, match string
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, err
		}
		i, ok := byID[id]
		if !ok {
			fks = append(fks, ForeignKey{ReferredTable: refTable})
			i = len(fks) - 1
			byID[id] = i
		}
		fks[i].ConstrainedColumns = append(fks[i].ConstrainedColumns, from)
		if to.Valid {
			fks[i].ReferredColumns = append(fks[i].ReferredColumns, to.String)
		}
	}
	return fks, rows.Err()
}

// RowCount returns the exact row count for a table.
func (s *SQLite) RowCount(ctx context.Context, table string) (int64, error) {
	if err := validIdent(table); err != nil {
		return 0, err
	}
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(table))
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// TableComment always returns empty: SQLite has no table comments.
func (s *SQLite) TableComment(ctx context.Context, table string) (string, error) {
	return "", nil
}

// SampleRows returns up to limit rows from the table.
func (s *SQLite) SampleRows(ctx context.Context, table string, limit int) ([]map[string]any, error) {
	if err := validIdent(table); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT * FROM %s LIMIT ?", quoteIdent(table))

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var samples []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		samples = append(samples, row)
	}
	return samples, rows.Err()
}

// TableSize is unavailable: SQLite does not track per-table size.
func (s *SQLite) TableSize(ctx context.Context, table string) (string, error) {
	return "", ErrStatisticsUnavailable
}

// DistinctCount returns the number of distinct values in a column.
func (s *SQLite) DistinctCount(ctx context.Context, table, column string) (int64, error) {
	if err := validIdent(table); err != nil {
		return 0, err
	}
	if err := validIdent(column); err != nil {
		return 0, err
	}
	var count int64
	query := fmt.Sprintf("SELECT COUNT(DISTINCT %s) FROM %s", quoteIdent(column), quoteIdent(table))
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// UsageCounters is unavailable: SQLite keeps no access counters.
func (s *SQLite) UsageCounters(ctx context.Context, table string) (UsageStats, error) {
	return UsageStats{}, ErrStatisticsUnavailable
}

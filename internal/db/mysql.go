package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// MySQL introspects a MySQL or MariaDB database. Usage counters are not
// exposed by MySQL's information_schema, so those lookups return
// ErrStatisticsUnavailable.
type MySQL struct {
	db         *sql.DB
	schemaName string
}

// NewMySQL connects to MySQL using a driver DSN
// (user:pass@tcp(host:port)/database) and verifies the connection. The
// target schema is taken from the DSN's database name.
func NewMySQL(ctx context.Context, dsn string) (*MySQL, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	if cfg.DBName == "" {
		return nil, fmt.Errorf("MySQL DSN must name a database")
	}

	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &MySQL{db: conn, schemaName: cfg.DBName}, nil
}

// Close closes the database connection.
func (m *MySQL) Close() error {
	return m.db.Close()
}

// Ping verifies the database is reachable.
func (m *MySQL) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// TableNames lists base tables in the target schema.
func (m *MySQL) TableNames(ctx context.Context) ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`

	rows, err := m.db.QueryContext(ctx, query, m.schemaName)
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
func (m *MySQL) Columns(ctx context.Context, table string) (map[string]Column, error) {
	query := `
		SELECT column_name, column_type, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position
	`

	rows, err := m.db.QueryContext(ctx, query, m.schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := make(map[string]Column)
	for rows.Next() {
		var name, colType, nullable string
		var def sql.NullString
		if err := rows.Scan(&name, &colType, &nullable, &def); err != nil {
			return nil, err
		}
		col := Column{Type: colType, Nullable: nullable == "YES"}
		if def.Valid {
			col.Default = &def.String
		}
		columns[name] = col
	}
	return columns, rows.Err()
}

// Indexes returns secondary indexes; the PRIMARY index is excluded.
func (m *MySQL) Indexes(ctx context.Context, table string) ([]Index, error) {
	query := `
		SELECT index_name, column_name, non_unique
		FROM information_schema.statistics
		WHERE table_schema = ? AND table_name = ? AND index_name != 'PRIMARY'
		ORDER BY index_name, seq_in_index
	`

	rows, err := m.db.QueryContext(ctx, query, m.schemaName, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexes []Index
	byName := make(map[string]int)
	for rows.Next() {
		var name, column string
		var nonUnique int
		if err := rows.Scan(&name, &column, &nonUnique); err != nil {
			return nil, err
		}
		i, ok := byName[name]
		if !ok {
			indexes = append(indexes, Index{Name: name, Unique: nonUnique == 0})
			i = len(indexes) - 1
			byName[name] = i
		}
		indexes[i].Columns = append(indexes[i].Columns, column)
	}
	return indexes, rows.Err()
}

// PrimaryKey returns the primary key columns in constraint order.
func (m *MySQL) PrimaryKey(ctx context.Context, table string) ([]string, error) {
	query := `
		SELECT column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = ? AND table_name = ? AND constraint_name = 'PRIMARY'
		ORDER BY ordinal_position
	`

	rows, err := m.db.QueryContext(ctx, query, m.schemaName, table)
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
func (m *MySQL) ForeignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	query := `
		SELECT constraint_name, column_name, referenced_table_name, referenced_column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = ? AND table_name = ? AND referenced_table_name IS NOT NULL
		ORDER BY constraint_name, ordinal_position
	`

	rows, err := m.db.QueryContext(ctx, query, m.schemaName, table)
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
func (m *MySQL) RowCount(ctx context.Context, table string) (int64, error) {
	if err := validIdent(table); err != nil {
		return 0, err
	}
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", backquoteIdent(table))
	if err := m.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// TableComment returns the table comment from information_schema.
func (m *MySQL) TableComment(ctx context.Context, table string) (string, error) {
	query := `
		SELECT table_comment
		FROM information_schema.tables
		WHERE table_schema = ? AND table_name = ?
	`
	var comment sql.NullString
	err := m.db.QueryRowContext(ctx, query, m.schemaName, table).Scan(&comment)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return comment.String, nil
}

// SampleRows returns up to limit rows from the table.
func (m *MySQL) SampleRows(ctx context.Context, table string, limit int) ([]map[string]any, error) {
	if err := validIdent(table); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT * FROM %s LIMIT ?", backquoteIdent(table))

	rows, err := m.db.QueryContext(ctx, query, limit)
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

// TableSize returns the data plus index size from information_schema.
func (m *MySQL) TableSize(ctx context.Context, table string) (string, error) {
	query := `
		SELECT COALESCE(data_length, 0) + COALESCE(index_length, 0)
		FROM information_schema.tables
		WHERE table_schema = ? AND table_name = ?
	`
	var size int64
	err := m.db.QueryRowContext(ctx, query, m.schemaName, table).Scan(&size)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no size recorded for table %q: %w", table, ErrStatisticsUnavailable)
	}
	if err != nil {
		return "", err
	}
	return prettySize(size), nil
}

// DistinctCount returns the number of distinct values in a column.
func (m *MySQL) DistinctCount(ctx context.Context, table, column string) (int64, error) {
	if err := validIdent(table); err != nil {
		return 0, err
	}
	if err := validIdent(column); err != nil {
		return 0, err
	}
	var count int64
	query := fmt.Sprintf("SELECT COUNT(DISTINCT %s) FROM %s", backquoteIdent(column), backquoteIdent(table))
	if err := m.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// UsageCounters is unavailable: MySQL exposes no per-table scan counters
// through information_schema.
func (m *MySQL) UsageCounters(ctx context.Context, table string) (UsageStats, error) {
	return UsageStats{}, ErrStatisticsUnavailable
}

// backquoteIdent backtick-quotes an identifier (MySQL style).
func backquoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

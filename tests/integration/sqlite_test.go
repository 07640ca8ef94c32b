//go:build integration
// +build integration

package integration

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advisql/advisql"
)

// seedSQLite creates a small shop database and returns its advisql URL.
func seedSQLite(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "shop.db")
	conn, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer conn.Close()

	stmts := []string{
		`CREATE TABLE users (
			id INTEGER PRIMARY KEY,
			username TEXT NOT NULL,
			email TEXT NOT NULL
		)`,
		`CREATE TABLE orders (
			id INTEGER PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id),
			status TEXT NOT NULL DEFAULT 'open'
		)`,
		`CREATE INDEX idx_orders_user_id ON orders(user_id)`,
		`INSERT INTO users (id, username, email) VALUES
			(1, 'ada', 'ada@example.com'),
			(2, 'grace', 'grace@example.com')`,
		`INSERT INTO orders (id, user_id, status) VALUES
			(1, 1, 'open'),
			(2, 1, 'shipped'),
			(3, 2, 'open')`,
	}
	for _, stmt := range stmts {
		_, err := conn.Exec(stmt)
		require.NoError(t, err)
	}
	return "sqlite://" + path
}

func TestSQLiteEndToEnd(t *testing.T) {
	ctx := context.Background()

	eng, err := advisql.New(ctx, seedSQLite(t), nil)
	require.NoError(t, err)
	defer eng.Close()

	require.NoError(t, eng.Ping(ctx))

	dbCtx, err := eng.Context(ctx)
	require.NoError(t, err)
	assert.Contains(t, dbCtx.Tables, "users")
	assert.Contains(t, dbCtx.Tables, "orders")
	assert.Equal(t, int64(3), dbCtx.Tables["orders"].RowCount)
	assert.NotEmpty(t, dbCtx.Relationships["orders"])

	info, err := eng.TableInfo(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, info.PrimaryKeys)

	analysis, err := eng.Analyze("SELECT orders.status FROM orders WHERE orders.status = 'open'")
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, analysis.TablesUsed)

	result, err := eng.Optimize(ctx, "SELECT orders.status FROM orders WHERE orders.status = 'open'")
	require.NoError(t, err)
	require.NotNil(t, result.Suggestions)

	summary, err := eng.SchemaSummary(ctx)
	require.NoError(t, err)
	assert.Contains(t, summary, "Table: orders")

	require.NoError(t, eng.RefreshCache("all"))
	assert.False(t, eng.CacheStats().HasCachedData)
}

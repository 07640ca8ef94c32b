package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeSimpleSelect(t *testing.T) {
	a, err := Analyze("SELECT id FROM orders")
	require.NoError(t, err)

	assert.Equal(t, []string{"orders"}, a.TablesUsed)
	// Unqualified columns keep the sentinel owner even when the query has a
	// single table; inferring the owner would change suggestion output.
	assert.Equal(t, map[string][]string{UnknownTable: {"id"}}, a.ColumnsAccessed)
	assert.Equal(t, Simple, a.Complexity)
	assert.Equal(t, 1.0, a.EstimatedCost)
}

func TestAnalyzeJoin(t *testing.T) {
	a, err := Analyze("SELECT o.id, c.name FROM orders o JOIN customers c ON o.customer_id = c.id")
	require.NoError(t, err)

	assert.Equal(t, []string{"orders", "customers"}, a.TablesUsed)
	// Columns are keyed by the qualifier as written, aliases included.
	assert.Equal(t, []string{"id", "customer_id"}, a.ColumnsAccessed["o"])
	assert.Equal(t, []string{"name", "id"}, a.ColumnsAccessed["c"])
	assert.Equal(t, 1, a.JoinCount)
	assert.Equal(t, Simple, a.Complexity)
	assert.Equal(t, 3.0, a.EstimatedCost)
}

func TestAnalyzeDuplicateColumnsPreserved(t *testing.T) {
	a, err := Analyze("SELECT o.id FROM orders o WHERE o.id > 100 ORDER BY o.id")
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "id", "id"}, a.ColumnsAccessed["o"])
}

func TestAnalyzeSubqueryTables(t *testing.T) {
	a, err := Analyze("SELECT name FROM customers WHERE id IN (SELECT customer_id FROM orders)")
	require.NoError(t, err)

	assert.Equal(t, []string{"customers", "orders"}, a.TablesUsed)
	assert.Equal(t, 1, a.SubqueryCount)
	assert.Equal(t, []string{"name", "id", "customer_id"}, a.ColumnsAccessed[UnknownTable])
}

func TestAnalyzeDerivedTable(t *testing.T) {
	a, err := Analyze("SELECT * FROM (SELECT id FROM orders) t")
	require.NoError(t, err)

	assert.Equal(t, []string{"orders"}, a.TablesUsed)
	assert.Equal(t, 1, a.SubqueryCount)
}

func TestAnalyzeAggregates(t *testing.T) {
	a, err := Analyze("SELECT status, COUNT(*), MAX(total) FROM orders GROUP BY status")
	require.NoError(t, err)

	assert.Equal(t, 2, a.AggregateCount)
	assert.Equal(t, 1.0+2*1.5, a.EstimatedCost)
}

func TestAnalyzeInsertTarget(t *testing.T) {
	a, err := Analyze("INSERT INTO audit_log (action) VALUES ('login')")
	require.NoError(t, err)

	assert.Equal(t, []string{"audit_log"}, a.TablesUsed)
}

func TestComplexityBoundaries(t *testing.T) {
	tests := []struct {
		name  string
		sql   string
		score int
		want  Complexity
	}{
		{
			name:  "two joins stay simple",
			sql:   "SELECT * FROM a JOIN b ON a.id = b.id JOIN c ON b.id = c.id",
			score: 2,
			want:  Simple,
		},
		{
			name:  "three crosses into moderate",
			sql:   "SELECT COUNT(a.id) FROM a JOIN b ON a.id = b.id JOIN c ON b.id = c.id",
			score: 3,
			want:  Moderate,
		},
		{
			name: "five stays moderate",
			sql: "SELECT COUNT(a.id), SUM(a.v), MIN(a.w) FROM a JOIN b ON a.id = b.id " +
				"JOIN c ON b.id = c.id",
			score: 5,
			want:  Moderate,
		},
		{
			name: "six crosses into complex",
			sql: "SELECT COUNT(a.id), MAX(b.v) FROM a JOIN b ON a.id = b.id JOIN c ON b.id = c.id " +
				"WHERE a.x IN (SELECT x FROM d) AND b.y IN (SELECT y FROM e)",
			score: 6,
			want:  Complex,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Analyze(tt.sql)
			require.NoError(t, err)
			assert.Equal(t, tt.score, a.JoinCount+a.SubqueryCount+a.AggregateCount)
			assert.Equal(t, tt.want, a.Complexity)
		})
	}
}

func TestAnalyzeIdempotent(t *testing.T) {
	sql := "SELECT o.id, COUNT(*) FROM orders o JOIN customers c ON o.customer_id = c.id GROUP BY o.id"

	first, err := Analyze(sql)
	require.NoError(t, err)
	second, err := Analyze(sql)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAnalyzeMalformed(t *testing.T) {
	tests := []string{
		"SELECT FROM",
		"not sql at all",
		"",
	}
	for _, sql := range tests {
		a, err := Analyze(sql)
		assert.Nil(t, a)
		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Equal(t, sql, parseErr.SQL)
	}
}

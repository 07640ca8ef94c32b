package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/advisql/advisql/internal/cache"
	"github.com/advisql/advisql/internal/db"
	"github.com/advisql/advisql/internal/db/dbtest"
)

func shopFake() *dbtest.Fake {
	return &dbtest.Fake{Tables: map[string]dbtest.Table{
		"customers": {
			Columns: map[string]Column{
				"id":   {Type: "integer"},
				"name": {Type: "text", Nullable: true},
			},
			PrimaryKeys: []string{"id"},
			RowCount:    2,
			Samples:     []map[string]any{{"id": 1, "name": "ada"}},
		},
		"orders": {
			Columns: map[string]Column{
				"id":          {Type: "integer"},
				"customer_id": {Type: "integer"},
			},
			PrimaryKeys: []string{"id"},
			ForeignKeys: []ForeignKey{{
				ConstrainedColumns: []string{"customer_id"},
				ReferredTable:      "customers",
				ReferredColumns:    []string{"id"},
			}},
			Indexes:  []Index{{Name: "idx_orders_customer", Columns: []string{"customer_id"}}},
			RowCount: 3,
			Comment:  "Order headers",
		},
	}}
}

func newBuilder(t *testing.T, fake *dbtest.Fake) *Builder {
	t.Helper()
	return NewBuilder(fake, cache.New(nil), zaptest.NewLogger(t))
}

func TestContext(t *testing.T) {
	b := newBuilder(t, shopFake())

	dbCtx, err := b.Context(context.Background())
	require.NoError(t, err)

	require.Len(t, dbCtx.Tables, 2)
	assert.EqualValues(t, 3, dbCtx.Tables["orders"].RowCount)
	assert.Equal(t, "Order headers", dbCtx.Tables["orders"].Description)
	assert.Equal(t, "Table containing customers data", dbCtx.Tables["customers"].Description)

	// Both directions of the single foreign key.
	require.Len(t, dbCtx.Relationships["orders"], 1)
	assert.Equal(t, RelationReferences, dbCtx.Relationships["orders"][0].Kind)
	assert.Equal(t, "customers", dbCtx.Relationships["orders"][0].Table)
	require.Len(t, dbCtx.Relationships["customers"], 1)
	assert.Equal(t, RelationReferencedBy, dbCtx.Relationships["customers"][0].Kind)
	assert.Equal(t, "orders", dbCtx.Relationships["customers"][0].Table)

	require.Len(t, dbCtx.Constraints["orders"], 2)
	assert.Equal(t, "primary_key", dbCtx.Constraints["orders"][0].Kind)
	assert.Equal(t, "foreign_key", dbCtx.Constraints["orders"][1].Kind)

	assert.Equal(t, DatabaseStatistics{
		TotalTables:      2,
		TotalColumns:     4,
		TotalIndexes:     1,
		TotalForeignKeys: 1,
	}, dbCtx.Statistics)

	require.Len(t, dbCtx.SampleData["customers"], 1)
	assert.Equal(t, "ada", dbCtx.SampleData["customers"][0]["name"])
}

func TestContextCached(t *testing.T) {
	fake := shopFake()
	b := newBuilder(t, fake)

	_, err := b.Context(context.Background())
	require.NoError(t, err)

	// Backend goes away; the cached snapshot keeps serving.
	fake.Errors = map[string]error{"tablenames": errors.New("down")}
	dbCtx, err := b.Context(context.Background())
	require.NoError(t, err)
	assert.Len(t, dbCtx.Tables, 2)
}

func TestContextFailsWhenListingFails(t *testing.T) {
	fake := shopFake()
	fake.Errors = map[string]error{"tablenames": errors.New("connection refused")}
	b := newBuilder(t, fake)

	_, err := b.Context(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list tables")
}

func TestContextDegradesPerTableField(t *testing.T) {
	fake := shopFake()
	fake.Errors = map[string]error{
		"rowcount:orders": errors.New("timeout"),
		"samples:orders":  errors.New("timeout"),
	}
	b := newBuilder(t, fake)

	dbCtx, err := b.Context(context.Background())
	require.NoError(t, err, "one table's field failures must not abort the build")
	assert.Zero(t, dbCtx.Tables["orders"].RowCount)
	assert.Empty(t, dbCtx.SampleData["orders"])
	// The sibling table is untouched.
	assert.EqualValues(t, 2, dbCtx.Tables["customers"].RowCount)
}

func TestTableInfo(t *testing.T) {
	b := newBuilder(t, shopFake())

	info, err := b.TableInfo(context.Background(), "orders")
	require.NoError(t, err)
	assert.EqualValues(t, 3, info.RowCount)
	assert.Equal(t, []string{"id"}, info.PrimaryKeys)
	require.Len(t, info.ForeignKeys, 1)
}

func TestTableInfoNotFound(t *testing.T) {
	b := newBuilder(t, shopFake())

	_, err := b.TableInfo(context.Background(), "ghost")
	var notFound *db.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "ghost", notFound.Table)
}

func TestRefreshCache(t *testing.T) {
	fake := shopFake()
	b := newBuilder(t, fake)

	_, err := b.Context(context.Background())
	require.NoError(t, err)
	require.True(t, b.CacheStats().CacheValid)

	err = b.RefreshCache("bogus")
	var unknown *UnknownCategoryError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "bogus", unknown.Category)

	require.NoError(t, b.RefreshCache("all"))
	assert.False(t, b.CacheStats().CacheValid)

	// Next Context call rebuilds from scratch, picking up changes.
	fake.Tables["products"] = dbtest.Table{Columns: map[string]Column{"id": {Type: "integer"}}}
	dbCtx, err := b.Context(context.Background())
	require.NoError(t, err)
	assert.Len(t, dbCtx.Tables, 3)
}

func TestCacheStats(t *testing.T) {
	b := newBuilder(t, shopFake())

	stats := b.CacheStats()
	assert.False(t, stats.CacheValid)
	assert.Nil(t, stats.CacheAge)

	_, err := b.Context(context.Background())
	require.NoError(t, err)

	stats = b.CacheStats()
	assert.True(t, stats.CacheValid)
	assert.True(t, stats.HasCachedData)
	require.NotNil(t, stats.CacheAge)
	assert.Equal(t, 1, stats.EntriesByCategory[string(cache.CategoryFullContext)])
	assert.Positive(t, stats.TotalSizeBytes)
}

package schema

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/advisql/advisql/internal/cache"
	"github.com/advisql/advisql/internal/db"
)

// contextKey caches the whole DatabaseContext as one unit. Coarse, but it
// removes any partial-update hazard: the context is rebuilt wholesale on a
// miss, never patched.
var contextKey = cache.Key("database_context")

// UnknownCategoryError reports an invalid RefreshCache argument.
type UnknownCategoryError struct {
	Category string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown cache category: %q", e.Category)
}

// sampleRowLimit bounds how many rows per table end up in the context.
const sampleRowLimit = 3

// Builder assembles the database context from live introspection, caching
// the result. Safe for concurrent use; all mutable state lives in the
// store except the build timestamp.
type Builder struct {
	intro       db.Introspector
	store       *cache.Store
	log         *zap.Logger
	sampleLimit int

	mu        sync.Mutex
	lastBuilt time.Time
}

// NewBuilder creates a context builder over the given introspector and
// cache store.
func NewBuilder(intro db.Introspector, store *cache.Store, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{intro: intro, store: store, log: log, sampleLimit: sampleRowLimit}
}

// Context returns the full database context, building it on a cache miss.
// It fails only when the table listing itself fails (database unreachable);
// every per-table and per-field failure is logged and defaulted instead.
func (b *Builder) Context(ctx context.Context) (DatabaseContext, error) {
	return cache.Memoize(b.store, contextKey, cache.CategoryFullContext,
		func() (DatabaseContext, error) {
			return b.build(ctx)
		})
}

func (b *Builder) build(ctx context.Context) (DatabaseContext, error) {
	start := time.Now()
	b.log.Info("cache miss, building database context")

	tables, err := b.intro.TableNames(ctx)
	if err != nil {
		return DatabaseContext{}, fmt.Errorf("failed to list tables: %w", err)
	}

	dbCtx := DatabaseContext{
		Tables:        make(map[string]TableInfo, len(tables)),
		Relationships: make(map[string][]Relationship, len(tables)),
		SampleData:    make(map[string][]map[string]any, len(tables)),
		Constraints:   make(map[string][]Constraint, len(tables)),
	}

	for _, table := range tables {
		dbCtx.Tables[table] = b.buildTableInfo(ctx, table)
		dbCtx.SampleData[table] = b.sampleData(ctx, table)
	}

	dbCtx.Relationships = deriveRelationships(tables, dbCtx.Tables)
	dbCtx.Constraints = deriveConstraints(tables, dbCtx.Tables)
	dbCtx.Statistics = aggregateStatistics(dbCtx.Tables)

	b.mu.Lock()
	b.lastBuilt = time.Now()
	b.mu.Unlock()

	b.log.Info("database context built",
		zap.Int("tables", len(tables)),
		zap.Duration("elapsed", time.Since(start)))
	return dbCtx, nil
}

// TableInfo introspects a single table directly, bypassing the
// whole-context cache. Unknown tables yield a *db.NotFoundError.
func (b *Builder) TableInfo(ctx context.Context, table string) (TableInfo, error) {
	columns, err := b.intro.Columns(ctx, table)
	if err != nil {
		return TableInfo{}, fmt.Errorf("failed to get columns for %s: %w", table, err)
	}
	if len(columns) == 0 {
		return TableInfo{}, &db.NotFoundError{Table: table}
	}
	info := b.buildTableInfo(ctx, table)
	return info, nil
}

// buildTableInfo assembles one table's info, field by field. A failing
// field is logged and left at its zero value so sibling fields survive.
func (b *Builder) buildTableInfo(ctx context.Context, table string) TableInfo {
	info := TableInfo{}
	var err error

	if info.Columns, err = b.intro.Columns(ctx, table); err != nil {
		b.log.Error("failed to get columns", zap.String("table", table), zap.Error(err))
		info.Columns = map[string]Column{}
	}
	if info.Indexes, err = b.intro.Indexes(ctx, table); err != nil {
		b.log.Error("failed to get indexes", zap.String("table", table), zap.Error(err))
		info.Indexes = nil
	}
	if info.PrimaryKeys, err = b.intro.PrimaryKey(ctx, table); err != nil {
		b.log.Error("failed to get primary key", zap.String("table", table), zap.Error(err))
		info.PrimaryKeys = nil
	}
	if info.ForeignKeys, err = b.intro.ForeignKeys(ctx, table); err != nil {
		b.log.Error("failed to get foreign keys", zap.String("table", table), zap.Error(err))
		info.ForeignKeys = nil
	}
	if info.RowCount, err = b.intro.RowCount(ctx, table); err != nil {
		b.log.Error("failed to get row count", zap.String("table", table), zap.Error(err))
		info.RowCount = 0
	}
	info.Description = b.describeTable(ctx, table)
	return info
}

func (b *Builder) describeTable(ctx context.Context, table string) string {
	comment, err := b.intro.TableComment(ctx, table)
	if err != nil {
		b.log.Warn("failed to get table comment", zap.String("table", table), zap.Error(err))
	}
	if comment != "" {
		return comment
	}
	return fmt.Sprintf("Table containing %s data", table)
}

func (b *Builder) sampleData(ctx context.Context, table string) []map[string]any {
	rows, err := b.intro.SampleRows(ctx, table, b.sampleLimit)
	if err != nil {
		b.log.Warn("failed to get sample data", zap.String("table", table), zap.Error(err))
		return []map[string]any{}
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return rows
}

// deriveRelationships turns foreign keys into directional edges. Outgoing
// edges come from a table's own keys; incoming edges from scanning every
// other table's keys for a referredTable match. O(tables²), but only on a
// cache miss.
func deriveRelationships(tables []string, infos map[string]TableInfo) map[string][]Relationship {
	rels := make(map[string][]Relationship, len(tables))
	for _, table := range tables {
		edges := []Relationship{}
		for _, fk := range infos[table].ForeignKeys {
			edges = append(edges, Relationship{
				Kind:            RelationReferences,
				Table:           fk.ReferredTable,
				Columns:         fk.ConstrainedColumns,
				ReferredColumns: fk.ReferredColumns,
			})
		}
		for _, other := range tables {
			if other == table {
				continue
			}
			for _, fk := range infos[other].ForeignKeys {
				if fk.ReferredTable == table {
					edges = append(edges, Relationship{
						Kind:            RelationReferencedBy,
						Table:           other,
						Columns:         fk.ConstrainedColumns,
						ReferredColumns: fk.ReferredColumns,
					})
				}
			}
		}
		rels[table] = edges
	}
	return rels
}

func deriveConstraints(tables []string, infos map[string]TableInfo) map[string][]Constraint {
	constraints := make(map[string][]Constraint, len(tables))
	for _, table := range tables {
		list := []Constraint{}
		info := infos[table]
		if len(info.PrimaryKeys) > 0 {
			list = append(list, Constraint{Kind: "primary_key", Columns: info.PrimaryKeys})
		}
		for _, fk := range info.ForeignKeys {
			list = append(list, Constraint{
				Kind:            "foreign_key",
				Columns:         fk.ConstrainedColumns,
				ReferredTable:   fk.ReferredTable,
				ReferredColumns: fk.ReferredColumns,
			})
		}
		constraints[table] = list
	}
	return constraints
}

func aggregateStatistics(infos map[string]TableInfo) DatabaseStatistics {
	stats := DatabaseStatistics{TotalTables: len(infos)}
	for _, info := range infos {
		stats.TotalColumns += len(info.Columns)
		stats.TotalIndexes += len(info.Indexes)
		stats.TotalForeignKeys += len(info.ForeignKeys)
	}
	return stats
}

// RefreshCache drops cached data. Only "all" is supported: the context is
// cached as one unit, so partial category refreshes have nothing to act on.
func (b *Builder) RefreshCache(category string) error {
	if category != "all" {
		return &UnknownCategoryError{Category: category}
	}
	b.log.Info("refreshing cache", zap.String("category", category))
	b.store.InvalidateAll()
	b.mu.Lock()
	b.lastBuilt = time.Time{}
	b.mu.Unlock()
	return nil
}

// CacheStats reports the context cache's current state for observability.
func (b *Builder) CacheStats() CacheStats {
	_, valid := b.store.Get(contextKey, cache.CategoryFullContext)
	storeStats := b.store.Stats()

	stats := CacheStats{
		CacheValid:        valid,
		CacheDuration:     b.store.TTL(cache.CategoryFullContext),
		HasCachedData:     valid,
		TotalEntries:      storeStats.TotalEntries,
		TotalSizeBytes:    storeStats.TotalSizeBytes,
		EntriesByCategory: make(map[string]int, len(storeStats.EntriesByCategory)),
	}
	for cat, n := range storeStats.EntriesByCategory {
		stats.EntriesByCategory[string(cat)] = n
	}

	b.mu.Lock()
	lastBuilt := b.lastBuilt
	b.mu.Unlock()
	if valid && !lastBuilt.IsZero() {
		age := time.Since(lastBuilt)
		stats.CacheAge = &age
	}
	return stats
}

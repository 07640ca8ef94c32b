// Package stats answers live per-table questions that are too volatile for
// the long-TTL schema cache: row counts, sizes, column cardinalities, index
// coverage, and the engine's own usage counters.
package stats

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/advisql/advisql/internal/cache"
	"github.com/advisql/advisql/internal/db"
	"github.com/advisql/advisql/internal/schema"
)

// Partitioning thresholds. A table is worth partitioning past a million
// rows; a useful partition key needs enough distinct values to spread data
// but few enough that pruning still eliminates partitions.
const (
	partitionRowThreshold = 1_000_000
	partitionKeyMinCard   = 10
	partitionKeyMaxCard   = 1000
)

// ColumnStatistics describes one column plus its cardinality.
type ColumnStatistics struct {
	Type           string  `json:"type"`
	Nullable       bool    `json:"nullable"`
	Default        *string `json:"default"`
	DistinctValues int64   `json:"distinct_values"`
}

// TableStatistics is the statistics snapshot for one table.
type TableStatistics struct {
	RowCount  int64                       `json:"row_count"`
	TableSize string                      `json:"table_size"`
	Columns   map[string]ColumnStatistics `json:"columns"`
	Indexes   []schema.Index              `json:"indexes"`
}

// PartitionAnalysis is the partition-candidacy judgment for one table.
type PartitionAnalysis struct {
	Recommended           bool   `json:"recommended"`
	Reason                string `json:"reason"`
	SuggestedPartitionKey string `json:"suggested_partition_key,omitempty"`
	EstimatedBenefit      string `json:"estimated_benefit"`
}

// Provider computes table statistics over an introspector, memoizing
// results in the shared store under the statistics category.
type Provider struct {
	intro db.Introspector
	store *cache.Store
	log   *zap.Logger
}

// NewProvider creates a statistics provider.
func NewProvider(intro db.Introspector, store *cache.Store, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{intro: intro, store: store, log: log}
}

// TableStatistics returns the statistics snapshot for a table. Individual
// statistic failures are logged and defaulted; only a failure to list the
// table's columns aborts the lookup.
func (p *Provider) TableStatistics(ctx context.Context, table string) (TableStatistics, error) {
	return cache.Memoize(p.store, cache.Key("table_statistics", table), cache.CategoryStatistics,
		func() (TableStatistics, error) {
			return p.buildTableStatistics(ctx, table)
		})
}

func (p *Provider) buildTableStatistics(ctx context.Context, table string) (TableStatistics, error) {
	stats := TableStatistics{Columns: make(map[string]ColumnStatistics)}

	columns, err := p.intro.Columns(ctx, table)
	if err != nil {
		return TableStatistics{}, err
	}
	if len(columns) == 0 {
		return TableStatistics{}, &db.NotFoundError{Table: table}
	}

	if stats.RowCount, err = p.intro.RowCount(ctx, table); err != nil {
		p.log.Warn("failed to count rows", zap.String("table", table), zap.Error(err))
		stats.RowCount = 0
	}

	if stats.TableSize, err = p.intro.TableSize(ctx, table); err != nil {
		if !errors.Is(err, db.ErrStatisticsUnavailable) {
			p.log.Warn("failed to get table size", zap.String("table", table), zap.Error(err))
		}
		stats.TableSize = ""
	}

	for name, col := range columns {
		cs := ColumnStatistics{Type: col.Type, Nullable: col.Nullable, Default: col.Default}
		distinct, err := p.intro.DistinctCount(ctx, table, name)
		if err != nil {
			p.log.Warn("failed to count distinct values",
				zap.String("table", table), zap.String("column", name), zap.Error(err))
		} else {
			cs.DistinctValues = distinct
		}
		stats.Columns[name] = cs
	}

	if stats.Indexes, err = p.intro.Indexes(ctx, table); err != nil {
		p.log.Warn("failed to get indexes", zap.String("table", table), zap.Error(err))
		stats.Indexes = nil
	}

	return stats, nil
}

// UsageStatistics returns the engine's access counters for a table. Engines
// without counters yield an empty struct and no error.
func (p *Provider) UsageStatistics(ctx context.Context, table string) (db.UsageStats, error) {
	usage, err := p.intro.UsageCounters(ctx, table)
	if errors.Is(err, db.ErrStatisticsUnavailable) {
		p.log.Debug("usage counters unavailable", zap.String("table", table))
		return db.UsageStats{}, nil
	}
	return usage, err
}

// AnalyzeForPartitioning judges whether a table would benefit from
// partitioning. Tables past the row threshold are recommended; the
// suggested key is the first column (by name order, for determinism) whose
// cardinality falls strictly between the bounds.
func (p *Provider) AnalyzeForPartitioning(ctx context.Context, table string) (PartitionAnalysis, error) {
	stats, err := p.TableStatistics(ctx, table)
	if err != nil {
		return PartitionAnalysis{}, err
	}

	analysis := PartitionAnalysis{EstimatedBenefit: "low"}
	if stats.RowCount <= partitionRowThreshold {
		return analysis, nil
	}

	analysis.Recommended = true
	analysis.Reason = "Table has more than 1 million rows"

	names := make([]string, 0, len(stats.Columns))
	for name := range stats.Columns {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		distinct := stats.Columns[name].DistinctValues
		if distinct > partitionKeyMinCard && distinct < partitionKeyMaxCard {
			analysis.SuggestedPartitionKey = name
			analysis.EstimatedBenefit = "high"
			break
		}
	}
	return analysis, nil
}

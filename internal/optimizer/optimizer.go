// Package optimizer turns a query analysis plus live table statistics into
// ranked, explainable optimization suggestions.
package optimizer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/advisql/advisql/internal/analyzer"
	"github.com/advisql/advisql/internal/stats"
)

// shardingRowThreshold is the row count past which a table is a sharding
// candidate.
const shardingRowThreshold = 10_000_000

// Kind identifies the class of a suggestion.
type Kind string

const (
	KindQueryRewrite Kind = "query_rewrite"
	KindIndex        Kind = "index"
	KindPartition    Kind = "partition"
	KindView         Kind = "view"
	KindSharding     Kind = "sharding"
)

// Impact ranks the expected payoff of applying a suggestion.
type Impact string

const (
	ImpactHigh   Impact = "high"
	ImpactMedium Impact = "medium"
	ImpactLow    Impact = "low"
)

// Suggestion is one optimization recommendation. Value object; never
// mutated after creation.
type Suggestion struct {
	Kind                 Kind     `json:"type"`
	Description          string   `json:"description"`
	Impact               Impact   `json:"impact"`
	ImplementationSteps  []string `json:"implementation_steps"`
	EstimatedImprovement string   `json:"estimated_improvement,omitempty"`
}

// StatisticsProvider is the slice of the stats provider the rules consult.
type StatisticsProvider interface {
	TableStatistics(ctx context.Context, table string) (stats.TableStatistics, error)
	AnalyzeForPartitioning(ctx context.Context, table string) (stats.PartitionAnalysis, error)
}

// Engine applies the fixed rule sequence. It holds no state beyond its
// collaborators; Suggest is pure except for statistics lookups.
type Engine struct {
	stats StatisticsProvider
	log   *zap.Logger
}

// NewEngine creates a rule engine over a statistics provider.
func NewEngine(provider StatisticsProvider, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{stats: provider, log: log}
}

// Suggest evaluates every rule in fixed order (rewrite, index, view,
// partition, sharding) and concatenates the results. The order defines
// precedence in the returned slice, not exclusivity: multiple rules may
// fire. Rules never fail; a statistics error for one table skips that
// table's contribution for that rule only.
func (e *Engine) Suggest(ctx context.Context, a *analyzer.Analysis) []Suggestion {
	suggestions := []Suggestion{}
	suggestions = append(suggestions, e.suggestRewrite(a)...)
	suggestions = append(suggestions, e.suggestIndexes(ctx, a)...)
	suggestions = append(suggestions, e.suggestViews(a)...)
	suggestions = append(suggestions, e.suggestPartitioning(ctx, a)...)
	suggestions = append(suggestions, e.suggestSharding(ctx, a)...)
	return suggestions
}

// suggestRewrite fires when a non-simple query touches no column named
// "id" anywhere, taken as a sign it lacks selective filtering.
func (e *Engine) suggestRewrite(a *analyzer.Analysis) []Suggestion {
	if a.Complexity == analyzer.Simple {
		return nil
	}
	for _, columns := range a.ColumnsAccessed {
		for _, col := range columns {
			if strings.EqualFold(col, "id") {
				return nil
			}
		}
	}
	return []Suggestion{{
		Kind:                 KindQueryRewrite,
		Description:          "Consider adding more selective WHERE clauses to reduce scanned rows.",
		Impact:               ImpactHigh,
		ImplementationSteps:  []string{"Add WHERE clauses to filter data as early as possible."},
		EstimatedImprovement: "Can significantly reduce query execution time.",
	}}
}

// suggestIndexes proposes an index for every accessed column not covered
// by an existing index. Columns grouped under the unknown sentinel are
// skipped: there is no table to index.
func (e *Engine) suggestIndexes(ctx context.Context, a *analyzer.Analysis) []Suggestion {
	var suggestions []Suggestion

	tables := make([]string, 0, len(a.ColumnsAccessed))
	for table := range a.ColumnsAccessed {
		if table != analyzer.UnknownTable {
			tables = append(tables, table)
		}
	}
	sort.Strings(tables)

	for _, table := range tables {
		tableStats, err := e.stats.TableStatistics(ctx, table)
		if err != nil {
			e.log.Warn("skipping index rule for table",
				zap.String("table", table), zap.Error(err))
			continue
		}
		indexed := make(map[string]bool)
		for _, idx := range tableStats.Indexes {
			for _, col := range idx.Columns {
				indexed[col] = true
			}
		}

		suggested := make(map[string]bool)
		for _, col := range a.ColumnsAccessed[table] {
			if indexed[col] || suggested[col] {
				continue
			}
			suggested[col] = true
			suggestions = append(suggestions, Suggestion{
				Kind:        KindIndex,
				Description: fmt.Sprintf("Consider creating an index on %s(%s) for faster lookups.", table, col),
				Impact:      ImpactMedium,
				ImplementationSteps: []string{
					fmt.Sprintf("CREATE INDEX idx_%s_%s ON %s(%s);", table, col, table, col),
				},
				EstimatedImprovement: "Improves query performance for lookups and joins.",
			})
		}
	}
	return suggestions
}

func (e *Engine) suggestViews(a *analyzer.Analysis) []Suggestion {
	if a.Complexity != analyzer.Complex {
		return nil
	}
	return []Suggestion{{
		Kind:                 KindView,
		Description:          "Consider creating a materialized view for this complex query.",
		Impact:               ImpactMedium,
		ImplementationSteps:  []string{"CREATE MATERIALIZED VIEW ... AS <your query>"},
		EstimatedImprovement: "Reduces computation for repetitive complex queries.",
	}}
}

func (e *Engine) suggestPartitioning(ctx context.Context, a *analyzer.Analysis) []Suggestion {
	var suggestions []Suggestion
	for _, table := range a.TablesUsed {
		analysis, err := e.stats.AnalyzeForPartitioning(ctx, table)
		if err != nil {
			e.log.Warn("skipping partition rule for table",
				zap.String("table", table), zap.Error(err))
			continue
		}
		if !analysis.Recommended {
			continue
		}

		s := Suggestion{
			Kind:                 KindPartition,
			Impact:               ImpactHigh,
			EstimatedImprovement: "Improves query performance and manageability for large tables.",
		}
		if key := analysis.SuggestedPartitionKey; key != "" {
			s.Description = fmt.Sprintf("Table %s is large. Consider partitioning by %s.", table, key)
			s.ImplementationSteps = []string{
				fmt.Sprintf("ALTER TABLE %s PARTITION BY RANGE (%s);", table, key),
			}
		} else {
			s.Description = fmt.Sprintf("Table %s is large. Consider range partitioning.", table)
			s.ImplementationSteps = []string{
				"Choose a partition key with moderate cardinality and apply PARTITION BY RANGE.",
			}
		}
		suggestions = append(suggestions, s)
	}
	return suggestions
}

func (e *Engine) suggestSharding(ctx context.Context, a *analyzer.Analysis) []Suggestion {
	var suggestions []Suggestion
	for _, table := range a.TablesUsed {
		tableStats, err := e.stats.TableStatistics(ctx, table)
		if err != nil {
			e.log.Warn("skipping sharding rule for table",
				zap.String("table", table), zap.Error(err))
			continue
		}
		if tableStats.RowCount <= shardingRowThreshold {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			Kind:                 KindSharding,
			Description:          fmt.Sprintf("Table %s is extremely large. Consider sharding across multiple servers.", table),
			Impact:               ImpactHigh,
			ImplementationSteps:  []string{"Implement sharding logic in your application or use a sharding extension."},
			EstimatedImprovement: "Improves scalability and performance for massive datasets.",
		})
	}
	return suggestions
}

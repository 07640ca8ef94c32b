package optimizer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/advisql/advisql/internal/analyzer"
	"github.com/advisql/advisql/internal/schema"
	"github.com/advisql/advisql/internal/stats"
)

// fakeStats scripts per-table statistics and partition analyses.
type fakeStats struct {
	tables     map[string]stats.TableStatistics
	partitions map[string]stats.PartitionAnalysis
	errs       map[string]error
}

func (f *fakeStats) TableStatistics(ctx context.Context, table string) (stats.TableStatistics, error) {
	if err := f.errs[table]; err != nil {
		return stats.TableStatistics{}, err
	}
	return f.tables[table], nil
}

func (f *fakeStats) AnalyzeForPartitioning(ctx context.Context, table string) (stats.PartitionAnalysis, error) {
	if err := f.errs[table]; err != nil {
		return stats.PartitionAnalysis{}, err
	}
	return f.partitions[table], nil
}

func kinds(suggestions []Suggestion) []Kind {
	out := make([]Kind, len(suggestions))
	for i, s := range suggestions {
		out[i] = s.Kind
	}
	return out
}

func TestRewriteRule(t *testing.T) {
	e := NewEngine(&fakeStats{}, zaptest.NewLogger(t))

	tests := []struct {
		name string
		a    *analyzer.Analysis
		want bool
	}{
		{
			name: "simple query never fires",
			a:    &analyzer.Analysis{Complexity: analyzer.Simple, ColumnsAccessed: map[string][]string{"unknown": {"name"}}},
			want: false,
		},
		{
			name: "moderate without id fires",
			a:    &analyzer.Analysis{Complexity: analyzer.Moderate, ColumnsAccessed: map[string][]string{"unknown": {"name"}}},
			want: true,
		},
		{
			name: "id column suppresses, case-insensitive",
			a:    &analyzer.Analysis{Complexity: analyzer.Complex, ColumnsAccessed: map[string][]string{"o": {"ID"}}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.suggestRewrite(tt.a)
			if tt.want {
				require.Len(t, got, 1)
				assert.Equal(t, KindQueryRewrite, got[0].Kind)
				assert.Equal(t, ImpactHigh, got[0].Impact)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestIndexRule(t *testing.T) {
	provider := &fakeStats{tables: map[string]stats.TableStatistics{
		"orders": {Indexes: []schema.Index{{Name: "idx_orders_status", Columns: []string{"status"}}}},
	}}
	e := NewEngine(provider, zaptest.NewLogger(t))

	a := &analyzer.Analysis{ColumnsAccessed: map[string][]string{
		"orders":  {"status", "region", "region"},
		"unknown": {"whatever"},
	}}

	got := e.suggestIndexes(context.Background(), a)
	require.Len(t, got, 1, "covered and sentinel columns are skipped, duplicates collapse")
	assert.Equal(t, KindIndex, got[0].Kind)
	assert.Equal(t, ImpactMedium, got[0].Impact)
	assert.Equal(t, []string{"CREATE INDEX idx_orders_region ON orders(region);"}, got[0].ImplementationSteps)
}

func TestIndexRuleSkipsFailingTable(t *testing.T) {
	provider := &fakeStats{
		tables: map[string]stats.TableStatistics{"customers": {}},
		errs:   map[string]error{"orders": errors.New("down")},
	}
	e := NewEngine(provider, zaptest.NewLogger(t))

	a := &analyzer.Analysis{ColumnsAccessed: map[string][]string{
		"orders":    {"status"},
		"customers": {"name"},
	}}

	got := e.suggestIndexes(context.Background(), a)
	require.Len(t, got, 1, "the failing table is skipped, the healthy one still contributes")
	assert.Contains(t, got[0].Description, "customers(name)")
}

func TestPartitionRule(t *testing.T) {
	provider := &fakeStats{partitions: map[string]stats.PartitionAnalysis{
		"orders": {
			Recommended:           true,
			Reason:                "Table has more than 1 million rows",
			SuggestedPartitionKey: "region",
			EstimatedBenefit:      "high",
		},
		"customers": {EstimatedBenefit: "low"},
	}}
	e := NewEngine(provider, zaptest.NewLogger(t))

	a := &analyzer.Analysis{TablesUsed: []string{"orders", "customers"}}
	got := e.suggestPartitioning(context.Background(), a)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Description, "partitioning by region")
	assert.Equal(t, []string{"ALTER TABLE orders PARTITION BY RANGE (region);"}, got[0].ImplementationSteps)
}

func TestShardingRule(t *testing.T) {
	provider := &fakeStats{tables: map[string]stats.TableStatistics{
		"orders":    {RowCount: 50_000_000},
		"customers": {RowCount: 10_000_000},
	}}
	e := NewEngine(provider, zaptest.NewLogger(t))

	a := &analyzer.Analysis{TablesUsed: []string{"orders", "customers"}}
	got := e.suggestSharding(context.Background(), a)
	require.Len(t, got, 1, "threshold is strictly greater than ten million")
	assert.Contains(t, got[0].Description, "orders")
}

func TestSuggestOrderAndConcatenation(t *testing.T) {
	provider := &fakeStats{
		tables: map[string]stats.TableStatistics{
			"orders": {RowCount: 50_000_000},
		},
		partitions: map[string]stats.PartitionAnalysis{
			"orders": {Recommended: true, SuggestedPartitionKey: "region"},
		},
	}
	e := NewEngine(provider, zaptest.NewLogger(t))

	a := &analyzer.Analysis{
		TablesUsed:      []string{"orders"},
		ColumnsAccessed: map[string][]string{"orders": {"status"}},
		Complexity:      analyzer.Complex,
	}

	got := e.Suggest(context.Background(), a)
	assert.Equal(t, []Kind{KindQueryRewrite, KindIndex, KindView, KindPartition, KindSharding}, kinds(got))
}

func TestSuggestNeverNil(t *testing.T) {
	e := NewEngine(&fakeStats{}, zaptest.NewLogger(t))
	got := e.Suggest(context.Background(), &analyzer.Analysis{Complexity: analyzer.Simple})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

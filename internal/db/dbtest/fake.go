// Package dbtest provides an in-memory Introspector for tests that need
// schema and statistics without a live database.
package dbtest

import (
	"context"
	"sort"

	"github.com/advisql/advisql/internal/db"
)

// Table is the scripted introspection result for one table.
type Table struct {
	Columns     map[string]db.Column
	Indexes     []db.Index
	PrimaryKeys []string
	ForeignKeys []db.ForeignKey
	RowCount    int64
	Comment     string
	Samples     []map[string]any
	Size        string
	Distinct    map[string]int64
	Usage       *db.UsageStats
}

// Fake is a scriptable Introspector. Tables hold the results to return;
// Errors forces a specific operation to fail, keyed as "op" or "op:table"
// (for example "rowcount:orders" or "tablenames").
type Fake struct {
	Tables map[string]Table
	Errors map[string]error
}

var _ db.Introspector = (*Fake)(nil)

func (f *Fake) fail(keys ...string) error {
	for _, k := range keys {
		if err, ok := f.Errors[k]; ok {
			return err
		}
	}
	return nil
}

func (f *Fake) TableNames(ctx context.Context) ([]string, error) {
	if err := f.fail("tablenames"); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(f.Tables))
	for name := range f.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *Fake) Columns(ctx context.Context, table string) (map[string]db.Column, error) {
	if err := f.fail("columns:"+table, "columns"); err != nil {
		return nil, err
	}
	return f.Tables[table].Columns, nil
}

func (f *Fake) Indexes(ctx context.Context, table string) ([]db.Index, error) {
	if err := f.fail("indexes:"+table, "indexes"); err != nil {
		return nil, err
	}
	return f.Tables[table].Indexes, nil
}

func (f *Fake) PrimaryKey(ctx context.Context, table string) ([]string, error) {
	if err := f.fail("primarykey:"+table, "primarykey"); err != nil {
		return nil, err
	}
	return f.Tables[table].PrimaryKeys, nil
}

func (f *Fake) ForeignKeys(ctx context.Context, table string) ([]db.ForeignKey, error) {
	if err := f.fail("foreignkeys:"+table, "foreignkeys"); err != nil {
		return nil, err
	}
	return f.Tables[table].ForeignKeys, nil
}

func (f *Fake) RowCount(ctx context.Context, table string) (int64, error) {
	if err := f.fail("rowcount:"+table, "rowcount"); err != nil {
		return 0, err
	}
	return f.Tables[table].RowCount, nil
}

func (f *Fake) TableComment(ctx context.Context, table string) (string, error) {
	if err := f.fail("comment:"+table, "comment"); err != nil {
		return "", err
	}
	return f.Tables[table].Comment, nil
}

func (f *Fake) SampleRows(ctx context.Context, table string, limit int) ([]map[string]any, error) {
	if err := f.fail("samples:"+table, "samples"); err != nil {
		return nil, err
	}
	samples := f.Tables[table].Samples
	if len(samples) > limit {
		samples = samples[:limit]
	}
	return samples, nil
}

func (f *Fake) TableSize(ctx context.Context, table string) (string, error) {
	if err := f.fail("size:"+table, "size"); err != nil {
		return "", err
	}
	t := f.Tables[table]
	if t.Size == "" {
		return "", db.ErrStatisticsUnavailable
	}
	return t.Size, nil
}

func (f *Fake) DistinctCount(ctx context.Context, table, column string) (int64, error) {
	if err := f.fail("distinct:"+table, "distinct"); err != nil {
		return 0, err
	}
	return f.Tables[table].Distinct[column], nil
}

func (f *Fake) UsageCounters(ctx context.Context, table string) (db.UsageStats, error) {
	if err := f.fail("usage:"+table, "usage"); err != nil {
		return db.UsageStats{}, err
	}
	t := f.Tables[table]
	if t.Usage == nil {
		return db.UsageStats{}, db.ErrStatisticsUnavailable
	}
	return *t.Usage, nil
}

func (f *Fake) Ping(ctx context.Context) error { return f.fail("ping") }

func (f *Fake) Close() error { return nil }

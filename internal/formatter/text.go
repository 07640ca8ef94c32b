// Package formatter renders the database context as human-readable text
// or markdown. The markdown form doubles as the schema serialization sent
// to the advisory oracle.
package formatter

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/advisql/advisql/internal/schema"
)

// TextFormatter writes a compact text summary of the database context.
type TextFormatter struct {
	writer io.Writer
}

// NewTextFormatter creates a new text formatter.
func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{writer: w}
}

// Format writes the summary, tables sorted by name.
func (f *TextFormatter) Format(ctx *schema.DatabaseContext) error {
	_, _ = fmt.Fprintln(f.writer, "Database Schema Summary:")
	_, _ = fmt.Fprintln(f.writer)

	for _, name := range sortedTables(ctx) {
		info := ctx.Tables[name]
		_, _ = fmt.Fprintf(f.writer, "Table: %s\n", name)
		_, _ = fmt.Fprintf(f.writer, "  Rows: %d\n", info.RowCount)
		_, _ = fmt.Fprintf(f.writer, "  Columns: %s\n", strings.Join(sortedColumns(info), ", "))

		if len(info.PrimaryKeys) > 0 {
			_, _ = fmt.Fprintf(f.writer, "  Primary Key: %s\n", strings.Join(info.PrimaryKeys, ", "))
		}
		if len(info.ForeignKeys) > 0 {
			_, _ = fmt.Fprintf(f.writer, "  Foreign Keys: %d\n", len(info.ForeignKeys))
		}
		if len(ctx.Relationships[name]) > 0 {
			for _, rel := range ctx.Relationships[name] {
				_, _ = fmt.Fprintf(f.writer, "  %s %s (%s)\n",
					relationArrow(rel.Kind), rel.Table, strings.Join(rel.Columns, ", "))
			}
		}
		_, _ = fmt.Fprintln(f.writer)
	}

	_, _ = fmt.Fprintf(f.writer, "Totals: %d tables, %d columns, %d indexes, %d foreign keys\n",
		ctx.Statistics.TotalTables, ctx.Statistics.TotalColumns,
		ctx.Statistics.TotalIndexes, ctx.Statistics.TotalForeignKeys)
	return nil
}

func relationArrow(kind schema.RelationshipKind) string {
	if kind == schema.RelationReferences {
		return "references"
	}
	return "referenced by"
}

func sortedTables(ctx *schema.DatabaseContext) []string {
	names := make([]string, 0, len(ctx.Tables))
	for name := range ctx.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedColumns(info schema.TableInfo) []string {
	names := make([]string, 0, len(info.Columns))
	for name := range info.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

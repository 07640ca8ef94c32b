package formatter

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/advisql/advisql/internal/schema"
)

// MarkdownFormatter writes the database context as markdown, one section
// per table with a column table and relationship lists.
type MarkdownFormatter struct {
	writer io.Writer
}

// NewMarkdownFormatter creates a new markdown formatter.
func NewMarkdownFormatter(w io.Writer) *MarkdownFormatter {
	return &MarkdownFormatter{writer: w}
}

// Format writes the context in markdown format, tables sorted by name.
func (f *MarkdownFormatter) Format(ctx *schema.DatabaseContext) error {
	_, _ = fmt.Fprintln(f.writer, "# Database Schema")
	_, _ = fmt.Fprintln(f.writer)

	for _, name := range sortedTables(ctx) {
		f.formatTable(name, ctx.Tables[name], ctx.Relationships[name])
	}
	return nil
}

func (f *MarkdownFormatter) formatTable(name string, info schema.TableInfo, rels []schema.Relationship) {
	_, _ = fmt.Fprintf(f.writer, "## %s\n\n", name)
	if info.Description != "" {
		_, _ = fmt.Fprintf(f.writer, "%s\n\n", info.Description)
	}
	_, _ = fmt.Fprintf(f.writer, "Rows: %d\n\n", info.RowCount)

	_, _ = fmt.Fprintln(f.writer, "| Column | Type | Nullable | Default |")
	_, _ = fmt.Fprintln(f.writer, "|--------|------|----------|---------|")
	cols := make([]string, 0, len(info.Columns))
	for col := range info.Columns {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		c := info.Columns[col]
		def := ""
		if c.Default != nil {
			def = *c.Default
		}
		_, _ = fmt.Fprintf(f.writer, "| %s | %s | %t | %s |\n", col, c.Type, c.Nullable, def)
	}
	_, _ = fmt.Fprintln(f.writer)

	if len(info.PrimaryKeys) > 0 {
		_, _ = fmt.Fprintf(f.writer, "Primary key: %s\n\n", strings.Join(info.PrimaryKeys, ", "))
	}
	if len(info.Indexes) > 0 {
		_, _ = fmt.Fprintln(f.writer, "Indexes:")
		for _, idx := range info.Indexes {
			unique := ""
			if idx.Unique {
				unique = " (unique)"
			}
			_, _ = fmt.Fprintf(f.writer, "- %s on (%s)%s\n", idx.Name, strings.Join(idx.Columns, ", "), unique)
		}
		_, _ = fmt.Fprintln(f.writer)
	}
	if len(rels) > 0 {
		_, _ = fmt.Fprintln(f.writer, "Relationships:")
		for _, rel := range rels {
			_, _ = fmt.Fprintf(f.writer, "- %s %s via (%s)\n",
				relationArrow(rel.Kind), rel.Table, strings.Join(rel.Columns, ", "))
		}
		_, _ = fmt.Fprintln(f.writer)
	}
}

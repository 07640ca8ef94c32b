package formatter

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advisql/advisql/internal/schema"
)

func sampleContext() *schema.DatabaseContext {
	return &schema.DatabaseContext{
		Tables: map[string]schema.TableInfo{
			"orders": {
				Columns: map[string]schema.Column{
					"id":          {Type: "integer"},
					"customer_id": {Type: "integer"},
				},
				PrimaryKeys: []string{"id"},
				ForeignKeys: []schema.ForeignKey{{
					ConstrainedColumns: []string{"customer_id"},
					ReferredTable:      "customers",
					ReferredColumns:    []string{"id"},
				}},
				Indexes:     []schema.Index{{Name: "idx_orders_customer", Columns: []string{"customer_id"}}},
				RowCount:    42,
				Description: "Order headers",
			},
			"customers": {
				Columns:     map[string]schema.Column{"id": {Type: "integer"}},
				PrimaryKeys: []string{"id"},
				RowCount:    7,
			},
		},
		Relationships: map[string][]schema.Relationship{
			"orders": {{
				Kind:    schema.RelationReferences,
				Table:   "customers",
				Columns: []string{"customer_id"},
			}},
			"customers": {{
				Kind:    schema.RelationReferencedBy,
				Table:   "orders",
				Columns: []string{"customer_id"},
			}},
		},
		Statistics: schema.DatabaseStatistics{
			TotalTables:      2,
			TotalColumns:     3,
			TotalIndexes:     1,
			TotalForeignKeys: 1,
		},
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTextFormatter(&buf).Format(sampleContext()))
	out := buf.String()

	assert.Contains(t, out, "Table: orders")
	assert.Contains(t, out, "Rows: 42")
	assert.Contains(t, out, "Primary Key: id")
	assert.Contains(t, out, "references customers (customer_id)")
	assert.Contains(t, out, "Totals: 2 tables, 3 columns, 1 indexes, 1 foreign keys")
	// Sorted by table name: customers before orders.
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("Table: customers")),
		bytes.Index(buf.Bytes(), []byte("Table: orders")))
}

func TestMarkdownFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewMarkdownFormatter(&buf).Format(sampleContext()))
	out := buf.String()

	assert.Contains(t, out, "# Database Schema")
	assert.Contains(t, out, "## orders")
	assert.Contains(t, out, "Order headers")
	assert.Contains(t, out, "| customer_id | integer | false |  |")
	assert.Contains(t, out, "- idx_orders_customer on (customer_id)")
	assert.Contains(t, out, "- references customers via (customer_id)")
}

func TestFormatDeterministic(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, NewMarkdownFormatter(&a).Format(sampleContext()))
	require.NoError(t, NewMarkdownFormatter(&b).Format(sampleContext()))
	assert.Equal(t, a.String(), b.String())
}

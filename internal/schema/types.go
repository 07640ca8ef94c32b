// Package schema holds the database structure model and the context builder
// that assembles it from live introspection.
package schema

import (
	"time"

	"github.com/advisql/advisql/internal/db"
)

// The row-shaped value types live in the db package, next to the
// introspectors that produce them. Aliased here so the context model reads
// as one vocabulary.
type (
	// Column describes one table column.
	Column = db.Column
	// Index describes a secondary index on a table.
	Index = db.Index
	// ForeignKey describes a foreign key constraint.
	ForeignKey = db.ForeignKey
)

// TableInfo is the full structural description of one table.
type TableInfo struct {
	Columns     map[string]Column `json:"columns"`
	Indexes     []Index           `json:"indexes"`
	PrimaryKeys []string          `json:"primary_keys"`
	ForeignKeys []ForeignKey      `json:"foreign_keys"`
	RowCount    int64             `json:"row_count"`
	Description string            `json:"description"`
}

// RelationshipKind distinguishes the two directions of a foreign key edge.
type RelationshipKind string

const (
	RelationReferences   RelationshipKind = "references"
	RelationReferencedBy RelationshipKind = "referenced_by"
)

// Relationship is one directional edge between two tables. Each foreign key
// produces two edges, one per direction, so every table's relationship list
// is self-contained.
type Relationship struct {
	Kind            RelationshipKind `json:"type"`
	Table           string           `json:"table"`
	Columns         []string         `json:"columns"`
	ReferredColumns []string         `json:"referred_columns"`
}

// Constraint is a primary or foreign key constraint in the flattened
// constraints view of the context.
type Constraint struct {
	Kind            string   `json:"type"`
	Columns         []string `json:"columns"`
	ReferredTable   string   `json:"referred_table,omitempty"`
	ReferredColumns []string `json:"referred_columns,omitempty"`
}

// DatabaseStatistics aggregates whole-database counts.
type DatabaseStatistics struct {
	TotalTables      int `json:"total_tables"`
	TotalColumns     int `json:"total_columns"`
	TotalIndexes     int `json:"total_indexes"`
	TotalForeignKeys int `json:"total_foreign_keys"`
}

// DatabaseContext is the complete snapshot handed to the rule engine and to
// LLM prompting. It is cached and invalidated as a single unit.
type DatabaseContext struct {
	Tables        map[string]TableInfo        `json:"tables"`
	Relationships map[string][]Relationship   `json:"relationships"`
	SampleData    map[string][]map[string]any `json:"sample_data"`
	Constraints   map[string][]Constraint     `json:"constraints"`
	Statistics    DatabaseStatistics          `json:"statistics"`
}

// CacheStats reports the state of the context cache for observability.
type CacheStats struct {
	CacheValid        bool           `json:"cache_valid"`
	CacheAge          *time.Duration `json:"cache_age,omitempty"`
	CacheDuration     time.Duration  `json:"cache_duration"`
	HasCachedData     bool           `json:"has_cached_data"`
	TotalEntries      int            `json:"total_entries"`
	TotalSizeBytes    int            `json:"total_size_bytes"`
	EntriesByCategory map[string]int `json:"entries_by_category"`
}

// Package analyzer extracts structural facts from SQL text without
// executing it: tables, per-table column usage, join topology, and a
// complexity classification with a heuristic cost score.
package analyzer

import (
	"fmt"

	"github.com/xwb1989/sqlparser"
)

// UnknownTable groups column references that carry no table qualifier.
// The sentinel is kept even for single-table queries where the owner is
// unambiguous: inferring it would silently change suggestion output.
const UnknownTable = "unknown"

// Complexity classifies a query by its join/subquery/aggregate count.
type Complexity string

const (
	Simple   Complexity = "simple"
	Moderate Complexity = "moderate"
	Complex  Complexity = "complex"
)

// Cost model weights. The result is a dimensionless heuristic, not a time
// unit, and is deliberately not calibrated against any real cost model.
const (
	baseCost      = 1.0
	joinCost      = 2.0
	subqueryCost  = 3.0
	aggregateCost = 1.5
)

// ParseError reports SQL text that failed to parse. The parser diagnostic
// is preserved verbatim; no partial analysis is attempted.
type ParseError struct {
	SQL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse query: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Analysis is the structural summary of one query. It is immutable once
// built and a pure function of the query text.
type Analysis struct {
	// TablesUsed lists every referenced table once, in encounter order.
	TablesUsed []string `json:"tables_used"`
	// ColumnsAccessed maps the qualifier as written (or UnknownTable) to
	// column names in encounter order, duplicates preserved: a column
	// referenced twice appears twice.
	ColumnsAccessed map[string][]string `json:"columns_accessed"`
	Complexity      Complexity          `json:"query_complexity"`
	EstimatedCost   float64             `json:"estimated_cost"`

	JoinCount      int `json:"join_count"`
	SubqueryCount  int `json:"subquery_count"`
	AggregateCount int `json:"aggregate_count"`
}

// Analyze parses sql and derives its structural analysis. Malformed SQL
// yields a *ParseError.
func Analyze(sql string) (*Analysis, error) {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return nil, &ParseError{SQL: sql, Err: err}
	}

	a := &Analysis{
		TablesUsed:      []string{},
		ColumnsAccessed: map[string][]string{},
	}
	seenTables := map[string]bool{}

	addTable := func(name string) {
		if name == "" || seenTables[name] {
			return
		}
		seenTables[name] = true
		a.TablesUsed = append(a.TablesUsed, name)
	}

	// A single depth-first traversal keeps encounter order deterministic,
	// which makes Analyze idempotent for identical text.
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch n := node.(type) {
		case *sqlparser.AliasedTableExpr:
			if tn, ok := n.Expr.(sqlparser.TableName); ok {
				addTable(tn.Name.String())
			}
		case *sqlparser.Insert:
			addTable(n.Table.Name.String())
		case *sqlparser.ColName:
			owner := n.Qualifier.Name.String()
			if owner == "" {
				owner = UnknownTable
			}
			a.ColumnsAccessed[owner] = append(a.ColumnsAccessed[owner], n.Name.String())
			// Do not descend: the qualifier would otherwise surface as a
			// table reference.
			return false, nil
		case *sqlparser.JoinTableExpr:
			a.JoinCount++
		case *sqlparser.Subquery:
			a.SubqueryCount++
		case *sqlparser.FuncExpr:
			if n.IsAggregate() {
				a.AggregateCount++
			}
		case *sqlparser.GroupConcatExpr:
			a.AggregateCount++
		}
		return true, nil
	}, stmt)

	a.Complexity = classify(a.JoinCount + a.SubqueryCount + a.AggregateCount)
	a.EstimatedCost = baseCost +
		float64(a.JoinCount)*joinCost +
		float64(a.SubqueryCount)*subqueryCost +
		float64(a.AggregateCount)*aggregateCost
	return a, nil
}

func classify(score int) Complexity {
	switch {
	case score <= 2:
		return Simple
	case score <= 5:
		return Moderate
	default:
		return Complex
	}
}

package analysis

import (
	"strings"

	"github.com/ekaya-inc/querypatrol/pkg/relations"
	"github.com/ekaya-inc/querypatrol/pkg/sqlscan"
)

// Classifier decides whether a join multiplies rows. It is stateless; all
// schema knowledge comes from the relation facts passed per call.
type Classifier struct{}

// NewClassifier returns a join classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// IsCollectionJoin reports whether following the join from one row of the
// FROM table can yield multiple joined rows (one-to-many or many-to-many
// shape). Decision order:
//
//  1. The ON pair equates the joined table's primary key with anything:
//     each from-row matches at most one joined row, so the join is scalar.
//  2. The ON pair equates the FROM table's primary key with a non-key
//     column of a known joined table: the foreign key lives on the joined
//     side, so one from-row fans out. Collection.
//  3. The ON pair is missing or cannot be oriented: consult declared
//     associations targeting the joined table. An association owned by
//     the FROM table decides directly; otherwise any collection-
//     cardinality association targeting the joined table classifies it as
//     collection. Two associations targeting one table with different
//     cardinalities therefore resolve to the fan-out reading.
//
// Empty or nil facts classify every join as scalar, so detectors that
// need collection joins degrade to silence instead of guessing.
func (c *Classifier) IsCollectionJoin(join sqlscan.JoinDescriptor, from sqlscan.TableRef, facts *relations.Facts) bool {
	if facts.Empty() {
		return false
	}

	if fromCol, joinedCol, ok := orientOnPair(join, from); ok {
		if facts.IsPrimaryKey(join.Table, joinedCol) {
			return false
		}
		if facts.IsPrimaryKey(from.Table, fromCol) && facts.HasTable(join.Table) {
			return true
		}
	}

	sawCollection := false
	for _, a := range facts.AssociationsTargeting(join.Table) {
		if tableMatches(a.OwningTable, from.Table, from.Alias) {
			return a.Cardinality.IsCollection()
		}
		if a.Cardinality.IsCollection() {
			sawCollection = true
		}
	}
	return sawCollection
}

// orientOnPair resolves the join's ON column pair against the FROM table
// and the joined table, returning the column belonging to each side.
// ok is false when either side is unqualified or neither orientation
// matches the two tables.
func orientOnPair(join sqlscan.JoinDescriptor, from sqlscan.TableRef) (fromCol, joinedCol string, ok bool) {
	lq, lc, okL := splitColumnRef(join.OnLeft)
	rq, rc, okR := splitColumnRef(join.OnRight)
	if !okL || !okR {
		return "", "", false
	}

	switch {
	case tableMatches(lq, from.Table, from.Alias) && tableMatches(rq, join.Table, join.Alias):
		return lc, rc, true
	case tableMatches(rq, from.Table, from.Alias) && tableMatches(lq, join.Table, join.Alias):
		return rc, lc, true
	}
	return "", "", false
}

// splitColumnRef splits "o.customer_id" into qualifier and column.
func splitColumnRef(ref string) (qualifier, column string, ok bool) {
	idx := strings.LastIndex(ref, ".")
	if idx <= 0 || idx == len(ref)-1 {
		return "", "", false
	}
	return ref[:idx], ref[idx+1:], true
}

// tableMatches reports whether a column qualifier refers to the given
// table, by alias, full name, or bare name without schema prefix.
func tableMatches(qualifier, table, alias string) bool {
	if qualifier == "" {
		return false
	}
	if alias != "" && strings.EqualFold(qualifier, alias) {
		return true
	}
	if strings.EqualFold(qualifier, table) {
		return true
	}
	return strings.EqualFold(stripSchema(qualifier), stripSchema(table))
}

// stripSchema drops a leading schema qualifier from a table name.
func stripSchema(table string) string {
	if idx := strings.LastIndex(table, "."); idx >= 0 {
		return table[idx+1:]
	}
	return table
}

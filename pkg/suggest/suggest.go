// Package suggest renders remediation hints for finding kinds. Each kind
// has a template producing a short code sample plus prose; rendering is
// deterministic so reports stay diffable across runs.
package suggest

import (
	"errors"
	"fmt"

	"github.com/ekaya-inc/querypatrol/pkg/models"
)

// ErrUnknownKind is returned when no template exists for a finding kind.
// Callers treat it as a soft failure: the finding ships without a
// suggestion.
var ErrUnknownKind = errors.New("unknown finding kind")

// Catalog maps finding kinds to remediation templates.
type Catalog struct{}

// NewCatalog returns the built-in suggestion catalog.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// Render produces the remediation pair for a finding kind. The context
// map carries flat presentation values; "table" and "statement" are the
// keys templates use, and both are optional.
func (c *Catalog) Render(kind string, context map[string]string) (models.Suggestion, error) {
	tpl, ok := templates[kind]
	if !ok {
		return models.Suggestion{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return tpl(values{context}), nil
}

// values wraps the context map with fallback lookup.
type values struct {
	m map[string]string
}

func (v values) get(key, fallback string) string {
	if s := v.m[key]; s != "" {
		return s
	}
	return fallback
}

var templates = map[string]func(values) models.Suggestion{
	models.KindRepeatedStatement: func(v values) models.Suggestion {
		table := v.get("table", "children")
		return models.Suggestion{
			Code: fmt.Sprintf("SELECT * FROM %s WHERE parent_id = ANY(:parent_ids)", table),
			Description: "Collect the parent keys first and load all " + table +
				" rows in one statement, then group them in memory. One round trip replaces N.",
		}
	},
	models.KindUnusedJoin: func(v values) models.Suggestion {
		return models.Suggestion{
			Code: "-- drop the join, or reference its columns:\nSELECT parent.*, joined.needed_column FROM ...",
			Description: "Remove the join if its rows are not needed, or add the columns that were " +
				"meant to come from it. If the join exists only to filter, keep it and add a WHERE predicate that uses it.",
		}
	},
	models.KindOverEagerJoin: func(v values) models.Suggestion {
		table := v.get("table", "parents")
		return models.Suggestion{
			Code: fmt.Sprintf("SELECT * FROM %s WHERE ...;\nSELECT * FROM child_a WHERE parent_id = ANY(:ids);\nSELECT * FROM child_b WHERE parent_id = ANY(:ids);", table),
			Description: "Load each collection in its own statement keyed by the parent ids. " +
				"Two small result sets are cheaper than one cartesian product of both collections.",
		}
	},
	models.KindUnsafeLimitCollectionJoin: func(v values) models.Suggestion {
		table := v.get("table", "parents")
		return models.Suggestion{
			Code: fmt.Sprintf("SELECT p.*, c.* FROM (SELECT * FROM %s ORDER BY id LIMIT 10) p JOIN children c ON c.parent_id = p.id", table),
			Description: "Apply the limit to the parent set in a subquery, then join the collection " +
				"against those parents. The limit then counts parents, and no collection is cut off mid-way.",
		}
	},
	models.KindSelectStar: func(v values) models.Suggestion {
		return models.Suggestion{
			Code: "SELECT o.id, o.total, c.name FROM ...",
			Description: "Name the columns the caller actually reads. The transfer shrinks and " +
				"covering indexes become usable.",
		}
	},
	models.KindUnboundedScan: func(v values) models.Suggestion {
		return models.Suggestion{
			Code: "SELECT ... LIMIT :page_size",
			Description: "Bound the statement with a LIMIT or paginate. Result size otherwise " +
				"grows with the table.",
		}
	},
	models.KindOrderedScanWithoutLimit: func(v values) models.Suggestion {
		return models.Suggestion{
			Code: "SELECT ... ORDER BY created_at DESC LIMIT :page_size",
			Description: "Add a LIMIT matching what the caller consumes so the database can stop " +
				"sorting early (top-N) instead of ordering every row.",
		}
	},
	models.KindDeepOffsetPagination: func(v values) models.Suggestion {
		return models.Suggestion{
			Code: "SELECT ... WHERE (created_at, id) < (:last_seen_at, :last_seen_id) ORDER BY created_at DESC, id DESC LIMIT :page_size",
			Description: "Switch to keyset pagination: remember the last row of each page and seek " +
				"past it. Page cost stays flat no matter how deep the reader goes.",
		}
	},
	models.KindSuspiciousParameter: func(v values) models.Suggestion {
		return models.Suggestion{
			Code: "stmt, err := db.Prepare(\"SELECT ... WHERE name = $1\")",
			Description: "Pass user input only as bind parameters and validate it at the boundary. " +
				"A parameter value containing SQL syntax means some layer concatenates input into the statement.",
		}
	},
}

package relations

import (
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
)

// ForeignKey is one referential constraint column pair reported by a live
// provider. Multi-column constraints arrive as several pairs sharing a
// ConstraintName.
type ForeignKey struct {
	ConstraintName string
	Table          string
	Column         string
	RefTable       string
	RefColumn      string

	// Unique is true when the owning column carries a unique or primary
	// key index, which turns the relationship one-to-one.
	Unique bool
}

// BuildFacts assembles Facts from discovered primary keys and foreign
// keys. Each single-column foreign key yields two associations: the
// owning side (many_to_one, or one_to_one when the column is unique) and
// the reverse collection on the referenced table. Composite foreign keys
// carry no field name a query could reference, so they contribute
// nothing beyond their tables' primary keys.
func BuildFacts(primaryKeys map[string][]string, foreignKeys []ForeignKey) *Facts {
	facts := NewFacts()

	names := make([]string, 0, len(primaryKeys))
	for name := range primaryKeys {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		facts.AddTable(name, TableFacts{PrimaryKey: primaryKeys[name]})
	}

	grouped := make(map[string][]ForeignKey)
	var order []string
	for _, fk := range foreignKeys {
		key := fk.Table + "\x00" + fk.ConstraintName
		if _, seen := grouped[key]; !seen {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], fk)
	}

	for _, key := range order {
		pairs := grouped[key]
		if distinctColumns(pairs) != 1 {
			continue
		}
		fk := pairs[0]

		forward, reverse := ManyToOne, OneToMany
		if fk.Unique {
			forward, reverse = OneToOne, OneToOne
		}
		facts.AddAssociation(Association{
			OwningTable: fk.Table,
			Field:       referenceField(fk.Column, fk.RefTable),
			TargetTable: fk.RefTable,
			Cardinality: forward,
		})
		facts.AddAssociation(Association{
			OwningTable: fk.RefTable,
			Field:       collectionField(fk.Table, fk.Unique),
			TargetTable: fk.Table,
			Cardinality: reverse,
		})
	}

	return facts
}

// referenceField names the owning side of a foreign key: orders.customer_id
// becomes "customer". A column without the _id suffix falls back to the
// singular of the referenced table name.
func referenceField(column, refTable string) string {
	if trimmed := strings.TrimSuffix(column, "_id"); trimmed != column && trimmed != "" {
		return trimmed
	}
	return inflection.Singular(bareTable(refTable))
}

func collectionField(table string, unique bool) string {
	name := bareTable(table)
	if unique {
		return inflection.Singular(name)
	}
	return inflection.Plural(name)
}

func distinctColumns(pairs []ForeignKey) int {
	seen := make(map[string]struct{}, len(pairs))
	for _, fk := range pairs {
		seen[strings.ToLower(fk.Column)] = struct{}{}
	}
	return len(seen)
}

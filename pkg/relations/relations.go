// Package relations models the schema facts the analysis engine consumes:
// table primary keys and directed associations with cardinality. Facts are
// supplied by callers, loaded from YAML, or discovered from a live
// database by the provider subpackages; the engine never computes them.
package relations

import (
	"strings"
)

// Cardinality describes how many target rows an association reaches from
// one owning row.
type Cardinality string

const (
	OneToOne   Cardinality = "one_to_one"
	ManyToOne  Cardinality = "many_to_one"
	OneToMany  Cardinality = "one_to_many"
	ManyToMany Cardinality = "many_to_many"
)

// IsCollection reports whether following the association from one owning
// row can yield multiple target rows.
func (c Cardinality) IsCollection() bool {
	return c == OneToMany || c == ManyToMany
}

// IsValid reports whether c is one of the known cardinalities.
func (c Cardinality) IsValid() bool {
	switch c {
	case OneToOne, ManyToOne, OneToMany, ManyToMany:
		return true
	}
	return false
}

func (c Cardinality) String() string {
	return string(c)
}

// TableFacts holds what is known about one table.
type TableFacts struct {
	PrimaryKey []string `json:"primary_key,omitempty"`
}

// Association is a directed relationship: the owning table's field reaches
// rows of the target table with the given cardinality.
type Association struct {
	OwningTable string      `json:"owning_table" yaml:"owning_table"`
	Field       string      `json:"field" yaml:"field"`
	TargetTable string      `json:"target_table" yaml:"target_table"`
	Cardinality Cardinality `json:"cardinality" yaml:"cardinality"`
}

// Facts is the full relation picture for one analysis run. Lookups are
// case-insensitive and tolerate schema-qualified names. A nil *Facts
// behaves like empty facts, so callers without schema knowledge can pass
// nil and detectors degrade instead of failing.
type Facts struct {
	tables       map[string]TableFacts
	bareNames    map[string]string
	associations []Association
	byTarget     map[string][]Association
}

// NewFacts returns empty facts ready for Add calls.
func NewFacts() *Facts {
	return &Facts{
		tables:    make(map[string]TableFacts),
		bareNames: make(map[string]string),
		byTarget:  make(map[string][]Association),
	}
}

// AddTable records facts for a table, replacing any previous entry. A
// schema-qualified name is also findable by its bare name; when two
// schemas carry the same table name the later entry wins the bare alias.
func (f *Facts) AddTable(name string, facts TableFacts) {
	key := tableKey(name)
	f.tables[key] = facts
	if bare := bareTable(key); bare != key {
		f.bareNames[bare] = key
	}
}

// AddAssociation records a directed association. Schema-qualified targets
// are indexed under the bare table name as well.
func (f *Facts) AddAssociation(a Association) {
	f.associations = append(f.associations, a)
	key := tableKey(a.TargetTable)
	f.byTarget[key] = append(f.byTarget[key], a)
	if bare := bareTable(key); bare != key {
		f.byTarget[bare] = append(f.byTarget[bare], a)
	}
}

// Empty reports whether no facts are loaded.
func (f *Facts) Empty() bool {
	return f == nil || len(f.tables) == 0 && len(f.associations) == 0
}

// TableCount returns the number of tables with recorded facts.
func (f *Facts) TableCount() int {
	if f == nil {
		return 0
	}
	return len(f.tables)
}

// AssociationCount returns the number of recorded associations.
func (f *Facts) AssociationCount() int {
	if f == nil {
		return 0
	}
	return len(f.associations)
}

// HasTable reports whether facts exist for the named table.
func (f *Facts) HasTable(name string) bool {
	if f == nil {
		return false
	}
	_, ok := f.lookupTable(name)
	return ok
}

// PrimaryKey returns the primary key columns of the named table, or nil
// when the table is unknown.
func (f *Facts) PrimaryKey(name string) []string {
	if f == nil {
		return nil
	}
	tf, ok := f.lookupTable(name)
	if !ok {
		return nil
	}
	return tf.PrimaryKey
}

// IsPrimaryKey reports whether column is part of the named table's primary
// key. Unknown tables yield false.
func (f *Facts) IsPrimaryKey(table, column string) bool {
	column = strings.ToLower(column)
	for _, pk := range f.PrimaryKey(table) {
		if strings.ToLower(pk) == column {
			return true
		}
	}
	return false
}

// AssociationsTargeting returns all associations whose target is the named
// table. The returned slice is shared state; callers must not modify it.
func (f *Facts) AssociationsTargeting(name string) []Association {
	if f == nil {
		return nil
	}
	if as, ok := f.byTarget[tableKey(name)]; ok {
		return as
	}
	if bare := bareTable(name); bare != name {
		return f.byTarget[tableKey(bare)]
	}
	return nil
}

// Associations returns every recorded association.
func (f *Facts) Associations() []Association {
	if f == nil {
		return nil
	}
	return f.associations
}

func (f *Facts) lookupTable(name string) (TableFacts, bool) {
	key := tableKey(name)
	if tf, ok := f.tables[key]; ok {
		return tf, true
	}
	if bare := bareTable(key); bare != key {
		if tf, ok := f.tables[bare]; ok {
			return tf, true
		}
		key = bare
	}
	if full, ok := f.bareNames[key]; ok {
		tf, ok := f.tables[full]
		return tf, ok
	}
	return TableFacts{}, false
}

func tableKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// bareTable strips a schema qualifier: "public.orders" becomes "orders".
func bareTable(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

package relations

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// factsFile is the on-disk YAML shape:
//
//	tables:
//	  orders:
//	    primary_key: [id]
//	associations:
//	  - owning_table: customers
//	    field: orders
//	    target_table: orders
//	    cardinality: one_to_many
type factsFile struct {
	Tables       map[string]tableEntry `yaml:"tables"`
	Associations []Association         `yaml:"associations,omitempty"`
}

type tableEntry struct {
	PrimaryKey []string `yaml:"primary_key,omitempty"`
}

// LoadFile reads relation facts from a YAML file.
func LoadFile(path string) (*Facts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read relation facts file: %w", err)
	}
	facts, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return facts, nil
}

// Parse builds Facts from YAML. Configuration problems (unknown
// cardinality, incomplete association) fail here, before any analysis
// starts.
func Parse(data []byte) (*Facts, error) {
	var file factsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal relation facts: %w", err)
	}

	facts := NewFacts()
	for name, tf := range file.Tables {
		facts.AddTable(name, TableFacts{PrimaryKey: tf.PrimaryKey})
	}
	for i, a := range file.Associations {
		if a.OwningTable == "" || a.TargetTable == "" {
			return nil, fmt.Errorf("association %d: owning_table and target_table are required", i)
		}
		if !a.Cardinality.IsValid() {
			return nil, fmt.Errorf("association %d (%s -> %s): unknown cardinality %q",
				i, a.OwningTable, a.TargetTable, a.Cardinality)
		}
		facts.AddAssociation(a)
	}
	return facts, nil
}

// Marshal renders facts in the on-disk YAML shape. Associations are
// sorted so introspection output is stable across runs.
func Marshal(f *Facts) ([]byte, error) {
	var file factsFile
	if f != nil {
		if len(f.tables) > 0 {
			file.Tables = make(map[string]tableEntry, len(f.tables))
			for name, tf := range f.tables {
				file.Tables[name] = tableEntry{PrimaryKey: tf.PrimaryKey}
			}
		}
		file.Associations = append(file.Associations, f.associations...)
		sort.Slice(file.Associations, func(i, j int) bool {
			a, b := file.Associations[i], file.Associations[j]
			if a.OwningTable != b.OwningTable {
				return a.OwningTable < b.OwningTable
			}
			if a.Field != b.Field {
				return a.Field < b.Field
			}
			return a.TargetTable < b.TargetTable
		})
	}

	out, err := yaml.Marshal(&file)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal relation facts: %w", err)
	}
	return out, nil
}

package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/querypatrol/pkg/models"
	"github.com/ekaya-inc/querypatrol/pkg/relations"
	"github.com/ekaya-inc/querypatrol/pkg/sqlscan"
)

func rec(sql string) models.QueryRecord {
	return models.QueryRecord{SQL: sql, ExecutionTimeMs: 1.5}
}

func recParams(sql string, params map[string]any) models.QueryRecord {
	return models.QueryRecord{SQL: sql, Params: params, ExecutionTimeMs: 1.5}
}

func recRows(sql string, rows int) models.QueryRecord {
	return models.QueryRecord{SQL: sql, RowCount: &rows, ExecutionTimeMs: 1.5}
}

// newTestContext builds a DetectContext with a fresh scanner and default
// thresholds.
func newTestContext(records []models.QueryRecord, facts *relations.Facts) *DetectContext {
	sc := sqlscan.NewScanner()
	return &DetectContext{
		Records:    records,
		Groups:     buildGroups(records, sc),
		Scanner:    sc,
		Facts:      facts,
		Classifier: NewClassifier(),
		Config:     DetectorConfig{}.withDefaults(),
	}
}

// shopFacts models a small commerce schema: customers own orders, orders
// own order_items, customers have many tags.
func shopFacts() *relations.Facts {
	facts := relations.NewFacts()
	facts.AddTable("customers", relations.TableFacts{PrimaryKey: []string{"id"}})
	facts.AddTable("orders", relations.TableFacts{PrimaryKey: []string{"id"}})
	facts.AddTable("order_items", relations.TableFacts{PrimaryKey: []string{"id"}})
	facts.AddTable("tags", relations.TableFacts{PrimaryKey: []string{"id"}})

	facts.AddAssociation(relations.Association{
		OwningTable: "customers", Field: "orders",
		TargetTable: "orders", Cardinality: relations.OneToMany,
	})
	facts.AddAssociation(relations.Association{
		OwningTable: "orders", Field: "items",
		TargetTable: "order_items", Cardinality: relations.OneToMany,
	})
	facts.AddAssociation(relations.Association{
		OwningTable: "customers", Field: "tags",
		TargetTable: "tags", Cardinality: relations.ManyToMany,
	})
	facts.AddAssociation(relations.Association{
		OwningTable: "orders", Field: "customer",
		TargetTable: "customers", Cardinality: relations.ManyToOne,
	})
	return facts
}

func TestBuildGroups(t *testing.T) {
	records := []models.QueryRecord{
		recParams("SELECT * FROM orders WHERE id = 1", map[string]any{"id": 1}),
		recParams("SELECT * FROM orders WHERE id = 1", map[string]any{"id": 1}),
		recParams("SELECT * FROM orders WHERE id = 2", map[string]any{"id": 2}),
		recRows("SELECT name FROM customers", 7),
	}

	groups := buildGroups(records, sqlscan.NewScanner())
	require.Len(t, groups, 2, "literal variants must fold into one pattern group")

	orders := groups[0]
	assert.Equal(t, 3, orders.Count)
	assert.Len(t, orders.Records, 3)
	assert.InDelta(t, 4.5, orders.TotalTimeMs, 0.001)
	assert.Equal(t, 2, orders.DistinctParams, "two distinct bindings across three records")
	assert.False(t, orders.HasRowCounts)
	assert.Equal(t, records[0].SQL, orders.Representative.SQL)

	customers := groups[1]
	assert.Equal(t, 1, customers.Count)
	assert.True(t, customers.HasRowCounts)
	assert.Equal(t, 7, customers.MaxRows)
	assert.Zero(t, customers.DistinctParams)
}

func TestBuildGroups_GroupHashMatchesScanner(t *testing.T) {
	sc := sqlscan.NewScanner()
	records := []models.QueryRecord{rec("SELECT id FROM orders WHERE id = 42")}

	groups := buildGroups(records, sc)
	require.Len(t, groups, 1)
	assert.Equal(t, sc.Normalize(records[0].SQL).Hash, groups[0].Hash)
	assert.Equal(t, sc.Normalize(records[0].SQL).Canonical, groups[0].Canonical)
}

func TestDefaultDetectors(t *testing.T) {
	all := DefaultDetectors()
	require.NotEmpty(t, all)

	kinds := make(map[string]bool, len(all))
	for _, d := range all {
		kinds[d.Name()] = true
	}
	for _, want := range []string{
		models.KindRepeatedStatement,
		models.KindUnusedJoin,
		models.KindOverEagerJoin,
		models.KindUnsafeLimitCollectionJoin,
		models.KindSelectStar,
		models.KindUnboundedScan,
		models.KindOrderedScanWithoutLimit,
		models.KindDeepOffsetPagination,
		models.KindSuspiciousParameter,
	} {
		assert.True(t, kinds[want], "missing detector %s", want)
	}

	trimmed := DefaultDetectors(models.KindRepeatedStatement, models.KindSelectStar)
	assert.Len(t, trimmed, len(all)-2)
	for _, d := range trimmed {
		assert.NotEqual(t, models.KindRepeatedStatement, d.Name())
		assert.NotEqual(t, models.KindSelectStar, d.Name())
	}
}

func TestDetectorConfig_WithDefaults(t *testing.T) {
	cfg := DetectorConfig{}.withDefaults()
	assert.Equal(t, DefaultBurstThreshold, cfg.BurstThreshold)
	assert.Equal(t, DefaultDeepOffsetThreshold, cfg.DeepOffsetThreshold)
	assert.Equal(t, DefaultLargeResultRows, cfg.LargeResultRows)

	custom := DetectorConfig{BurstThreshold: 10}.withDefaults()
	assert.Equal(t, 10, custom.BurstThreshold)
	assert.Equal(t, DefaultDeepOffsetThreshold, custom.DeepOffsetThreshold)
}

func TestParamFingerprint_OrderIndependent(t *testing.T) {
	a := paramFingerprint(map[string]any{"x": 1, "y": "two"})
	b := paramFingerprint(map[string]any{"y": "two", "x": 1})
	assert.Equal(t, a, b)

	c := paramFingerprint(map[string]any{"x": 2, "y": "two"})
	assert.NotEqual(t, a, c)
}

package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/querypatrol/pkg/models"
)

func TestSelectStarDetector(t *testing.T) {
	d := &selectStarDetector{}

	t.Run("star over a single table is tolerated", func(t *testing.T) {
		findings, err := d.Detect(context.Background(), newTestContext([]models.QueryRecord{rec("SELECT * FROM customers")}, nil))
		require.NoError(t, err)
		assert.Empty(t, findings)
	})

	t.Run("star across joins is reported", func(t *testing.T) {
		sql := "SELECT * FROM orders o JOIN customers c ON o.customer_id = c.id"
		findings, err := d.Detect(context.Background(), newTestContext([]models.QueryRecord{rec(sql)}, nil))
		require.NoError(t, err)
		require.Len(t, findings, 1)
		assert.Equal(t, models.KindSelectStar, findings[0].Kind)
		assert.Equal(t, models.SeverityInfo, findings[0].Severity)
	})

	t.Run("distinct star counts as star", func(t *testing.T) {
		sql := "SELECT DISTINCT * FROM orders o JOIN customers c ON o.customer_id = c.id"
		findings, err := d.Detect(context.Background(), newTestContext([]models.QueryRecord{rec(sql)}, nil))
		require.NoError(t, err)
		assert.Len(t, findings, 1)
	})

	t.Run("named columns are fine", func(t *testing.T) {
		sql := "SELECT o.id, c.name FROM orders o JOIN customers c ON o.customer_id = c.id"
		findings, err := d.Detect(context.Background(), newTestContext([]models.QueryRecord{rec(sql)}, nil))
		require.NoError(t, err)
		assert.Empty(t, findings)
	})
}

func TestUnboundedScanDetector(t *testing.T) {
	d := &unboundedScanDetector{}

	t.Run("large observed result without limit warns", func(t *testing.T) {
		findings, err := d.Detect(context.Background(), newTestContext([]models.QueryRecord{recRows("SELECT id FROM orders", 1500)}, nil))
		require.NoError(t, err)
		require.Len(t, findings, 1)
		assert.Equal(t, models.KindUnboundedScan, findings[0].Kind)
		assert.Equal(t, models.SeverityWarning, findings[0].Severity)
		assert.Contains(t, findings[0].Title, "1500")
	})

	t.Run("small result stays silent", func(t *testing.T) {
		findings, err := d.Detect(context.Background(), newTestContext([]models.QueryRecord{recRows("SELECT id FROM orders", 50)}, nil))
		require.NoError(t, err)
		assert.Empty(t, findings)
	})

	t.Run("missing row counts stay silent", func(t *testing.T) {
		findings, err := d.Detect(context.Background(), newTestContext([]models.QueryRecord{rec("SELECT id FROM orders")}, nil))
		require.NoError(t, err)
		assert.Empty(t, findings, "without evidence the detector must not guess")
	})

	t.Run("limited statements are out of scope", func(t *testing.T) {
		findings, err := d.Detect(context.Background(), newTestContext([]models.QueryRecord{recRows("SELECT id FROM orders LIMIT 100", 1500)}, nil))
		require.NoError(t, err)
		assert.Empty(t, findings)
	})

	t.Run("max rows across the group decides", func(t *testing.T) {
		records := []models.QueryRecord{
			recRows("SELECT id FROM orders WHERE region = 'EU'", 10),
			recRows("SELECT id FROM orders WHERE region = 'US'", 2500),
		}
		findings, err := d.Detect(context.Background(), newTestContext(records, nil))
		require.NoError(t, err)
		require.Len(t, findings, 1)
		require.Len(t, findings[0].EvidenceQueries, 1)
		assert.Equal(t, 2500, findings[0].EvidenceQueries[0].Rows(), "evidence should be the worst observation")
	})
}

func TestOrderedScanDetector(t *testing.T) {
	d := &orderedScanDetector{}

	t.Run("plain ordered select is tolerated", func(t *testing.T) {
		findings, err := d.Detect(context.Background(), newTestContext([]models.QueryRecord{rec("SELECT id FROM orders ORDER BY created_at")}, nil))
		require.NoError(t, err)
		assert.Empty(t, findings)
	})

	t.Run("ordered join without limit is informational", func(t *testing.T) {
		sql := "SELECT o.id, c.name FROM orders o JOIN customers c ON o.customer_id = c.id ORDER BY o.created_at"
		findings, err := d.Detect(context.Background(), newTestContext([]models.QueryRecord{rec(sql)}, nil))
		require.NoError(t, err)
		require.Len(t, findings, 1)
		assert.Equal(t, models.KindOrderedScanWithoutLimit, findings[0].Kind)
		assert.Equal(t, models.SeverityInfo, findings[0].Severity)
	})

	t.Run("large observed result escalates to warning", func(t *testing.T) {
		findings, err := d.Detect(context.Background(), newTestContext([]models.QueryRecord{recRows("SELECT id FROM orders ORDER BY created_at", 5000)}, nil))
		require.NoError(t, err)
		require.Len(t, findings, 1)
		assert.Equal(t, models.SeverityWarning, findings[0].Severity)
		assert.Contains(t, findings[0].Description, "5000")
	})

	t.Run("limit disarms the detector", func(t *testing.T) {
		findings, err := d.Detect(context.Background(), newTestContext([]models.QueryRecord{recRows("SELECT id FROM orders ORDER BY created_at LIMIT 20", 5000)}, nil))
		require.NoError(t, err)
		assert.Empty(t, findings)
	})
}

func TestDeepOffsetDetector(t *testing.T) {
	d := &deepOffsetDetector{}

	t.Run("deep literal offset warns", func(t *testing.T) {
		findings, err := d.Detect(context.Background(), newTestContext([]models.QueryRecord{rec("SELECT id FROM orders LIMIT 20 OFFSET 6000")}, nil))
		require.NoError(t, err)
		require.Len(t, findings, 1)
		assert.Equal(t, models.KindDeepOffsetPagination, findings[0].Kind)
		assert.Equal(t, models.SeverityWarning, findings[0].Severity)
		assert.Contains(t, findings[0].Title, "6000")
	})

	t.Run("shallow offsets are fine", func(t *testing.T) {
		findings, err := d.Detect(context.Background(), newTestContext([]models.QueryRecord{rec("SELECT id FROM orders LIMIT 20 OFFSET 40")}, nil))
		require.NoError(t, err)
		assert.Empty(t, findings)
	})

	t.Run("deepest page in a paging loop decides", func(t *testing.T) {
		records := []models.QueryRecord{
			rec("SELECT id FROM orders LIMIT 20 OFFSET 0"),
			rec("SELECT id FROM orders LIMIT 20 OFFSET 2500"),
			rec("SELECT id FROM orders LIMIT 20 OFFSET 7500"),
		}
		findings, err := d.Detect(context.Background(), newTestContext(records, nil))
		require.NoError(t, err)
		require.Len(t, findings, 1, "one pattern, one finding")
		assert.Contains(t, findings[0].Title, "7500")
		require.Len(t, findings[0].EvidenceQueries, 1)
		assert.Contains(t, findings[0].EvidenceQueries[0].SQL, "OFFSET 7500")
	})

	t.Run("bound offsets cannot be judged", func(t *testing.T) {
		findings, err := d.Detect(context.Background(), newTestContext([]models.QueryRecord{rec("SELECT id FROM orders LIMIT $1 OFFSET $2")}, nil))
		require.NoError(t, err)
		assert.Empty(t, findings)
	})
}

package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/querypatrol/pkg/models"
)

func TestInjectionDetector(t *testing.T) {
	d := &injectionDetector{}
	const sql = "SELECT * FROM users WHERE name = ?"

	t.Run("injection payload in string parameter", func(t *testing.T) {
		records := []models.QueryRecord{
			recParams(sql, map[string]any{"name": "'; DROP TABLE users--"}),
		}
		findings, err := d.Detect(context.Background(), newTestContext(records, nil))
		require.NoError(t, err)
		require.Len(t, findings, 1)

		f := findings[0]
		assert.Equal(t, models.KindSuspiciousParameter, f.Kind)
		assert.Equal(t, models.SeverityCritical, f.Severity)
		assert.Contains(t, f.Title, "name")
		assert.Contains(t, f.Description, "fingerprint")
	})

	t.Run("benign values pass", func(t *testing.T) {
		records := []models.QueryRecord{
			recParams(sql, map[string]any{"name": "12345", "limit": 100}),
		}
		findings, err := d.Detect(context.Background(), newTestContext(records, nil))
		require.NoError(t, err)
		assert.Empty(t, findings)
	})

	t.Run("non-string values are never flagged", func(t *testing.T) {
		records := []models.QueryRecord{
			recParams(sql, map[string]any{"id": 42, "active": true, "score": 1.5}),
		}
		findings, err := d.Detect(context.Background(), newTestContext(records, nil))
		require.NoError(t, err)
		assert.Empty(t, findings)
	})

	t.Run("one finding per pattern regardless of hit count", func(t *testing.T) {
		records := []models.QueryRecord{
			recParams(sql, map[string]any{"name": "1' OR '1'='1"}),
			recParams(sql, map[string]any{"name": "'; DROP TABLE users--"}),
		}
		findings, err := d.Detect(context.Background(), newTestContext(records, nil))
		require.NoError(t, err)
		require.Len(t, findings, 1)
		assert.Contains(t, findings[0].Description, "2 parameter values")
	})

	t.Run("records without parameters are skipped", func(t *testing.T) {
		findings, err := d.Detect(context.Background(), newTestContext([]models.QueryRecord{rec(sql)}, nil))
		require.NoError(t, err)
		assert.Empty(t, findings)
	})
}

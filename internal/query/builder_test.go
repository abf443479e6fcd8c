package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgerhart/alertflux/internal/window"
)

func TestBuildAggregationSQLSliding(t *testing.T) {
	b := NewBuilder()
	now := time.Date(2025, 6, 1, 12, 7, 0, 0, time.UTC)
	cfg := window.Config{Type: window.Sliding, WindowSizeMinutes: 10}

	sql, err := b.BuildAggregationSQL([]string{"resource_name"}, cfg, 42, now)
	require.NoError(t, err)

	assert.Contains(t, sql, "received_at >= '2025-06-01T11:57:00Z'")
	assert.Contains(t, sql, "action = 'created'")
	assert.Contains(t, sql, "GROUP BY resource_name")
	assert.Contains(t, sql, "HAVING COUNT(*) >= 1")
	assert.Contains(t, sql, "GROUP_CONCAT(event_id, ',') AS event_ids")
	assert.Contains(t, sql, "42 AS strategy_id")
	assert.NotContains(t, sql, "received_at <=")
}

func TestBuildAggregationSQLSession(t *testing.T) {
	b := NewBuilder()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cfg := window.Config{Type: window.Session, WindowSizeMinutes: 10, SessionTimeoutMinutes: 15}

	sql, err := b.BuildAggregationSQL([]string{"service", "location"}, cfg, 7, now)
	require.NoError(t, err)

	assert.Contains(t, sql, "received_at >= '2025-06-01T11:50:00Z'")
	assert.Contains(t, sql, "received_at <= '2025-06-01T12:15:00Z'")
	assert.Contains(t, sql, "GROUP BY service, location")
	assert.Contains(t, sql, "MIN(level) AS alert_level")
}

func TestBuildAggregationSQLRejectsUnsafeColumns(t *testing.T) {
	b := NewBuilder()
	now := time.Now()
	cfg := window.Config{Type: window.Sliding, WindowSizeMinutes: 10}

	tests := []struct {
		name       string
		dimensions []string
	}{
		{"empty list", nil},
		{"statement injection", []string{"resource_name; DROP TABLE events"}},
		{"quoted value", []string{"'service'"}},
		{"uppercase rejected", []string{"Service"}},
		{"embedded space", []string{"resource name"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.BuildAggregationSQL(tt.dimensions, cfg, 1, now)
			assert.Error(t, err)
		})
	}
}

func TestBuildFixedWindowSQL(t *testing.T) {
	b := NewBuilder()
	now := time.Date(2025, 6, 1, 12, 7, 30, 0, time.UTC)
	cfg := window.Config{Type: window.Fixed, WindowSizeMinutes: 10}

	sql, err := b.BuildFixedWindowSQL([]string{"resource_name"}, cfg, 3, now)
	require.NoError(t, err)

	assert.Contains(t, sql, "received_at >= '2025-06-01T11:50:00Z'")
	assert.Contains(t, sql, "received_at < '2025-06-01T12:00:00Z'")
}

func TestFixedWindowBounds(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 7, 30, 0, time.UTC)
	start, end := FixedWindowBounds(now, 10)

	assert.Equal(t, time.Date(2025, 6, 1, 11, 50, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), end)

	// A timestamp already on the boundary keeps the previous full window.
	start, end = FixedWindowBounds(end, 10)
	assert.Equal(t, time.Date(2025, 6, 1, 11, 50, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), end)
}

func TestRenderText(t *testing.T) {
	values := map[string]string{
		"resource_name": "host-1",
		"event_count":   "3",
	}

	out := RenderText("{event_count} incidents on {resource_name}", values)
	assert.Equal(t, "3 incidents on host-1", out)

	// Unknown placeholders stay visible instead of vanishing.
	out = RenderText("{nope} on {resource_name}", values)
	assert.Equal(t, "{nope} on host-1", out)

	assert.Equal(t, "", RenderText("", values))
	assert.Equal(t, "static", RenderText("static", nil))
}

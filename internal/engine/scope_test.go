package engine

import (
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgerhart/alertflux/internal/model"
)

func newTestScope(t *testing.T) *Scope {
	t.Helper()
	scope, err := NewScope(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = scope.Close() })
	return scope
}

func testEvent(id, resource string, action model.EventAction, level int, at time.Time) model.Event {
	return model.Event{
		EventID:      id,
		Action:       action,
		ReceivedAt:   at,
		Level:        level,
		Title:        "cpu high on " + resource,
		ResourceName: resource,
		Service:      "payments",
		Labels:       map[string]string{"team": "sre"},
	}
}

func TestScopeLoadAndAggregate(t *testing.T) {
	scope := newTestScope(t)
	base := time.Date(2025, 6, 1, 11, 55, 0, 0, time.UTC)

	events := []model.Event{
		testEvent("ev-1", "host-1", model.ActionCreated, 2, base),
		testEvent("ev-2", "host-1", model.ActionCreated, 1, base.Add(2*time.Minute)),
		testEvent("ev-3", "host-2", model.ActionCreated, 2, base.Add(3*time.Minute)),
		testEvent("ev-4", "host-1", model.ActionRecovery, 2, base.Add(4*time.Minute)),
	}
	require.NoError(t, scope.LoadEvents(events))

	result, err := scope.Execute(`WITH windowed AS (
    SELECT *
    FROM events
    WHERE received_at >= '2025-06-01T11:50:00Z'
      AND action = 'created'
)
SELECT
    resource_name,
    COUNT(*) AS event_count,
    GROUP_CONCAT(event_id, ',') AS event_ids,
    MIN(received_at) AS first_event_time,
    MAX(received_at) AS last_event_time,
    MIN(level) AS alert_level
FROM windowed
GROUP BY resource_name
HAVING COUNT(*) >= 1
ORDER BY resource_name`)
	require.NoError(t, err)

	require.Len(t, result.Rows, 2)
	assert.Equal(t, []string{
		"resource_name", "event_count", "event_ids",
		"first_event_time", "last_event_time", "alert_level",
	}, result.Columns)

	host1 := result.Rows[0]
	assert.Equal(t, "host-1", host1["resource_name"])
	assert.Equal(t, int64(2), host1["event_count"])
	assert.ElementsMatch(t, []string{"ev-1", "ev-2"}, strings.Split(host1["event_ids"].(string), ","))
	assert.Equal(t, "2025-06-01T11:55:00Z", host1["first_event_time"])
	assert.Equal(t, "2025-06-01T11:57:00Z", host1["last_event_time"])
	assert.Equal(t, int64(1), host1["alert_level"])

	host2 := result.Rows[1]
	assert.Equal(t, "host-2", host2["resource_name"])
	assert.Equal(t, int64(1), host2["event_count"])
}

func TestScopeSkipsEmptyBatch(t *testing.T) {
	scope := newTestScope(t)

	// An empty batch is an upstream filtering bug: log and skip, never fail.
	require.NoError(t, scope.LoadEvents(nil))

	// Nothing was loaded, so querying the table surfaces the engine error.
	_, err := scope.Execute("SELECT COUNT(*) AS n FROM events")
	assert.Error(t, err)
}

func TestScopeReloadReplacesTable(t *testing.T) {
	scope := newTestScope(t)
	base := time.Date(2025, 6, 1, 11, 55, 0, 0, time.UTC)

	first := []model.Event{
		testEvent("ev-1", "host-1", model.ActionCreated, 2, base),
		testEvent("ev-2", "host-1", model.ActionCreated, 2, base.Add(time.Minute)),
	}
	require.NoError(t, scope.LoadEvents(first))

	second := []model.Event{
		testEvent("ev-9", "host-9", model.ActionCreated, 2, base.Add(2*time.Minute)),
	}
	require.NoError(t, scope.LoadEvents(second))

	result, err := scope.Execute("SELECT COUNT(*) AS n, MIN(event_id) AS id FROM events")
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, int64(1), result.Rows[0]["n"])
	assert.Equal(t, "ev-9", result.Rows[0]["id"])
}

func TestScopeSerializesLabelMaps(t *testing.T) {
	scope := newTestScope(t)

	ev := testEvent("ev-1", "host-1", model.ActionCreated, 2, time.Now().UTC())
	ev.Tags = map[string]string{"env": "prod"}
	require.NoError(t, scope.LoadEvents([]model.Event{ev}))

	result, err := scope.Execute("SELECT labels, tags FROM events WHERE event_id = 'ev-1'")
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)

	var labels map[string]string
	require.NoError(t, json.Unmarshal([]byte(result.Rows[0]["labels"].(string)), &labels))
	assert.Equal(t, map[string]string{"team": "sre"}, labels)

	var tags map[string]string
	require.NoError(t, json.Unmarshal([]byte(result.Rows[0]["tags"].(string)), &tags))
	assert.Equal(t, map[string]string{"env": "prod"}, tags)
}

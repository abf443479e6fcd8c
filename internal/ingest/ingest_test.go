package ingest

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgerhart/alertflux/internal/model"
	"github.com/sgerhart/alertflux/internal/store"
)

var intakeBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seedAlert creates an active alert owning one created event with the given
// external id.
func seedAlert(t *testing.T, st store.Store, alertID, externalID string) {
	t.Helper()
	ev := model.Event{
		EventID:    "seed-" + alertID,
		ExternalID: externalID,
		Action:     model.ActionCreated,
		ReceivedAt: intakeBase.Add(-10 * time.Minute),
		Title:      "seed",
	}
	require.NoError(t, st.InsertEvents([]model.Event{ev}))
	alert := model.Alert{
		AlertID:        alertID,
		Fingerprint:    "fp-" + alertID,
		RuleID:         1,
		Status:         model.StatusUnassigned,
		Title:          "seed",
		FirstEventTime: ev.ReceivedAt,
		LastEventTime:  ev.ReceivedAt,
	}
	require.NoError(t, st.CreateAlert(&alert))
	require.NoError(t, st.LinkEvents(alertID, []string{ev.EventID}))
}

func TestIntakeValidatesAndPersists(t *testing.T) {
	st := store.NewMemoryStore()
	intake := NewIntake(st, nil, testLogger())

	result, err := intake.ProcessBatch([]model.Event{
		{EventID: "ev-1", Action: model.ActionCreated, Title: "disk full", ReceivedAt: intakeBase},
		{EventID: "", Action: model.ActionCreated, Title: "no id"},
		{EventID: "ev-2", Action: "escalated", Title: "bad action"},
		{EventID: "ev-3", Action: model.ActionCreated, Title: "   "},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Accepted)
	assert.Equal(t, 3, result.Invalid)

	stored, err := st.ListEventsByIDs([]string{"ev-1", "ev-2", "ev-3"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "ev-1", stored[0].EventID)
}

func TestIntakeAcceptsUppercaseAction(t *testing.T) {
	st := store.NewMemoryStore()
	intake := NewIntake(st, nil, testLogger())

	result, err := intake.ProcessBatch([]model.Event{
		{EventID: "ev-1", Action: "CREATED", Title: "loud source", ReceivedAt: intakeBase},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Accepted)

	stored, err := st.ListEventsByIDs([]string{"ev-1"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, model.ActionCreated, stored[0].Action)
}

func TestIntakeBackfillsExternalID(t *testing.T) {
	st := store.NewMemoryStore()
	intake := NewIntake(st, nil, testLogger())

	_, err := intake.ProcessBatch([]model.Event{
		{
			EventID:      "ev-1",
			Action:       model.ActionCreated,
			Title:        "io latency",
			ReceivedAt:   intakeBase,
			Item:         "disk-io",
			ResourceName: "db-01",
			SourceID:     "src-9",
		},
	})
	require.NoError(t, err)

	stored, err := st.ListEventsByIDs([]string{"ev-1"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "66cbbff6ebf27a2463f68cf7488649a2", stored[0].ExternalID)
}

func TestIntakeKeepsProvidedExternalID(t *testing.T) {
	st := store.NewMemoryStore()
	intake := NewIntake(st, nil, testLogger())

	_, err := intake.ProcessBatch([]model.Event{
		{
			EventID:    "ev-1",
			ExternalID: "ext-given",
			Action:     model.ActionCreated,
			Title:      "io latency",
			ReceivedAt: intakeBase,
			Item:       "disk-io",
		},
	})
	require.NoError(t, err)

	stored, err := st.ListEventsByIDs([]string{"ev-1"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "ext-given", stored[0].ExternalID)
}

func TestIntakeRoutesRecoveryAndClosedEvents(t *testing.T) {
	st := store.NewMemoryStore()
	seedAlert(t, st, "ALERT-A", "ext-a")
	seedAlert(t, st, "ALERT-B", "ext-b")

	intake := NewIntake(st, nil, testLogger())
	result, err := intake.ProcessBatch([]model.Event{
		{EventID: "ev-r", ExternalID: "ext-a", Action: model.ActionRecovery, ReceivedAt: intakeBase},
		{EventID: "ev-c", ExternalID: "ext-b", Action: model.ActionClosed, ReceivedAt: intakeBase},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Accepted)
	assert.Equal(t, 2, result.Linked)
	assert.Equal(t, 1, result.Closed)

	aIDs, err := st.ListAlertEventIDs("ALERT-A")
	require.NoError(t, err)
	assert.Contains(t, aIDs, "ev-r")

	b, err := st.GetAlert("ALERT-B")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAutoClose, b.Status)

	a, err := st.GetAlert("ALERT-A")
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnassigned, a.Status)
}

func TestIntakeEmptyBatch(t *testing.T) {
	st := store.NewMemoryStore()
	intake := NewIntake(st, nil, testLogger())

	result, err := intake.ProcessBatch(nil)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{}, result)
}

func TestIntakeStampsReceivedAt(t *testing.T) {
	st := store.NewMemoryStore()
	intake := NewIntake(st, nil, testLogger())

	_, err := intake.ProcessBatch([]model.Event{
		{EventID: "ev-1", Action: model.ActionCreated, Title: "no timestamp"},
	})
	require.NoError(t, err)

	stored, err := st.ListEventsByIDs([]string{"ev-1"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.WithinDuration(t, time.Now().UTC(), stored[0].ReceivedAt, time.Minute)
}

func TestGenerateExternalID(t *testing.T) {
	assert.Equal(t, "66cbbff6ebf27a2463f68cf7488649a2", GenerateExternalID("disk-io", "db-01", "src-9"))
	assert.NotEmpty(t, GenerateExternalID("disk-io", "", ""))
	assert.Empty(t, GenerateExternalID("", "", ""))
}

func TestDecodeEventBatch(t *testing.T) {
	t.Run("envelope with source stamp", func(t *testing.T) {
		payload := `{"source_id":"src-1","events":[{"event_id":"e1","action":"created"},{"event_id":"e2","action":"created","source_id":"src-own"}]}`
		events, err := DecodeEventBatch([]byte(payload))
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "src-1", events[0].SourceID)
		assert.Equal(t, "src-own", events[1].SourceID)
	})

	t.Run("empty envelope is an empty batch", func(t *testing.T) {
		events, err := DecodeEventBatch([]byte(`{"source_id":"src-1","events":[]}`))
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("bare array", func(t *testing.T) {
		events, err := DecodeEventBatch([]byte(`[{"event_id":"e1"},{"event_id":"e2"}]`))
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("single event", func(t *testing.T) {
		events, err := DecodeEventBatch([]byte(`{"event_id":"e1","action":"created"}`))
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "e1", events[0].EventID)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := DecodeEventBatch([]byte(`"nope"`))
		assert.Error(t, err)
	})

	t.Run("object without event fields", func(t *testing.T) {
		_, err := DecodeEventBatch([]byte(`{"foo":1}`))
		assert.Error(t, err)
	})
}

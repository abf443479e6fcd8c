package strategy

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoader_LoadSnapshot(t *testing.T) {
	tempDir := t.TempDir()

	strategy1Content := `
rule_id: 101
name: "Payments error burst"
dimension_type: "application"
match_rules:
  - - key: service
      operator: eq
      value: payments
params:
  window_size: 15
close_minutes: 30
title_template: "{service} errors in {location}"
`

	strategy2Content := `
rule_id: 102
name: "Disabled strategy"
enabled: false
dimension_type: "instance"
`

	err := os.WriteFile(filepath.Join(tempDir, "01-payments.yaml"), []byte(strategy1Content), 0644)
	require.NoError(t, err)

	err = os.WriteFile(filepath.Join(tempDir, "02-disabled.yaml"), []byte(strategy2Content), 0644)
	require.NoError(t, err)

	loader := NewLoader(tempDir, false, 1000, testLogger())

	snapshot, err := loader.LoadSnapshot()
	require.NoError(t, err)

	// Only the enabled strategy should be loaded
	assert.Len(t, snapshot.Strategies, 1)
	assert.Equal(t, int64(101), snapshot.Strategies[0].RuleID)
	assert.True(t, snapshot.Strategies[0].IsEnabled())
	assert.Equal(t, "application", snapshot.Strategies[0].DimensionType)
	assert.Equal(t, 15, snapshot.Strategies[0].Params["window_size"])
	assert.Equal(t, 30, snapshot.Strategies[0].CloseMinutes)
}

func TestLoader_ArrayFile(t *testing.T) {
	tempDir := t.TempDir()

	content := `
- rule_id: 7
  name: "Strategy seven"
- rule_id: 3
  name: "Strategy three"
`
	err := os.WriteFile(filepath.Join(tempDir, "bundle.yaml"), []byte(content), 0644)
	require.NoError(t, err)

	loader := NewLoader(tempDir, false, 1000, testLogger())

	snapshot, err := loader.LoadSnapshot()
	require.NoError(t, err)

	// Sorted by rule id regardless of file order
	require.Len(t, snapshot.Strategies, 2)
	assert.Equal(t, int64(3), snapshot.Strategies[0].RuleID)
	assert.Equal(t, int64(7), snapshot.Strategies[1].RuleID)
}

func TestLoader_SkipsInvalidStrategies(t *testing.T) {
	tempDir := t.TempDir()

	content := `
- rule_id: 1
  name: "Good strategy"
- rule_id: 2
  name: ""
- rule_id: 3
  name: "Bad dimension"
  dimension_type: custom
  custom_dimensions: ["drop table"]
- rule_id: 4
  name: "Bad params"
  params:
    window_size: "not-a-number"
`
	err := os.WriteFile(filepath.Join(tempDir, "mixed.yaml"), []byte(content), 0644)
	require.NoError(t, err)

	loader := NewLoader(tempDir, false, 1000, testLogger())

	snapshot, err := loader.LoadSnapshot()
	require.NoError(t, err)

	require.Len(t, snapshot.Strategies, 1)
	assert.Equal(t, int64(1), snapshot.Strategies[0].RuleID)
}

func TestLoader_FilenameOverride(t *testing.T) {
	tempDir := t.TempDir()

	firstContent := `
rule_id: 55
name: "First definition"
`
	secondContent := `
rule_id: 55
name: "Second definition (override)"
`

	// Alphabetical file order decides the winner
	err := os.WriteFile(filepath.Join(tempDir, "01-first.yaml"), []byte(firstContent), 0644)
	require.NoError(t, err)

	err = os.WriteFile(filepath.Join(tempDir, "02-second.yaml"), []byte(secondContent), 0644)
	require.NoError(t, err)

	loader := NewLoader(tempDir, false, 1000, testLogger())

	snapshot, err := loader.LoadSnapshot()
	require.NoError(t, err)

	require.Len(t, snapshot.Strategies, 1)
	assert.Equal(t, int64(55), snapshot.Strategies[0].RuleID)
	assert.Equal(t, "Second definition (override)", snapshot.Strategies[0].Name)
	assert.Equal(t, filepath.Join(tempDir, "02-second.yaml"), snapshot.Strategies[0].SourceFile)
}

func TestStrategy_Validate(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		wantErr  bool
		errMsg   string
	}{
		{
			name: "valid strategy",
			strategy: Strategy{
				RuleID:        1,
				Name:          "Valid",
				DimensionType: "application",
				Params:        map[string]any{"window_size": 10},
			},
			wantErr: false,
		},
		{
			name: "unknown dimension type is not a validation error",
			strategy: Strategy{
				RuleID:        2,
				Name:          "Odd dimension",
				DimensionType: "galaxy",
			},
			wantErr: false,
		},
		{
			name:     "missing rule id",
			strategy: Strategy{Name: "No ID"},
			wantErr:  true,
			errMsg:   "rule_id: rule id must be positive",
		},
		{
			name:     "missing name",
			strategy: Strategy{RuleID: 3},
			wantErr:  true,
			errMsg:   "name: strategy name is required",
		},
		{
			name: "custom dimension must be an event column",
			strategy: Strategy{
				RuleID:           4,
				Name:             "Bad custom dims",
				CustomDimensions: []string{"service", "nonsense"},
			},
			wantErr: true,
			errMsg:  "custom_dimensions",
		},
		{
			name: "negative close minutes",
			strategy: Strategy{
				RuleID:       5,
				Name:         "Negative close",
				CloseMinutes: -1,
			},
			wantErr: true,
			errMsg:  "close_minutes: close_minutes must not be negative",
		},
		{
			name: "non-numeric window size",
			strategy: Strategy{
				RuleID: 6,
				Name:   "Bad params",
				Params: map[string]any{"window_size": "soon"},
			},
			wantErr: true,
			errMsg:  "params",
		},
		{
			name: "stringly typed params are accepted",
			strategy: Strategy{
				RuleID: 7,
				Name:   "Templated params",
				Params: map[string]any{"window_size": "15", "time_out": "true", "time_minutes": "30"},
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.strategy.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStrategy_IsEnabled(t *testing.T) {
	enabled := true
	disabled := false

	assert.True(t, (&Strategy{}).IsEnabled())
	assert.True(t, (&Strategy{Enabled: &enabled}).IsEnabled())
	assert.False(t, (&Strategy{Enabled: &disabled}).IsEnabled())
}

func TestLoader_GetSnapshot(t *testing.T) {
	tempDir := t.TempDir()

	content := `
rule_id: 9
name: "Snapshot strategy"
`
	err := os.WriteFile(filepath.Join(tempDir, "test.yaml"), []byte(content), 0644)
	require.NoError(t, err)

	loader := NewLoader(tempDir, false, 1000, testLogger())

	// Before loading anything the snapshot is empty
	empty := loader.GetSnapshot()
	assert.Len(t, empty.Strategies, 0)
	assert.Equal(t, int64(0), empty.Version)

	_, err = loader.LoadSnapshot()
	require.NoError(t, err)

	snapshot := loader.GetSnapshot()
	require.Len(t, snapshot.Strategies, 1)
	assert.Equal(t, int64(9), snapshot.Strategies[0].RuleID)
	assert.Greater(t, snapshot.Version, int64(0))

	found, ok := snapshot.Find(9)
	assert.True(t, ok)
	assert.Equal(t, "Snapshot strategy", found.Name)

	_, ok = snapshot.Find(999)
	assert.False(t, ok)
}

func TestLoader_Subscribe(t *testing.T) {
	tempDir := t.TempDir()

	loader := NewLoader(tempDir, false, 1000, testLogger())

	ch := loader.Subscribe()

	// Should receive initial notification
	select {
	case <-ch:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Expected initial notification")
	}

	content := `
rule_id: 12
name: "Subscribed strategy"
`
	err := os.WriteFile(filepath.Join(tempDir, "test.yaml"), []byte(content), 0644)
	require.NoError(t, err)

	_, err = loader.LoadSnapshot()
	require.NoError(t, err)

	// Should receive notification after loading
	select {
	case <-ch:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Expected notification after loading")
	}
}

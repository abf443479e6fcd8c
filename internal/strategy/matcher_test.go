package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgerhart/alertflux/internal/model"
)

func matcherEvent(service, location string, level int) model.Event {
	return model.Event{
		EventID:      "ev-" + service,
		Action:       model.ActionCreated,
		Service:      service,
		Location:     location,
		ResourceName: service + "-host",
		Level:        level,
		Labels:       map[string]string{"team": "platform"},
		Tags:         map[string]string{"env": "prod"},
	}
}

func TestMatcher_NoRulesMatchesEverything(t *testing.T) {
	m := NewMatcher(testLogger())
	events := []model.Event{matcherEvent("payments", "us-east-1", 1)}

	matched := m.Match(events, nil)
	assert.Len(t, matched, 1)

	matched = m.Match(events, [][]Condition{})
	assert.Len(t, matched, 1)
}

func TestMatcher_Operators(t *testing.T) {
	event := matcherEvent("payments", "us-east-1", 2)

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"eq match", Condition{Key: "service", Operator: "eq", Value: "payments"}, true},
		{"eq mismatch", Condition{Key: "service", Operator: "eq", Value: "billing"}, false},
		{"eq numeric string vs int", Condition{Key: "level", Operator: "eq", Value: 2}, true},
		{"eq numeric float form", Condition{Key: "level", Operator: "eq", Value: "2.0"}, true},
		{"ne match", Condition{Key: "service", Operator: "ne", Value: "billing"}, true},
		{"ne mismatch", Condition{Key: "service", Operator: "ne", Value: "payments"}, false},
		{"ne nil means field present", Condition{Key: "service", Operator: "ne"}, true},
		{"ne nil on absent field", Condition{Key: "event_type", Operator: "ne"}, false},
		{"contains is case-insensitive", Condition{Key: "service", Operator: "contains", Value: "PAY"}, true},
		{"contains mismatch", Condition{Key: "service", Operator: "contains", Value: "refund"}, false},
		{"not_contains", Condition{Key: "service", Operator: "not_contains", Value: "refund"}, true},
		{"regex is case-insensitive", Condition{Key: "location", Operator: "regex", Value: "^US-EAST"}, true},
		{"regex mismatch", Condition{Key: "location", Operator: "regex", Value: "^eu-"}, false},
		{"gt numeric", Condition{Key: "level", Operator: "gt", Value: 1}, true},
		{"gt equal is false", Condition{Key: "level", Operator: "gt", Value: 2}, false},
		{"gte equal", Condition{Key: "level", Operator: "gte", Value: 2}, true},
		{"lt numeric", Condition{Key: "level", Operator: "lt", Value: 3}, true},
		{"lte string compare", Condition{Key: "service", Operator: "lte", Value: "zzz"}, true},
		{"in list", Condition{Key: "service", Operator: "in", Value: []any{"billing", "payments"}}, true},
		{"in list miss", Condition{Key: "service", Operator: "in", Value: []any{"billing"}}, false},
		{"not_in list", Condition{Key: "service", Operator: "not_in", Value: []any{"billing"}}, true},
		{"label fallback", Condition{Key: "team", Operator: "eq", Value: "platform"}, true},
		{"tag fallback", Condition{Key: "env", Operator: "eq", Value: "prod"}, true},
		{"action pseudo-field", Condition{Key: "action", Operator: "eq", Value: "created"}, true},
		{"unknown operator falls back to eq", Condition{Key: "service", Operator: "matches", Value: "payments"}, true},
		{"re alias for regex", Condition{Key: "service", Operator: "re", Value: "pay.*"}, true},
	}

	m := NewMatcher(testLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Matches(&event, [][]Condition{{tt.cond}})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatcher_GroupsAreORedConditionsAreANDed(t *testing.T) {
	m := NewMatcher(testLogger())
	events := []model.Event{
		matcherEvent("payments", "us-east-1", 0),
		matcherEvent("billing", "us-east-1", 2),
		matcherEvent("search", "eu-west-1", 1),
	}

	rules := [][]Condition{
		{
			{Key: "service", Operator: "eq", Value: "payments"},
			{Key: "location", Operator: "eq", Value: "us-east-1"},
		},
		{
			{Key: "service", Operator: "eq", Value: "search"},
		},
	}

	matched := m.Match(events, rules)
	require.Len(t, matched, 2)
	assert.Equal(t, "payments", matched[0].Service)
	assert.Equal(t, "search", matched[1].Service)
}

func TestMatcher_SkipsInvalidConditions(t *testing.T) {
	m := NewMatcher(testLogger())
	event := matcherEvent("payments", "us-east-1", 1)

	// The broken conditions drop out but the valid one still gates the group.
	rules := [][]Condition{
		{
			{Key: "", Operator: "eq", Value: "x"},
			{Key: "service", Operator: "", Value: "x"},
			{Key: "service", Operator: "eq", Value: nil},
			{Key: "location", Operator: "regex", Value: "["},
			{Key: "service", Operator: "in", Value: "not-a-list"},
			{Key: "service", Operator: "not_contains", Value: ""},
			{Key: "service", Operator: "eq", Value: "payments"},
		},
	}

	assert.True(t, m.Matches(&event, rules))

	rules[0][len(rules[0])-1].Value = "billing"
	assert.False(t, m.Matches(&event, rules))
}

func TestMatcher_AllGroupsInvalidMatchesEverything(t *testing.T) {
	m := NewMatcher(testLogger())
	events := []model.Event{
		matcherEvent("payments", "us-east-1", 1),
		matcherEvent("billing", "eu-west-1", 2),
	}

	rules := [][]Condition{
		{{Key: "", Operator: "eq", Value: "x"}},
		{{Key: "service", Operator: "regex", Value: "["}},
	}

	matched := m.Match(events, rules)
	assert.Len(t, matched, 2)
}

package strategy

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/sgerhart/alertflux/internal/model"
)

// Matcher filters events against strategy match rules. Rules are a
// disjunction of condition groups: an event matches when every condition of
// at least one group holds. Malformed conditions are skipped with a warning,
// and if every group turns out malformed the matcher admits all events, so a
// broken rule degrades loudly instead of silently dropping its strategy.
type Matcher struct {
	logger *slog.Logger
}

// NewMatcher creates a matcher that logs skipped conditions to logger.
func NewMatcher(logger *slog.Logger) *Matcher {
	return &Matcher{logger: logger}
}

type compiledCondition struct {
	key      string
	operator string
	value    any
	pattern  *regexp.Regexp // set for regex conditions
	values   []any          // set for in / not_in conditions
}

// Match returns the subset of events satisfying rules. With no rules every
// event matches.
func (m *Matcher) Match(events []model.Event, rules [][]Condition) []model.Event {
	groups := m.compile(rules)
	if groups == nil {
		return events
	}

	matched := make([]model.Event, 0, len(events))
	for i := range events {
		if m.matchGroups(&events[i], groups) {
			matched = append(matched, events[i])
		}
	}
	return matched
}

// Matches reports whether a single event satisfies rules.
func (m *Matcher) Matches(event *model.Event, rules [][]Condition) bool {
	groups := m.compile(rules)
	if groups == nil {
		return true
	}
	return m.matchGroups(event, groups)
}

// compile turns raw rules into evaluable condition groups. It returns nil
// when there is nothing to evaluate, which callers treat as match-all.
func (m *Matcher) compile(rules [][]Condition) [][]compiledCondition {
	if len(rules) == 0 {
		return nil
	}

	groups := make([][]compiledCondition, 0, len(rules))
	for _, rule := range rules {
		group := make([]compiledCondition, 0, len(rule))
		for _, cond := range rule {
			compiled, ok := m.compileCondition(cond)
			if ok {
				group = append(group, compiled)
			}
		}
		if len(group) > 0 {
			groups = append(groups, group)
		}
	}

	if len(groups) == 0 {
		m.logger.Warn("all match rule groups invalid, matching every event")
		return nil
	}
	return groups
}

func (m *Matcher) compileCondition(cond Condition) (compiledCondition, bool) {
	if cond.Key == "" || cond.Operator == "" {
		m.logger.Warn("skipping match condition without key or operator",
			"key", cond.Key)
		return compiledCondition{}, false
	}

	op := strings.ToLower(strings.TrimSpace(cond.Operator))
	switch op {
	case "eq", "ne", "contains", "not_contains", "regex", "gt", "gte", "lt", "lte", "in", "not_in":
	case "re":
		op = "regex"
	default:
		m.logger.Warn("unknown match operator, treating as eq",
			"key", cond.Key,
			"operator", cond.Operator)
		op = "eq"
	}

	if cond.Value == nil && op != "ne" {
		m.logger.Warn("skipping match condition without value",
			"key", cond.Key,
			"operator", op)
		return compiledCondition{}, false
	}

	compiled := compiledCondition{key: cond.Key, operator: op, value: cond.Value}

	switch op {
	case "not_contains":
		if stringify(cond.Value) == "" {
			m.logger.Warn("skipping not_contains condition with empty value",
				"key", cond.Key)
			return compiledCondition{}, false
		}
	case "regex":
		pattern, err := regexp.Compile("(?i)" + stringify(cond.Value))
		if err != nil {
			m.logger.Warn("skipping condition with invalid regex",
				"key", cond.Key,
				"error", err)
			return compiledCondition{}, false
		}
		compiled.pattern = pattern
	case "in", "not_in":
		values, ok := cond.Value.([]any)
		if !ok || len(values) == 0 {
			m.logger.Warn("skipping condition: in/not_in needs a non-empty list",
				"key", cond.Key,
				"operator", op)
			return compiledCondition{}, false
		}
		compiled.values = values
	}

	return compiled, true
}

func (m *Matcher) matchGroups(event *model.Event, groups [][]compiledCondition) bool {
	for _, group := range groups {
		if matchGroup(event, group) {
			return true
		}
	}
	return false
}

func matchGroup(event *model.Event, group []compiledCondition) bool {
	for i := range group {
		if !evaluate(event, &group[i]) {
			return false
		}
	}
	return true
}

func evaluate(event *model.Event, cond *compiledCondition) bool {
	field := eventFieldValue(event, cond.key)

	switch cond.operator {
	case "eq":
		return valuesEqual(field, cond.value)
	case "ne":
		if cond.value == nil {
			return field != ""
		}
		return !valuesEqual(field, cond.value)
	case "contains":
		return strings.Contains(strings.ToLower(field), strings.ToLower(stringify(cond.value)))
	case "not_contains":
		return !strings.Contains(strings.ToLower(field), strings.ToLower(stringify(cond.value)))
	case "regex":
		return cond.pattern.MatchString(field)
	case "gt":
		return compareValues(field, cond.value) > 0
	case "gte":
		return compareValues(field, cond.value) >= 0
	case "lt":
		return compareValues(field, cond.value) < 0
	case "lte":
		return compareValues(field, cond.value) <= 0
	case "in":
		return containsValue(cond.values, field)
	case "not_in":
		return !containsValue(cond.values, field)
	}
	return false
}

// eventFieldValue resolves a condition key against an event. Numeric fields
// are rendered as strings so condition values written either way compare
// equal.
func eventFieldValue(event *model.Event, key string) string {
	switch key {
	case "level":
		return strconv.Itoa(event.Level)
	case "action":
		return string(event.Action)
	}
	return event.DimensionValue(key)
}

// valuesEqual compares numerically when both sides parse as numbers, so
// "2" equals 2 and "2.0".
func valuesEqual(field string, value any) bool {
	want := stringify(value)
	if fn, err := strconv.ParseFloat(field, 64); err == nil {
		if wn, err := strconv.ParseFloat(want, 64); err == nil {
			return fn == wn
		}
	}
	return field == want
}

// compareValues orders numerically when both sides parse as numbers and
// lexicographically otherwise.
func compareValues(field string, value any) int {
	want := stringify(value)
	if fn, err := strconv.ParseFloat(field, 64); err == nil {
		if wn, err := strconv.ParseFloat(want, 64); err == nil {
			switch {
			case fn < wn:
				return -1
			case fn > wn:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(field, want)
}

func containsValue(values []any, field string) bool {
	for _, v := range values {
		if valuesEqual(field, v) {
			return true
		}
	}
	return false
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Package strategy loads aggregation strategies from YAML files, validates
// them, and matches events against their rules.
package strategy

import (
	"fmt"

	"github.com/sgerhart/alertflux/internal/model"
)

// Condition is one field comparison inside a match-rule group.
type Condition struct {
	Key      string `yaml:"key" json:"key"`
	Operator string `yaml:"operator" json:"operator"`
	Value    any    `yaml:"value,omitempty" json:"value,omitempty"`
}

// Strategy is one aggregation rule: which events it matches, how they are
// grouped, the window parameters, and how produced alerts are titled.
type Strategy struct {
	RuleID           int64          `yaml:"rule_id" json:"rule_id"`
	Name             string         `yaml:"name" json:"name"`
	Description      string         `yaml:"description,omitempty" json:"description,omitempty"`
	Enabled          *bool          `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	DimensionType    string         `yaml:"dimension_type,omitempty" json:"dimension_type,omitempty"`
	CustomDimensions []string       `yaml:"custom_dimensions,omitempty" json:"custom_dimensions,omitempty"`
	MatchRules       [][]Condition  `yaml:"match_rules,omitempty" json:"match_rules,omitempty"`
	Params           map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
	CloseMinutes     int            `yaml:"close_minutes,omitempty" json:"close_minutes,omitempty"`
	TitleTemplate    string         `yaml:"title_template,omitempty" json:"title_template,omitempty"`
	ContentTemplate  string         `yaml:"content_template,omitempty" json:"content_template,omitempty"`
	SourceFile       string         `yaml:"-" json:"source_file,omitempty"`
}

// IsEnabled checks if the strategy is enabled. Unset means enabled.
func (s *Strategy) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Validate checks the strategy's structural fields. The dimension type is
// deliberately not validated here: an unknown value falls back to instance
// grouping at scan time with a logged warning instead of rejecting the
// whole strategy.
func (s *Strategy) Validate() error {
	if s.RuleID <= 0 {
		return &ValidationError{Field: "rule_id", Message: "rule id must be positive"}
	}

	if s.Name == "" {
		return &ValidationError{Field: "name", Message: "strategy name is required"}
	}

	for _, dim := range s.CustomDimensions {
		if !model.IsEventColumn(dim) {
			return &ValidationError{
				Field:   "custom_dimensions",
				Message: fmt.Sprintf("%q is not a groupable event column", dim),
			}
		}
	}

	if s.CloseMinutes < 0 {
		return &ValidationError{Field: "close_minutes", Message: "close_minutes must not be negative"}
	}

	return ValidateParams(s.Params)
}

// AutoCloseEnabled reports whether idle alerts of this strategy are closed
// automatically.
func (s *Strategy) AutoCloseEnabled() bool {
	return s.CloseMinutes > 0
}

// ValidationError represents a strategy validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

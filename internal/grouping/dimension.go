// Package grouping derives alert grouping keys from event dimensions.
package grouping

import (
	"fmt"
	"strings"
)

// DimensionType is the closed set of grouping granularities a strategy can
// declare. Parse is the only entry point from untyped configuration values.
type DimensionType int

const (
	DimensionApplication DimensionType = iota
	DimensionInfrastructure
	DimensionInstance
	DimensionCustom
)

// fallbackOrder walks from the coarsest preset grouping toward the most
// specific one. Resolve starts at the declared level and tries everything
// after it before falling back to per-event grouping.
var fallbackOrder = []DimensionType{DimensionApplication, DimensionInfrastructure, DimensionInstance}

var presets = map[DimensionType][]string{
	DimensionApplication:    {"service"},
	DimensionInfrastructure: {"location"},
	DimensionInstance:       {"resource_name"},
}

func (t DimensionType) String() string {
	switch t {
	case DimensionApplication:
		return "application"
	case DimensionInfrastructure:
		return "infrastructure"
	case DimensionInstance:
		return "instance"
	case DimensionCustom:
		return "custom"
	}
	return fmt.Sprintf("dimension_type(%d)", int(t))
}

// ParseDimensionType maps a strategy's declared granularity onto the closed
// dimension type set. Unknown values return DimensionInstance together with
// an error so the caller decides how loudly to fall back.
func ParseDimensionType(s string) (DimensionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "application":
		return DimensionApplication, nil
	case "infrastructure":
		return DimensionInfrastructure, nil
	case "instance":
		return DimensionInstance, nil
	case "custom":
		return DimensionCustom, nil
	}
	return DimensionInstance, fmt.Errorf("unknown dimension type %q", s)
}

// Resolve returns the ordered list of dimension-key sets a scan should try
// for the given granularity. Preset levels yield their own set plus every
// more specific preset after them, always ending with the degenerate
// per-event grouping. Custom strategies group by exactly their declared
// dimensions, or per event when none are declared.
func Resolve(t DimensionType, custom []string) [][]string {
	if t == DimensionCustom {
		if len(custom) > 0 {
			return [][]string{append([]string(nil), custom...)}
		}
		return [][]string{{"event_id"}}
	}

	start := len(fallbackOrder) - 1
	for i, level := range fallbackOrder {
		if level == t {
			start = i
			break
		}
	}

	sets := make([][]string, 0, len(fallbackOrder)-start+1)
	for _, level := range fallbackOrder[start:] {
		sets = append(sets, append([]string(nil), presets[level]...))
	}
	return append(sets, []string{"event_id"})
}

// Package query renders the aggregation SQL a scan executes against its
// analytical scope, plus the strategy-authored text templates used for alert
// titles and content. The two templating surfaces are deliberately separate:
// grouping SQL can change without touching title rendering and vice versa.
package query

import (
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/sgerhart/alertflux/internal/window"
)

// minEventCount is rendered into every HAVING clause. The grouping queries
// enforce no real count threshold; the placeholder is reserved for a future
// threshold policy.
const minEventCount = 1

// identifierPattern accepts plain lowercase column identifiers. Dimension
// columns are interpolated into the generated SQL, so anything else is
// rejected before rendering.
var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

const slidingWindowTemplate = `WITH windowed AS (
    SELECT *
    FROM events
    WHERE received_at >= '{{.WindowStart}}'
      AND action = 'created'
)
SELECT
    {{.DimensionList}},
    COUNT(*) AS event_count,
    GROUP_CONCAT(event_id, ',') AS event_ids,
    MIN(received_at) AS first_event_time,
    MAX(received_at) AS last_event_time,
    MIN(level) AS alert_level,
    {{.StrategyID}} AS strategy_id
FROM windowed
GROUP BY {{.DimensionList}}
HAVING COUNT(*) >= {{.MinEventCount}}
ORDER BY first_event_time, event_count DESC`

const sessionWindowTemplate = `WITH windowed AS (
    SELECT *
    FROM events
    WHERE received_at >= '{{.WindowStart}}'
      AND received_at <= '{{.SessionEndTime}}'
      AND action = 'created'
)
SELECT
    {{.DimensionList}},
    COUNT(*) AS event_count,
    GROUP_CONCAT(event_id, ',') AS event_ids,
    MIN(received_at) AS first_event_time,
    MAX(received_at) AS last_event_time,
    MIN(level) AS alert_level,
    {{.StrategyID}} AS strategy_id
FROM windowed
GROUP BY {{.DimensionList}}
HAVING COUNT(*) >= {{.MinEventCount}}
ORDER BY first_event_time, event_count DESC`

// The fixed window aligns to wall-clock multiples of the window size and only
// looks at the last fully elapsed window, so a given event is aggregated at
// most once. Not derivable from strategy params; callers construct it
// explicitly.
const fixedWindowTemplate = `WITH windowed AS (
    SELECT *
    FROM events
    WHERE received_at >= '{{.WindowStart}}'
      AND received_at < '{{.WindowEnd}}'
      AND action = 'created'
)
SELECT
    {{.DimensionList}},
    COUNT(*) AS event_count,
    GROUP_CONCAT(event_id, ',') AS event_ids,
    MIN(received_at) AS first_event_time,
    MAX(received_at) AS last_event_time,
    MIN(level) AS alert_level,
    {{.StrategyID}} AS strategy_id
FROM windowed
GROUP BY {{.DimensionList}}
HAVING COUNT(*) >= {{.MinEventCount}}
ORDER BY first_event_time, event_count DESC`

var aggregationTemplates = func() *template.Template {
	root := template.New("aggregation")
	template.Must(root.New("sliding_window").Parse(slidingWindowTemplate))
	template.Must(root.New("session_window").Parse(sessionWindowTemplate))
	template.Must(root.New("fixed_window").Parse(fixedWindowTemplate))
	return root
}()

type templateParams struct {
	DimensionList  string
	WindowStart    string
	WindowEnd      string
	SessionEndTime string
	MinEventCount  int
	StrategyID     int64
}

// Builder renders parameterized aggregation queries from a window config and
// a dimension column list.
type Builder struct {
	templates *template.Template
}

// NewBuilder returns a builder over the built-in named templates.
func NewBuilder() *Builder {
	return &Builder{templates: aggregationTemplates}
}

// BuildAggregationSQL selects the sliding_window or session_window template
// from the window config and renders it for the given dimensions. The window
// boundaries are derived from now.
func (b *Builder) BuildAggregationSQL(dimensions []string, cfg window.Config, strategyID int64, now time.Time) (string, error) {
	list, err := dimensionList(dimensions)
	if err != nil {
		return "", err
	}

	params := templateParams{
		DimensionList: list,
		WindowStart:   formatTime(cfg.WindowStart(now)),
		MinEventCount: minEventCount,
		StrategyID:    strategyID,
	}

	name := "sliding_window"
	if cfg.IsSessionWindow() {
		name = "session_window"
		params.SessionEndTime = formatTime(cfg.SessionEnd(now))
	}

	return b.render(name, params)
}

// BuildFixedWindowSQL renders the fixed_window template over the last fully
// elapsed window aligned to the config's size.
func (b *Builder) BuildFixedWindowSQL(dimensions []string, cfg window.Config, strategyID int64, now time.Time) (string, error) {
	list, err := dimensionList(dimensions)
	if err != nil {
		return "", err
	}

	start, end := FixedWindowBounds(now, cfg.WindowSizeMinutes)
	params := templateParams{
		DimensionList: list,
		WindowStart:   formatTime(start),
		WindowEnd:     formatTime(end),
		MinEventCount: minEventCount,
		StrategyID:    strategyID,
	}

	return b.render("fixed_window", params)
}

// FixedWindowBounds returns the last fully elapsed fixed window before now,
// aligned to wall-clock multiples of the window size.
func FixedWindowBounds(now time.Time, sizeMinutes int) (start, end time.Time) {
	size := time.Duration(sizeMinutes) * time.Minute
	end = now.UTC().Truncate(size)
	return end.Add(-size), end
}

func (b *Builder) render(name string, params templateParams) (string, error) {
	var sb strings.Builder
	if err := b.templates.ExecuteTemplate(&sb, name, params); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return sb.String(), nil
}

// dimensionList validates and joins the group-by columns. Dimension names
// are the only caller-supplied text interpolated into the SQL.
func dimensionList(dimensions []string) (string, error) {
	if len(dimensions) == 0 {
		return "", fmt.Errorf("at least one dimension column is required")
	}
	for _, d := range dimensions {
		if !identifierPattern.MatchString(d) {
			return "", fmt.Errorf("invalid dimension column %q", d)
		}
	}
	return strings.Join(dimensions, ", "), nil
}

// formatTime renders timestamps the way the analytical scope stores them, so
// lexicographic comparison inside the engine matches chronological order.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

package scan

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sgerhart/alertflux/internal/engine"
	"github.com/sgerhart/alertflux/internal/grouping"
	"github.com/sgerhart/alertflux/internal/metrics"
	"github.com/sgerhart/alertflux/internal/model"
	"github.com/sgerhart/alertflux/internal/query"
	"github.com/sgerhart/alertflux/internal/recovery"
	"github.com/sgerhart/alertflux/internal/store"
	"github.com/sgerhart/alertflux/internal/strategy"
	"github.com/sgerhart/alertflux/internal/window"
)

// AlertPublisher pushes created or updated alerts to downstream consumers.
type AlertPublisher interface {
	PublishAlert(alert *model.Alert, created bool) error
}

// Processor runs one strategy's aggregation cycle end to end. Each scan gets
// its own analytical scope, so concurrent scans never share an engine
// session.
type Processor struct {
	store     store.Store
	matcher   *strategy.Matcher
	builder   *Builder
	checker   *recovery.Checker
	queries   *query.Builder
	publisher AlertPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewProcessor creates a Processor. publisher and m may be nil.
func NewProcessor(st store.Store, publisher AlertPublisher, m *metrics.Metrics, logger *slog.Logger) *Processor {
	return &Processor{
		store:     st,
		matcher:   strategy.NewMatcher(logger),
		builder:   NewBuilder(st, m, logger),
		checker:   recovery.NewChecker(st, m, logger),
		queries:   query.NewBuilder(),
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// ProcessStrategy scans one strategy at the given instant: load the window's
// created events, match, aggregate, and fold each group into an alert.
// Engine and query failures propagate to the caller; per-alert write
// failures are logged and counted without aborting the scan.
func (p *Processor) ProcessStrategy(st strategy.Strategy, now time.Time) error {
	cfg := window.FromParams(st.Params)

	events, err := p.store.ListCreatedEventsSince(cfg.WindowStart(now))
	if err != nil {
		return fmt.Errorf("failed to load window events: %w", err)
	}
	if len(events) == 0 {
		p.logger.Info("No events in window, skipping scan",
			"rule_id", st.RuleID,
			"strategy", st.Name)
		return nil
	}

	matched := p.matcher.Match(events, st.MatchRules)
	if len(matched) == 0 {
		p.logger.Info("No events match the strategy rules",
			"rule_id", st.RuleID,
			"strategy", st.Name,
			"window_events", len(events))
		return nil
	}

	dimensionType, err := grouping.ParseDimensionType(st.DimensionType)
	if err != nil {
		p.logger.Warn("Unknown dimension type, falling back to instance grouping",
			"rule_id", st.RuleID,
			"dimension_type", st.DimensionType)
	}
	candidates := grouping.Resolve(dimensionType, st.CustomDimensions)

	scope, err := engine.NewScope(p.logger)
	if err != nil {
		return fmt.Errorf("failed to open analytical scope: %w", err)
	}
	defer scope.Close()

	if err := scope.LoadEvents(matched); err != nil {
		return fmt.Errorf("failed to load events into analytical scope: %w", err)
	}

	eventIndex := make(map[string]model.Event, len(matched))
	for _, ev := range matched {
		eventIndex[ev.EventID] = ev
	}

	// Walk the dimension fallback chain until a grouping produces rows.
	var groups []AggregateGroup
	var chosen []string
	for _, dims := range candidates {
		groups, err = p.aggregate(scope, dims, cfg, st.RuleID, now, eventIndex)
		if err != nil {
			return err
		}
		if len(groups) > 0 {
			chosen = dims
			break
		}
		p.logger.Debug("Dimension set produced no groups, trying next",
			"rule_id", st.RuleID,
			"dimensions", dims)
	}
	if len(groups) == 0 {
		p.logger.Info("No aggregation groups produced",
			"rule_id", st.RuleID,
			"strategy", st.Name,
			"matched_events", len(matched))
		return nil
	}

	p.logger.Info("Aggregation complete",
		"rule_id", st.RuleID,
		"strategy", st.Name,
		"dimensions", chosen,
		"groups", len(groups))

	succeeded, failed, recovered := 0, 0, 0
	for _, group := range groups {
		alert, created, err := p.builder.CreateOrUpdate(group, st, cfg, now)
		if err != nil {
			failed++
			p.logger.Error("Failed to build alert for group",
				"rule_id", st.RuleID,
				"fingerprint", group.Fingerprint,
				"error", err)
			continue
		}
		succeeded++

		wasRecovered, err := p.checker.CheckAndRecover(alert)
		if err != nil {
			p.logger.Error("Recovery check failed",
				"rule_id", st.RuleID,
				"alert_id", alert.AlertID,
				"error", err)
		} else if wasRecovered {
			recovered++
		}

		p.publish(alert, created)
	}

	p.logger.Info("Strategy scan complete",
		"rule_id", st.RuleID,
		"strategy", st.Name,
		"groups", len(groups),
		"succeeded", succeeded,
		"failed", failed,
		"recovered", recovered)
	return nil
}

// aggregate renders the grouping query for one dimension set, executes it,
// and normalizes the rows. Rows with an empty dimension value are dropped
// with a data-quality warning.
func (p *Processor) aggregate(scope *engine.Scope, dims []string, cfg window.Config, ruleID int64, now time.Time, eventIndex map[string]model.Event) ([]AggregateGroup, error) {
	sql, err := p.queries.BuildAggregationSQL(dims, cfg, ruleID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to build aggregation query: %w", err)
	}

	result, err := scope.Execute(sql)
	if err != nil {
		return nil, fmt.Errorf("aggregation query failed: %w", err)
	}

	groups := make([]AggregateGroup, 0, len(result.Rows))
	for _, row := range result.Rows {
		dimensions := make(map[string]string, len(dims))
		complete := true
		for _, d := range dims {
			v, ok := rowString(row[d])
			if !ok || v == "" {
				p.logger.Warn("Aggregation row has an empty dimension value, skipping",
					"rule_id", ruleID,
					"dimension", d)
				if p.metrics != nil {
					p.metrics.IncrementEventsSkipped()
				}
				complete = false
				break
			}
			dimensions[d] = v
		}
		if !complete {
			continue
		}

		eventIDs := splitEventIDs(row["event_ids"])
		rep := representativeEvent(eventIndex, eventIDs)

		groups = append(groups, AggregateGroup{
			Fingerprint:    grouping.Fingerprint(dimensions),
			Dimensions:     dimensions,
			EventIDs:       eventIDs,
			EventCount:     rowInt64(row["event_count"]),
			FirstEventTime: p.rowTime(row["first_event_time"], ruleID),
			LastEventTime:  p.rowTime(row["last_event_time"], ruleID),
			Level:          int(rowInt64(row["alert_level"])),
			Title:          rep.Title,
			Description:    rep.Description,
		})
	}
	return groups, nil
}

func (p *Processor) publish(alert *model.Alert, created bool) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishAlert(alert, created); err != nil {
		p.logger.Warn("Failed to publish alert",
			"alert_id", alert.AlertID,
			"error", err)
		if p.metrics != nil {
			p.metrics.IncrementPublishErrors()
		}
	}
}

// representativeEvent picks the earliest member event; ties break on event
// id so the choice is stable across scans.
func representativeEvent(index map[string]model.Event, eventIDs []string) model.Event {
	var rep model.Event
	found := false
	for _, id := range eventIDs {
		ev, ok := index[id]
		if !ok {
			continue
		}
		if !found || ev.ReceivedAt.Before(rep.ReceivedAt) ||
			(ev.ReceivedAt.Equal(rep.ReceivedAt) && ev.EventID < rep.EventID) {
			rep = ev
			found = true
		}
	}
	return rep
}

func (p *Processor) rowTime(v any, ruleID int64) time.Time {
	s, ok := rowString(v)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		p.logger.Warn("Aggregation row has an unparseable timestamp",
			"rule_id", ruleID,
			"value", s)
		return time.Time{}
	}
	return t
}

func splitEventIDs(v any) []string {
	s, ok := rowString(v)
	if !ok || s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

func rowString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func rowInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case float64:
		return int64(t)
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

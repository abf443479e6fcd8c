// Package window derives scan window boundaries from strategy parameters.
package window

import (
	"strconv"
	"time"
)

// Type selects which aggregation template a scan renders.
type Type string

const (
	Sliding Type = "sliding"
	Session Type = "session"
	Fixed   Type = "fixed"
)

const defaultWindowSizeMinutes = 10

// Config is the ephemeral window derivation computed once per scan from a
// strategy's raw parameters.
type Config struct {
	Type                  Type `json:"type"`
	WindowSizeMinutes     int  `json:"window_size_minutes"`
	SessionTimeoutMinutes int  `json:"session_timeout_minutes,omitempty"`
}

// FromParams builds a window config from a strategy's raw parameter map.
// window_size defaults to 10 minutes. A true time_out flag selects a session
// window whose timeout comes from time_minutes; SessionTimeoutMinutes stays
// zero when time_minutes is unset and SessionEnd falls back to the window
// size instead.
func FromParams(params map[string]any) Config {
	cfg := Config{
		Type:              Sliding,
		WindowSizeMinutes: intParam(params, "window_size", defaultWindowSizeMinutes),
	}
	if boolParam(params, "time_out") {
		cfg.Type = Session
		cfg.SessionTimeoutMinutes = intParam(params, "time_minutes", 0)
	}
	return cfg
}

// IsSessionWindow reports whether the config selects the session template.
func (c Config) IsSessionWindow() bool {
	return c.Type == Session
}

// WindowStart returns the inclusive lower bound on received_at for events in
// scope for a scan running at now.
func (c Config) WindowStart(now time.Time) time.Time {
	return now.Add(-time.Duration(c.WindowSizeMinutes) * time.Minute)
}

// SessionEnd returns the moment an observing session alert is confirmed if
// no recovery arrives before it. Only meaningful for session windows.
func (c Config) SessionEnd(now time.Time) time.Time {
	minutes := c.SessionTimeoutMinutes
	if minutes <= 0 {
		minutes = c.WindowSizeMinutes
	}
	return now.Add(time.Duration(minutes) * time.Minute)
}

// intParam reads a positive integer parameter, coercing the loose types a
// YAML or JSON strategy document can carry.
func intParam(params map[string]any, key string, def int) int {
	v, ok := params[key]
	if !ok || v == nil {
		return def
	}
	switch n := v.(type) {
	case int:
		if n > 0 {
			return n
		}
	case int64:
		if n > 0 {
			return int(n)
		}
	case float64:
		if n > 0 {
			return int(n)
		}
	case string:
		if parsed, err := strconv.Atoi(n); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

func boolParam(params map[string]any, key string) bool {
	v, ok := params[key]
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(b)
		return err == nil && parsed
	}
	return false
}

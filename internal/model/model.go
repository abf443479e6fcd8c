package model

import (
	"time"
)

// EventAction classifies what an incoming event reports about its subject.
type EventAction string

const (
	ActionCreated  EventAction = "created"
	ActionRecovery EventAction = "recovery"
	ActionClosed   EventAction = "closed"
)

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	StatusPending      AlertStatus = "pending"
	StatusProcessing   AlertStatus = "processing"
	StatusUnassigned   AlertStatus = "unassigned"
	StatusAutoRecovery AlertStatus = "auto_recovery"
	StatusAutoClose    AlertStatus = "auto_close"
	StatusClosed       AlertStatus = "closed"
	StatusResolved     AlertStatus = "resolved"
)

// ActivateStatuses is the family of statuses in which an alert is still live
// and eligible for aggregation, recovery, and closure passes.
var ActivateStatuses = []AlertStatus{StatusPending, StatusProcessing, StatusUnassigned}

// IsActive reports whether the status belongs to the activate family.
func (s AlertStatus) IsActive() bool {
	for _, a := range ActivateStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// SessionStatus tracks the observation state of a session-window alert.
// Transitions are monotonic: observing moves to confirmed or recovered and
// never back.
type SessionStatus string

const (
	SessionNone      SessionStatus = ""
	SessionObserving SessionStatus = "observing"
	SessionConfirmed SessionStatus = "confirmed"
	SessionRecovered SessionStatus = "recovered"
)

// Alert levels form a closed ordered set; lower is more severe.
const (
	LevelCritical = 0
	LevelError    = 1
	LevelWarning  = 2
)

// ClampAlertLevel maps an arbitrary event level onto the closed alert level
// set. Values below the most severe level clamp to critical, values above
// the least severe clamp to warning.
func ClampAlertLevel(eventLevel int) int {
	if eventLevel < LevelCritical {
		return LevelCritical
	}
	if eventLevel > LevelWarning {
		return LevelWarning
	}
	return eventLevel
}

// Event is an immutable raw occurrence reported by a monitoring source.
// Events are written once by the intake pipeline and only ever associated
// to zero or more alerts afterwards.
type Event struct {
	EventID      string            `json:"event_id"`
	ExternalID   string            `json:"external_id,omitempty"`
	Action       EventAction       `json:"action"`
	ReceivedAt   time.Time         `json:"received_at"`
	Level        int               `json:"level"`
	Title        string            `json:"title"`
	Description  string            `json:"description,omitempty"`
	ResourceName string            `json:"resource_name,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	ResourceType string            `json:"resource_type,omitempty"`
	Item         string            `json:"item,omitempty"`
	SourceID     string            `json:"source_id,omitempty"`
	Service      string            `json:"service,omitempty"`
	Location     string            `json:"location,omitempty"`
	EventType    string            `json:"event_type,omitempty"`
	Labels       map[string]string `json:"labels,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
}

// Alert aggregates events sharing one fingerprint within one strategy's
// window scope. Version carries the optimistic concurrency counter checked
// by every store update.
type Alert struct {
	AlertID        string        `json:"alert_id"`
	Fingerprint    string        `json:"fingerprint"`
	RuleID         int64         `json:"rule_id"`
	Status         AlertStatus   `json:"status"`
	Level          int           `json:"level"`
	Title          string        `json:"title"`
	Content        string        `json:"content,omitempty"`
	IsSessionAlert bool          `json:"is_session_alert"`
	SessionStatus  SessionStatus `json:"session_status,omitempty"`
	SessionEndTime *time.Time    `json:"session_end_time,omitempty"`
	FirstEventTime time.Time     `json:"first_event_time"`
	LastEventTime  time.Time     `json:"last_event_time"`
	Version        int64         `json:"version"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// eventColumns lists the flat columns the analytical scope exposes for
// grouping. Labels and tags are carried as JSON strings and are not
// groupable dimensions.
var eventColumns = map[string]bool{
	"event_id":      true,
	"external_id":   true,
	"action":        true,
	"received_at":   true,
	"level":         true,
	"title":         true,
	"description":   true,
	"resource_name": true,
	"resource_id":   true,
	"resource_type": true,
	"item":          true,
	"source_id":     true,
	"service":       true,
	"location":      true,
	"event_type":    true,
}

// IsEventColumn reports whether name is a groupable event column.
func IsEventColumn(name string) bool {
	return eventColumns[name]
}

// DimensionValue returns the event's value for a grouping dimension column.
// Unknown columns fall through to the labels and tags maps.
func (e *Event) DimensionValue(name string) string {
	switch name {
	case "event_id":
		return e.EventID
	case "external_id":
		return e.ExternalID
	case "title":
		return e.Title
	case "description":
		return e.Description
	case "resource_name":
		return e.ResourceName
	case "resource_id":
		return e.ResourceID
	case "resource_type":
		return e.ResourceType
	case "item":
		return e.Item
	case "source_id":
		return e.SourceID
	case "service":
		return e.Service
	case "location":
		return e.Location
	case "event_type":
		return e.EventType
	}
	if v, ok := e.Labels[name]; ok {
		return v
	}
	return e.Tags[name]
}

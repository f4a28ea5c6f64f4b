package observability

import (
	"fmt"
	"sort"
	"time"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`

	// Set when the alert comes from a single document action.
	Title        string `json:"title,omitempty"`
	DocumentID   int    `json:"document_id,omitempty"`
	DocumentName string `json:"document_name,omitempty"`
	ProjectID    string `json:"project_id,omitempty"`
}

// AlertThresholds configures when alerts fire. Counts are taken over the
// trailing Window.
type AlertThresholds struct {
	Window             time.Duration
	MaxFailures        int
	MaxNetworkFailures int
	MaxRollbacks       int
	// StuckPoll is how long a project may keep polling before its documents
	// are considered stuck.
	StuckPoll time.Duration
}

// DefaultAlertThresholds returns the thresholds used when none are configured.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		Window:             time.Hour,
		MaxFailures:        5,
		MaxNetworkFailures: 3,
		MaxRollbacks:       2,
		StuckPoll:          30 * time.Minute,
	}
}

// AlertEngine evaluates alert conditions against the event log.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

type alertEngine struct {
	eventLog   EventLog
	thresholds AlertThresholds
	now        func() time.Time
}

// NewAlertEngine creates an AlertEngine over eventLog.
func NewAlertEngine(eventLog EventLog, thresholds AlertThresholds) AlertEngine {
	return &alertEngine{eventLog: eventLog, thresholds: thresholds, now: time.Now}
}

func (ae *alertEngine) Evaluate() ([]Alert, error) {
	now := ae.now().UTC()
	since := now.Add(-ae.thresholds.Window)

	recent, err := ae.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading recent events: %w", err)
	}

	var alerts []Alert
	alerts = append(alerts, ae.checkFailures(now, recent)...)
	alerts = append(alerts, ae.checkRollbacks(now, recent)...)

	polls, err := ae.checkStuckPolling(now)
	if err != nil {
		return nil, fmt.Errorf("checking polling: %w", err)
	}
	alerts = append(alerts, polls...)
	return alerts, nil
}

func (ae *alertEngine) checkFailures(now time.Time, events []Event) []Alert {
	total, network := 0, 0
	for _, e := range events {
		if e.Type != EventActionFailed {
			continue
		}
		total++
		if kind, _ := e.Data["kind"].(string); kind == "network" {
			network++
		}
	}

	var alerts []Alert
	if total > ae.thresholds.MaxFailures {
		alerts = append(alerts, Alert{
			ID:          "failures",
			Condition:   "too_many_failures",
			Severity:    SeverityHigh,
			Message:     fmt.Sprintf("%d actions failed in the last %s (limit %d)", total, ae.thresholds.Window, ae.thresholds.MaxFailures),
			TriggeredAt: now,
		})
	}
	if network > ae.thresholds.MaxNetworkFailures {
		alerts = append(alerts, Alert{
			ID:          "network",
			Condition:   "backend_unreachable",
			Severity:    SeverityHigh,
			Message:     fmt.Sprintf("%d network failures in the last %s; the backend may be down", network, ae.thresholds.Window),
			TriggeredAt: now,
		})
	}
	return alerts
}

func (ae *alertEngine) checkRollbacks(now time.Time, events []Event) []Alert {
	n := 0
	for _, e := range events {
		if e.Type == EventDeleteRolledBack {
			n++
		}
	}
	if n <= ae.thresholds.MaxRollbacks {
		return nil
	}
	return []Alert{{
		ID:          "rollbacks",
		Condition:   "delete_rollbacks",
		Severity:    SeverityMedium,
		Message:     fmt.Sprintf("%d deletes were rolled back in the last %s", n, ae.thresholds.Window),
		TriggeredAt: now,
	}}
}

// checkStuckPolling flags projects whose last poll.started has no later
// poll.stopped and is older than the threshold.
func (ae *alertEngine) checkStuckPolling(now time.Time) ([]Alert, error) {
	events, err := ae.eventLog.Read(EventFilter{})
	if err != nil {
		return nil, err
	}

	started := make(map[string]time.Time)
	for _, e := range events {
		projectID, _ := e.Data["project_id"].(string)
		switch e.Type {
		case EventPollStarted:
			started[projectID] = e.Time
		case EventPollStopped:
			delete(started, projectID)
		}
	}

	ids := make([]string, 0, len(started))
	for id := range started {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var alerts []Alert
	for _, id := range ids {
		if now.Sub(started[id]) <= ae.thresholds.StuckPoll {
			continue
		}
		label := id
		if label == "" {
			label = "all projects"
		}
		alerts = append(alerts, Alert{
			ID:          "stuck-" + id,
			Condition:   "documents_stuck",
			Severity:    SeverityLow,
			Message:     fmt.Sprintf("documents in %s have been processing for more than %s", label, ae.thresholds.StuckPoll),
			TriggeredAt: now,
			ProjectID:   id,
		})
	}
	return alerts, nil
}

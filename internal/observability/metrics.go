package observability

import (
	"fmt"
	"time"
)

// Metrics summarises activity recorded in the event log.
type Metrics struct {
	DocumentsUploaded   int            `json:"documents_uploaded"`
	DocumentsDeleted    int            `json:"documents_deleted"`
	DocumentsDownloaded int            `json:"documents_downloaded"`
	DocumentsRetried    int            `json:"documents_retried"`
	KBUploads           int            `json:"kb_uploads"`
	KBRebuilds          int            `json:"kb_rebuilds"`
	DeleteRollbacks     int            `json:"delete_rollbacks"`
	PollSessions        int            `json:"poll_sessions"`
	Failures            int            `json:"failures"`
	FailuresByKind      map[string]int `json:"failures_by_kind"`
	UploadsByType       map[string]int `json:"uploads_by_type"`
	BytesDownloaded     int64          `json:"bytes_downloaded"`
	EventCount          int            `json:"event_count"`
	OldestEvent         *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent         *time.Time     `json:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a MetricsCalculator reading from eventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate aggregates every event at or after since.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		FailuresByKind: make(map[string]int),
		UploadsByType:  make(map[string]int),
		EventCount:     len(events),
	}

	for i, event := range events {
		t := event.Time
		if i == 0 {
			m.OldestEvent = &t
		}
		m.NewestEvent = &t

		switch event.Type {
		case EventDocumentUploaded:
			m.DocumentsUploaded++
			if typ, ok := event.Data["type"].(string); ok {
				m.UploadsByType[typ]++
			}
		case EventDocumentDeleted:
			m.DocumentsDeleted++
		case EventDocumentDownloaded:
			m.DocumentsDownloaded++
			// JSON numbers decode as float64.
			if n, ok := event.Data["bytes"].(float64); ok {
				m.BytesDownloaded += int64(n)
			}
		case EventDocumentRetried:
			m.DocumentsRetried++
		case EventDocumentKBUploaded:
			m.KBUploads++
		case EventKnowledgeBaseRebuilt:
			m.KBRebuilds++
		case EventDeleteRolledBack:
			m.DeleteRollbacks++
		case EventPollStarted:
			m.PollSessions++
		case EventActionFailed:
			m.Failures++
			kind, _ := event.Data["kind"].(string)
			if kind == "" {
				kind = "unknown"
			}
			m.FailuresByKind[kind]++
		}
	}

	return m, nil
}

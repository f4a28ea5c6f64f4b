package observability

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// Event types written by riskdesk.
const (
	EventDocumentDeleted      = "document.deleted"
	EventDeleteRolledBack     = "document.delete_rolled_back"
	EventDocumentDownloaded   = "document.downloaded"
	EventDocumentRetried      = "document.retried"
	EventDocumentKBUploaded   = "document.kb_uploaded"
	EventDocumentUploaded     = "document.uploaded"
	EventKnowledgeBaseRebuilt = "kb.rebuilt"
	EventPollStarted          = "poll.started"
	EventPollStopped          = "poll.stopped"
	EventActionFailed         = "action.failed"
)

// Event is one line of the activity log.
type Event struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"` // INFO, WARN, ERROR
	Type    string         `json:"type"`
	Message string         `json:"msg"`
	Data    map[string]any `json:"data,omitempty"`
}

// EventFilter selects events on Read. Zero fields match everything.
type EventFilter struct {
	Since *time.Time
	Until *time.Time
	Type  string
	Level string
	// ProjectID matches events whose data carries the same project_id.
	ProjectID string
}

// EventLog appends events and reads them back.
type EventLog interface {
	Write(event Event) error
	Read(filter EventFilter) ([]Event, error)
	Close() error
}

type jsonlEventLog struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// NewJSONLEventLog opens (or creates) an append-only JSONL log at path.
func NewJSONLEventLog(path string) (EventLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &jsonlEventLog{path: path, file: f}, nil
}

func (l *jsonlEventLog) Write(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	return nil
}

// Read scans the whole file. Malformed lines are skipped and a missing file
// reads as empty.
func (l *jsonlEventLog) Read(filter EventFilter) ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening event log for reading: %w", err)
	}
	defer func() { _ = f.Close() }()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		if filter.matches(event) {
			events = append(events, event)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning event log: %w", err)
	}
	return events, nil
}

func (l *jsonlEventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing event log: %w", err)
	}
	return nil
}

func (f EventFilter) matches(event Event) bool {
	if f.Since != nil && event.Time.Before(*f.Since) {
		return false
	}
	if f.Until != nil && event.Time.After(*f.Until) {
		return false
	}
	if f.Type != "" && event.Type != f.Type {
		return false
	}
	if f.Level != "" && event.Level != f.Level {
		return false
	}
	if f.ProjectID != "" {
		if id, _ := event.Data["project_id"].(string); id != f.ProjectID {
			return false
		}
	}
	return true
}

// Recorder writes activity events to an EventLog, deriving the level from the
// event type. It satisfies the LogEvent interfaces of the action and list
// packages. A Recorder with a nil log drops every event.
type Recorder struct {
	Log EventLog
	Now func() time.Time
}

// LogEvent writes one event.
func (r *Recorder) LogEvent(eventType string, data map[string]any) error {
	if r == nil || r.Log == nil {
		return nil
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	return r.Log.Write(Event{
		Time:    now().UTC(),
		Level:   LevelFor(eventType),
		Type:    eventType,
		Message: strings.ReplaceAll(eventType, "_", " "),
		Data:    data,
	})
}

// LevelFor maps an event type to its log level.
func LevelFor(eventType string) string {
	switch {
	case eventType == EventActionFailed:
		return "ERROR"
	case strings.HasSuffix(eventType, "rolled_back"):
		return "WARN"
	default:
		return "INFO"
	}
}

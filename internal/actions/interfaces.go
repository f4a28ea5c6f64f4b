package actions

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/valter-silva-au/riskdesk/pkg/models"
)

// Prompt is a yes/no question shown before a mutating action.
type Prompt struct {
	Title   string
	Message string
	// Danger asks the UI to style the prompt as destructive.
	Danger bool
}

// Confirmer asks the user to approve an action.
type Confirmer interface {
	Confirm(p Prompt) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(p Prompt) bool

// Confirm calls f.
func (f ConfirmFunc) Confirm(p Prompt) bool { return f(p) }

// AlwaysConfirm approves every prompt; used by non-interactive commands run
// with --yes.
var AlwaysConfirm = ConfirmFunc(func(Prompt) bool { return true })

// Level is the severity of a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notice is a non-blocking user notification.
type Notice struct {
	Level   Level
	Title   string
	Message string
	Time    time.Time

	// The document or project the notice is about, when there is one.
	DocumentID   int
	DocumentName string
	ProjectID    string
}

// Notifier surfaces notices to the user.
type Notifier interface {
	Notify(n Notice)
}

// Recorder is a Notifier that keeps every notice in memory.
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

// Notify records n.
func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

// Notices returns a copy of the recorded notices.
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}

// Count returns how many notices of level were recorded.
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, x := range r.notices {
		if x.Level == level {
			n++
		}
	}
	return n
}

// Saver persists a downloaded document.
type Saver interface {
	Save(name string, data []byte) (string, error)
}

// DirSaver writes downloads into a directory.
type DirSaver struct {
	Dir string
}

// Save writes data to Dir/name and returns the resulting path. An existing
// file is not overwritten; a numeric suffix is added instead.
func (s DirSaver) Save(name string, data []byte) (string, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating download dir: %w", err)
	}
	base := filepath.Base(name)
	path := filepath.Join(dir, base)
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]
	for i := 1; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		path = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// EventLogger records activity events.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}

// Op names a confirmable action.
type Op string

const (
	OpDelete     Op = "delete"
	OpRetry      Op = "retry"
	OpUploadToKB Op = "upload_to_kb"
	OpRebuildKB  Op = "rebuild_kb"
)

// PromptFor builds the confirmation shown before op runs on doc. For
// OpRebuildKB only doc.ProjectID is used.
func PromptFor(op Op, doc models.Document) Prompt {
	switch op {
	case OpDelete:
		return Prompt{
			Title:   "Delete document",
			Message: fmt.Sprintf("Delete %q? This cannot be undone.", doc.Name),
			Danger:  true,
		}
	case OpRetry:
		what := "processing"
		if doc.Status == models.DocStatusKBParseFailed {
			what = "knowledge base parsing"
		}
		return Prompt{
			Title:   "Retry " + what,
			Message: fmt.Sprintf("Retry %s for %q?", what, doc.Name),
		}
	case OpUploadToKB:
		return Prompt{
			Title:   "Upload to knowledge base",
			Message: fmt.Sprintf("Upload %q to the knowledge base?", doc.Name),
		}
	case OpRebuildKB:
		return Prompt{
			Title:   "Rebuild knowledge base",
			Message: fmt.Sprintf("Rebuild the knowledge base for project %s? Existing entries will be replaced.", doc.ProjectID),
			Danger:  true,
		}
	default:
		return Prompt{Title: string(op), Message: "Continue?"}
	}
}

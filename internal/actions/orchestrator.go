// Package actions performs user commands on documents and projects. Mutating
// commands ask for confirmation, update the list optimistically where that is
// safe and report every outcome as a notification.
package actions

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/valter-silva-au/riskdesk/internal/api"
	"github.com/valter-silva-au/riskdesk/internal/events"
	"github.com/valter-silva-au/riskdesk/internal/present"
	"github.com/valter-silva-au/riskdesk/internal/reconcile"
	"github.com/valter-silva-au/riskdesk/pkg/models"
)

var (
	// ErrCancelled is returned when the user declines a confirmation.
	ErrCancelled = errors.New("action cancelled")
	// ErrInFlight is returned when a retry for the same document is running.
	ErrInFlight = errors.New("retry already in progress")
)

// Deps wires an Orchestrator to its collaborators. Backend is required; a nil
// Store starts empty, which suits project-level actions.
type Deps struct {
	Backend api.Backend
	Store   *reconcile.Store
	Confirm Confirmer
	Notify  Notifier
	Saver   Saver
	Bus     *events.Bus
	Events  EventLogger

	// Refresh triggers a silent re-fetch of the document list.
	Refresh func(ctx context.Context)
	// OnDocumentCountChanged lets the project list update its badges.
	OnDocumentCountChanged func(projectID string)
}

// Orchestrator runs document and project actions.
type Orchestrator struct {
	deps Deps
	exec *Executor

	mu       sync.Mutex
	retrying map[int]bool
}

// New creates an Orchestrator.
func New(deps Deps) *Orchestrator {
	if deps.Store == nil {
		deps.Store = reconcile.NewStore(nil)
	}
	if deps.Confirm == nil {
		deps.Confirm = AlwaysConfirm
	}
	if deps.Notify == nil {
		deps.Notify = &Recorder{}
	}
	if deps.Saver == nil {
		deps.Saver = DirSaver{Dir: "."}
	}
	if deps.Bus == nil {
		deps.Bus = events.NewBus()
	}
	return &Orchestrator{
		deps:     deps,
		exec:     NewExecutor(deps.Store),
		retrying: make(map[int]bool),
	}
}

// Delete removes a document after confirmation. The document disappears from
// the list immediately and is put back if the backend call fails.
func (o *Orchestrator) Delete(ctx context.Context, id int) error {
	doc, err := o.lookup(id)
	if err != nil {
		return err
	}
	if !o.deps.Confirm.Confirm(PromptFor(OpDelete, doc)) {
		return ErrCancelled
	}

	err = o.exec.Run(ctx, Action{
		Name: "delete",
		Apply: func(docs []models.Document) []models.Document {
			return removeByID(docs, id)
		},
		Commit: func(ctx context.Context) error {
			return o.deps.Backend.DeleteDocument(ctx, id)
		},
		Rollback: func(current, _ []models.Document) []models.Document {
			return insertSorted(current, doc)
		},
	})
	if err != nil {
		o.fail("Delete failed", err, doc)
		o.log("document.delete_rolled_back", map[string]any{"document_id": id, "project_id": doc.ProjectID, "error": err.Error()})
		return err
	}

	if o.deps.OnDocumentCountChanged != nil {
		o.deps.OnDocumentCountChanged(doc.ProjectID)
	}
	o.success("Document deleted", fmt.Sprintf("%s was deleted.", doc.Name))
	o.log("document.deleted", map[string]any{"document_id": id, "project_id": doc.ProjectID})
	return nil
}

// Download fetches a document and saves it, returning the saved path.
func (o *Orchestrator) Download(ctx context.Context, id int) (string, error) {
	doc, err := o.lookup(id)
	if err != nil {
		return "", err
	}
	data, err := o.deps.Backend.DownloadDocument(ctx, id)
	if err != nil {
		o.fail("Download failed", err, doc)
		return "", err
	}
	path, err := o.deps.Saver.Save(DownloadName(doc), data)
	if err != nil {
		o.fail("Download failed", err, doc)
		return "", err
	}
	o.success("Download complete", path)
	o.log("document.downloaded", map[string]any{"document_id": id, "path": path, "bytes": len(data)})
	return path, nil
}

// Retry re-queues a failed document. Concurrent retries of the same document
// are ignored until the first one resolves.
func (o *Orchestrator) Retry(ctx context.Context, id int) error {
	doc, err := o.lookup(id)
	if err != nil {
		return err
	}
	if !doc.Status.IsFailed() {
		err := api.Validationf("document %d is %s; only failed documents can be retried", id, doc.Status)
		o.fail("Cannot retry", err, doc)
		return err
	}

	o.mu.Lock()
	if o.retrying[id] {
		o.mu.Unlock()
		return ErrInFlight
	}
	o.retrying[id] = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.retrying, id)
		o.mu.Unlock()
	}()

	if !o.deps.Confirm.Confirm(PromptFor(OpRetry, doc)) {
		return ErrCancelled
	}

	retry := o.deps.Backend.RetryProcessing
	if doc.Status == models.DocStatusKBParseFailed {
		retry = o.deps.Backend.RetryKnowledgeBaseParsing
	}
	err = o.exec.Run(ctx, Action{
		Name:   "retry",
		Commit: func(ctx context.Context) error { return retry(ctx, id) },
	})
	if err != nil {
		o.fail("Retry failed", err, doc)
		return err
	}

	o.success("Retry started", fmt.Sprintf("%s was queued again.", doc.Name))
	o.log("document.retried", map[string]any{"document_id": id, "from_status": string(doc.Status)})
	o.refresh(ctx)
	return nil
}

// Retrying reports whether a retry for id is in flight.
func (o *Orchestrator) Retrying(id int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.retrying[id]
}

// UploadToKnowledgeBase sends a processed document to the knowledge base. The
// status change is observed through polling, not applied locally.
func (o *Orchestrator) UploadToKnowledgeBase(ctx context.Context, id int) error {
	doc, err := o.lookup(id)
	if err != nil {
		return err
	}
	if doc.Status != models.DocStatusProcessed {
		err := api.Validationf("document %d is %s; only processed documents can be uploaded to the knowledge base", id, doc.Status)
		o.fail("Cannot upload to knowledge base", err, doc)
		return err
	}
	if !o.deps.Confirm.Confirm(PromptFor(OpUploadToKB, doc)) {
		return ErrCancelled
	}

	err = o.exec.Run(ctx, Action{
		Name:   "upload_to_kb",
		Commit: func(ctx context.Context) error { return o.deps.Backend.UploadToKnowledgeBase(ctx, id) },
	})
	if err != nil {
		o.fail("Knowledge base upload failed", err, doc)
		return err
	}

	o.success("Knowledge base upload started", doc.Name)
	o.log("document.kb_uploaded", map[string]any{"document_id": id})
	o.refresh(ctx)
	return nil
}

// RebuildKnowledgeBase triggers a rebuild for a whole project and tells open
// document lists for that project to refresh immediately.
func (o *Orchestrator) RebuildKnowledgeBase(ctx context.Context, projectID string) error {
	if projectID == "" {
		err := api.Validationf("no project selected")
		o.fail("Cannot rebuild knowledge base", err, models.Document{})
		return err
	}
	if !o.deps.Confirm.Confirm(PromptFor(OpRebuildKB, models.Document{ProjectID: projectID})) {
		return ErrCancelled
	}

	err := o.exec.Run(ctx, Action{
		Name:   "rebuild_kb",
		Commit: func(ctx context.Context) error { return o.deps.Backend.RebuildKnowledgeBase(ctx, projectID) },
	})
	if err != nil {
		o.fail("Knowledge base rebuild failed", err, models.Document{ProjectID: projectID})
		return err
	}

	o.success("Knowledge base rebuild started", "")
	o.log("kb.rebuilt", map[string]any{"project_id": projectID})
	o.deps.Bus.Publish(events.KnowledgeBaseRebuilt{ProjectID: projectID})
	return nil
}

// Upload creates a document in a project. The type is inferred from the file
// name when not given.
func (o *Orchestrator) Upload(ctx context.Context, req api.UploadRequest) (*models.Document, error) {
	if req.ProjectID == "" {
		err := api.Validationf("no project selected")
		o.fail("Upload failed", err, models.Document{Name: req.Name, ProjectID: req.ProjectID})
		return nil, err
	}
	if req.Name == "" && req.FileName != "" {
		req.Name = filepath.Base(req.FileName)
	}
	if strings.TrimSpace(req.Name) == "" {
		err := api.Validationf("document name is required")
		o.fail("Upload failed", err, models.Document{Name: req.Name, ProjectID: req.ProjectID})
		return nil, err
	}
	if req.Type == "" {
		t, ok := present.TypeFromFileName(req.FileName)
		if !ok {
			t, ok = present.TypeFromFileName(req.Name)
		}
		if !ok {
			err := api.Validationf("cannot infer document type from %q", req.FileName)
			o.fail("Upload failed", err, models.Document{Name: req.Name, ProjectID: req.ProjectID})
			return nil, err
		}
		req.Type = t
	}
	if !req.Type.Valid() {
		err := api.Validationf("unsupported document type %q", req.Type)
		o.fail("Upload failed", err, models.Document{Name: req.Name, ProjectID: req.ProjectID})
		return nil, err
	}

	doc, err := o.deps.Backend.UploadDocument(ctx, req)
	if err != nil {
		o.fail("Upload failed", err, models.Document{Name: req.Name, ProjectID: req.ProjectID})
		return nil, err
	}

	if o.deps.OnDocumentCountChanged != nil {
		o.deps.OnDocumentCountChanged(req.ProjectID)
	}
	o.success("Upload started", doc.Name)
	o.log("document.uploaded", map[string]any{"document_id": doc.ID, "project_id": req.ProjectID, "type": string(req.Type)})
	o.refresh(ctx)
	return doc, nil
}

// DownloadName returns the file name used when saving doc, adding an
// extension derived from its type unless the name already ends in a known
// document extension.
func DownloadName(doc models.Document) string {
	name := strings.TrimSpace(doc.Name)
	if name == "" {
		name = fmt.Sprintf("document-%d", doc.ID)
	}
	if _, ok := present.TypeFromFileName(name); ok {
		return name
	}
	return name + present.Extension(doc.Type)
}

// --- Helpers ---

func (o *Orchestrator) lookup(id int) (models.Document, error) {
	doc, ok := o.deps.Store.Find(id)
	if !ok {
		err := api.Validationf("document %d is not in the current list", id)
		o.fail("Document not found", err, models.Document{ID: id})
		return models.Document{}, err
	}
	return doc, nil
}

func (o *Orchestrator) refresh(ctx context.Context) {
	if o.deps.Refresh != nil {
		o.deps.Refresh(ctx)
	}
}

func (o *Orchestrator) success(title, msg string) {
	o.deps.Notify.Notify(Notice{Level: LevelSuccess, Title: title, Message: msg, Time: time.Now()})
}

// fail reports err as an error notice about subject, which may be zero.
func (o *Orchestrator) fail(title string, err error, subject models.Document) {
	switch api.Classify(err) {
	case api.KindNetwork:
		title += " (network)"
	case api.KindValidation:
		title += " (invalid request)"
	}
	o.deps.Notify.Notify(Notice{
		Level:        LevelError,
		Title:        title,
		Message:      api.Message(err),
		Time:         time.Now(),
		DocumentID:   subject.ID,
		DocumentName: subject.Name,
		ProjectID:    subject.ProjectID,
	})
	data := map[string]any{"title": title, "kind": string(api.Classify(err)), "error": err.Error()}
	if subject.ID != 0 {
		data["document_id"] = subject.ID
	}
	if subject.ProjectID != "" {
		data["project_id"] = subject.ProjectID
	}
	o.log("action.failed", data)
}

func (o *Orchestrator) log(eventType string, data map[string]any) {
	if o.deps.Events != nil {
		_ = o.deps.Events.LogEvent(eventType, data)
	}
}

func removeByID(docs []models.Document, id int) []models.Document {
	out := docs[:0]
	for _, d := range docs {
		if d.ID != id {
			out = append(out, d)
		}
	}
	return out
}

// insertSorted puts doc back before the first document with a larger id,
// leaving the order of the other documents untouched. Nothing happens if
// the id is already present.
func insertSorted(docs []models.Document, doc models.Document) []models.Document {
	for _, d := range docs {
		if d.ID == doc.ID {
			return docs
		}
	}
	i := len(docs)
	for j, d := range docs {
		if d.ID > doc.ID {
			i = j
			break
		}
	}
	out := make([]models.Document, 0, len(docs)+1)
	out = append(out, docs[:i]...)
	out = append(out, doc)
	return append(out, docs[i:]...)
}

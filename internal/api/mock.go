package api

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/valter-silva-au/riskdesk/pkg/models"
)

// Mock operation names, used with FailNext.
const (
	OpListDocuments    = "list_documents"
	OpUploadDocument   = "upload_document"
	OpDeleteDocument   = "delete_document"
	OpDownloadDocument = "download_document"
	OpRetryProcessing  = "retry_processing"
	OpUploadToKB       = "upload_to_kb"
	OpRetryKBParsing   = "retry_kb_parsing"
	OpListProjects     = "list_projects"
	OpGetProject       = "get_project"
	OpCreateProject    = "create_project"
	OpRebuildKB        = "rebuild_kb"
	OpGetStats         = "get_stats"
)

const (
	progressStep        = 50
	mockUploadTimeStamp = "2006-01-02 15:04"
)

// MockBackend is an in-memory Backend. Each ListDocuments call advances
// transient documents by one step so polling can be exercised without a
// real server.
type MockBackend struct {
	mu          sync.Mutex
	projects    []models.Project
	docs        map[int]models.Document
	contents    map[int][]byte
	nextID      int
	autoAdvance bool
	latency     time.Duration
	failures    map[string]error
	now         func() time.Time
}

// NewMockBackend creates a mock backend holding a copy of seed.
func NewMockBackend(seed Seed) *MockBackend {
	m := &MockBackend{
		docs:        make(map[int]models.Document),
		contents:    make(map[int][]byte),
		autoAdvance: true,
		failures:    make(map[string]error),
		now:         time.Now,
	}
	m.projects = append(m.projects, seed.Projects...)
	for _, d := range seed.Documents {
		m.docs[d.ID] = d
		if d.ID >= m.nextID {
			m.nextID = d.ID + 1
		}
	}
	if m.nextID == 0 {
		m.nextID = 1
	}
	m.recountLocked()
	return m
}

// SetAutoAdvance toggles the simulated status progression.
func (m *MockBackend) SetAutoAdvance(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoAdvance = on
}

// SetLatency makes every call wait d (or until ctx is done).
func (m *MockBackend) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

// FailNext makes the next call of op fail with err. A nil err yields an
// AppError with a generic message.
func (m *MockBackend) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		err = &AppError{Op: op, Message: "simulated failure"}
	}
	m.failures[op] = err
}

// SetStatus forces a document into status; used by demos and tests.
func (m *MockBackend) SetStatus(id int, status models.DocumentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.docs[id]; ok {
		d.Status = status
		m.docs[id] = d
	}
}

func (m *MockBackend) begin(ctx context.Context, op string) error {
	m.mu.Lock()
	latency := m.latency
	err := m.failures[op]
	delete(m.failures, op)
	m.mu.Unlock()

	if latency > 0 {
		t := time.NewTimer(latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return &NetworkError{Op: op, Err: ctx.Err()}
		case <-t.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	return err
}

func (m *MockBackend) ListDocuments(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	if err := m.begin(ctx, OpListDocuments); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.autoAdvance {
		m.advanceLocked()
	}

	search := strings.ToLower(filter.Search)
	out := make([]models.Document, 0, len(m.docs))
	for _, d := range m.docs {
		if filter.ProjectID != "" && d.ProjectID != filter.ProjectID {
			continue
		}
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(d.Name), search) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockBackend) UploadDocument(ctx context.Context, req UploadRequest) (*models.Document, error) {
	if err := m.begin(ctx, OpUploadDocument); err != nil {
		return nil, err
	}
	var content []byte
	if req.Content != nil {
		data, err := io.ReadAll(req.Content)
		if err != nil {
			return nil, fmt.Errorf("reading upload content: %w", err)
		}
		content = data
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.projectLocked(req.ProjectID)
	if p == nil {
		return nil, &AppError{Op: OpUploadDocument, StatusCode: 404, Message: "project not found"}
	}
	doc := models.Document{
		ID:         m.nextID,
		Name:       req.Name,
		Project:    p.Name,
		ProjectID:  p.ID,
		Type:       req.Type,
		Size:       humanize.Bytes(uint64(len(content))),
		Status:     models.DocStatusUploading,
		UploadTime: m.now().Format(mockUploadTimeStamp),
	}
	m.nextID++
	m.docs[doc.ID] = doc
	m.contents[doc.ID] = content
	m.recountLocked()
	return &doc, nil
}

func (m *MockBackend) DeleteDocument(ctx context.Context, id int) error {
	if err := m.begin(ctx, OpDeleteDocument); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return &AppError{Op: OpDeleteDocument, StatusCode: 404, Message: "document not found"}
	}
	delete(m.docs, id)
	delete(m.contents, id)
	m.recountLocked()
	return nil
}

func (m *MockBackend) DownloadDocument(ctx context.Context, id int) ([]byte, error) {
	if err := m.begin(ctx, OpDownloadDocument); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, &AppError{Op: OpDownloadDocument, StatusCode: 404, Message: "document not found"}
	}
	if c, ok := m.contents[id]; ok && len(c) > 0 {
		return append([]byte(nil), c...), nil
	}
	return []byte(fmt.Sprintf("mock content of %s\n", d.Name)), nil
}

func (m *MockBackend) RetryProcessing(ctx context.Context, id int) error {
	if err := m.begin(ctx, OpRetryProcessing); err != nil {
		return err
	}
	return m.transition(OpRetryProcessing, id, models.DocStatusFailed, models.DocStatusProcessing, 0)
}

func (m *MockBackend) UploadToKnowledgeBase(ctx context.Context, id int) error {
	if err := m.begin(ctx, OpUploadToKB); err != nil {
		return err
	}
	return m.transition(OpUploadToKB, id, models.DocStatusProcessed, models.DocStatusUploadingToKB, 0)
}

func (m *MockBackend) RetryKnowledgeBaseParsing(ctx context.Context, id int) error {
	if err := m.begin(ctx, OpRetryKBParsing); err != nil {
		return err
	}
	return m.transition(OpRetryKBParsing, id, models.DocStatusKBParseFailed, models.DocStatusParsingKB, 0)
}

func (m *MockBackend) transition(op string, id int, from, to models.DocumentStatus, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return &AppError{Op: op, StatusCode: 404, Message: "document not found"}
	}
	if d.Status != from {
		return &AppError{Op: op, StatusCode: 409, Message: fmt.Sprintf("document is %s, expected %s", d.Status, from)}
	}
	d.Status = to
	d.Progress = progress
	m.docs[id] = d
	return nil
}

func (m *MockBackend) ListProjects(ctx context.Context) ([]models.Project, error) {
	if err := m.begin(ctx, OpListProjects); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Project(nil), m.projects...), nil
}

func (m *MockBackend) GetProject(ctx context.Context, id string) (*models.Project, error) {
	if err := m.begin(ctx, OpGetProject); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.projectLocked(id)
	if p == nil {
		return nil, &AppError{Op: OpGetProject, StatusCode: 404, Message: "project not found"}
	}
	cp := *p
	return &cp, nil
}

func (m *MockBackend) CreateProject(ctx context.Context, np models.NewProject) (*models.Project, error) {
	if err := m.begin(ctx, OpCreateProject); err != nil {
		return nil, err
	}
	if strings.TrimSpace(np.Name) == "" {
		return nil, &AppError{Op: OpCreateProject, StatusCode: 400, Message: "project name is required"}
	}
	if np.Type == "" {
		np.Type = models.ProjectTypeEnterprise
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := models.Project{
		ID:     uuid.NewString(),
		Name:   np.Name,
		Type:   np.Type,
		Status: models.ProjectStatusCollecting,
	}
	m.projects = append(m.projects, p)
	return &p, nil
}

func (m *MockBackend) RebuildKnowledgeBase(ctx context.Context, projectID string) error {
	if err := m.begin(ctx, OpRebuildKB); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.projectLocked(projectID) == nil {
		return &AppError{Op: OpRebuildKB, StatusCode: 404, Message: "project not found"}
	}
	for id, d := range m.docs {
		if d.ProjectID != projectID {
			continue
		}
		switch d.Status {
		case models.DocStatusProcessed, models.DocStatusCompleted, models.DocStatusKBParseFailed:
			d.Status = models.DocStatusUploadingToKB
			d.Progress = 0
			m.docs[id] = d
		}
	}
	return nil
}

func (m *MockBackend) GetStats(ctx context.Context) (*models.Stats, error) {
	if err := m.begin(ctx, OpGetStats); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &models.Stats{
		TotalProjects:  len(m.projects),
		TotalDocuments: len(m.docs),
	}
	var bytes uint64
	for id, d := range m.docs {
		switch {
		case d.Status == models.DocStatusCompleted:
			s.CompletedDocuments++
		case d.Status.IsFailed():
			s.FailedDocuments++
		case d.Status.IsTransient():
			s.ProcessingDocuments++
		}
		bytes += uint64(len(m.contents[id]))
	}
	s.StorageUsed = humanize.Bytes(bytes)
	return s, nil
}

// advanceLocked moves every transient document one step forward.
func (m *MockBackend) advanceLocked() {
	for id, d := range m.docs {
		switch d.Status {
		case models.DocStatusUploading:
			d.Progress += progressStep
			if d.Progress >= 100 {
				d.Status = models.DocStatusProcessing
				d.Progress = 0
			}
		case models.DocStatusProcessing:
			d.Progress += progressStep
			if d.Progress >= 100 {
				d.Status = models.DocStatusProcessed
				d.Progress = 100
			}
		case models.DocStatusUploadingToKB:
			d.Status = models.DocStatusParsingKB
			d.Progress = progressStep
		case models.DocStatusParsingKB:
			d.Status = models.DocStatusCompleted
			d.Progress = 100
		default:
			continue
		}
		m.docs[id] = d
	}
}

func (m *MockBackend) projectLocked(id string) *models.Project {
	for i := range m.projects {
		if m.projects[i].ID == id {
			return &m.projects[i]
		}
	}
	return nil
}

func (m *MockBackend) recountLocked() {
	counts := make(map[string]int, len(m.projects))
	for _, d := range m.docs {
		counts[d.ProjectID]++
	}
	for i := range m.projects {
		m.projects[i].Documents = counts[m.projects[i].ID]
	}
}

package api

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/riskdesk/pkg/models"
)

func newTestMock(t *testing.T) *MockBackend {
	t.Helper()
	m := NewMockBackend(DefaultSeed())
	m.SetAutoAdvance(false)
	return m
}

func TestMock_ListDocuments_Filters(t *testing.T) {
	m := newTestMock(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter models.DocumentFilter
		want   []int
	}{
		{"all", models.DocumentFilter{}, []int{1, 2, 3, 4, 5, 6, 7}},
		{"project", models.DocumentFilter{ProjectID: "2"}, []int{5, 6}},
		{"status", models.DocumentFilter{Status: models.DocStatusCompleted}, []int{1, 7}},
		{"search is case insensitive", models.DocumentFilter{Search: "LEDGER"}, []int{5}},
		{"combined", models.DocumentFilter{ProjectID: "1", Search: "report"}, []int{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := m.ListDocuments(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListDocuments: %v", err)
			}
			var ids []int
			for _, d := range docs {
				ids = append(ids, d.ID)
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("ids = %v, want %v", ids, tt.want)
			}
			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Fatalf("ids = %v, want %v", ids, tt.want)
				}
			}
		})
	}
}

func TestMock_AutoAdvance(t *testing.T) {
	m := NewMockBackend(DefaultSeed())
	ctx := context.Background()

	// Document 2 starts processing at 0%; two polls finish it.
	for i := 0; i < 2; i++ {
		if _, err := m.ListDocuments(ctx, models.DocumentFilter{}); err != nil {
			t.Fatalf("ListDocuments: %v", err)
		}
	}
	docs, _ := m.ListDocuments(ctx, models.DocumentFilter{ProjectID: "1"})
	for _, d := range docs {
		if d.ID == 2 && d.Status != models.DocStatusProcessed {
			t.Errorf("doc 2 status = %s, want processed", d.Status)
		}
	}

	// Eventually nothing is transient.
	for i := 0; i < 5; i++ {
		docs, _ = m.ListDocuments(ctx, models.DocumentFilter{})
	}
	if models.HasTransient(docs) {
		t.Errorf("expected no transient documents after several polls")
	}
}

func TestMock_Transitions(t *testing.T) {
	ctx := context.Background()

	t.Run("retry failed", func(t *testing.T) {
		m := newTestMock(t)
		if err := m.RetryProcessing(ctx, 4); err != nil {
			t.Fatalf("RetryProcessing: %v", err)
		}
		if err := m.RetryProcessing(ctx, 4); err == nil {
			t.Fatal("second retry should conflict")
		}
	})
	t.Run("upload to kb requires processed", func(t *testing.T) {
		m := newTestMock(t)
		if err := m.UploadToKnowledgeBase(ctx, 1); err == nil {
			t.Fatal("completed document should be rejected")
		}
		if err := m.UploadToKnowledgeBase(ctx, 3); err != nil {
			t.Fatalf("UploadToKnowledgeBase: %v", err)
		}
	})
	t.Run("retry kb parsing", func(t *testing.T) {
		m := newTestMock(t)
		if err := m.RetryKnowledgeBaseParsing(ctx, 5); err != nil {
			t.Fatalf("RetryKnowledgeBaseParsing: %v", err)
		}
		var appErr *AppError
		if err := m.RetryKnowledgeBaseParsing(ctx, 99); !errors.As(err, &appErr) || appErr.StatusCode != 404 {
			t.Fatalf("expected 404, got %v", err)
		}
	})
}

func TestMock_UploadDeleteAndCounts(t *testing.T) {
	m := newTestMock(t)
	ctx := context.Background()

	doc, err := m.UploadDocument(ctx, UploadRequest{
		ProjectID: "3",
		Type:      models.DocumentTypeText,
		Name:      "notes.txt",
		Content:   strings.NewReader("hello"),
	})
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	if doc.ID != 8 || doc.Status != models.DocStatusUploading || doc.Size != "5 B" {
		t.Errorf("unexpected document %+v", doc)
	}

	p, _ := m.GetProject(ctx, "3")
	if p.Documents != 2 {
		t.Errorf("project 3 documents = %d, want 2", p.Documents)
	}

	data, err := m.DownloadDocument(ctx, doc.ID)
	if err != nil || string(data) != "hello" {
		t.Fatalf("DownloadDocument = %q, %v", data, err)
	}

	if err := m.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	p, _ = m.GetProject(ctx, "3")
	if p.Documents != 1 {
		t.Errorf("project 3 documents = %d, want 1", p.Documents)
	}

	if _, err := m.UploadDocument(ctx, UploadRequest{ProjectID: "nope", Type: models.DocumentTypePDF, Name: "x"}); err == nil {
		t.Error("upload to unknown project should fail")
	}
}

func TestMock_RebuildKnowledgeBase(t *testing.T) {
	m := newTestMock(t)
	ctx := context.Background()

	if err := m.RebuildKnowledgeBase(ctx, "2"); err != nil {
		t.Fatalf("RebuildKnowledgeBase: %v", err)
	}
	docs, _ := m.ListDocuments(ctx, models.DocumentFilter{ProjectID: "2"})
	for _, d := range docs {
		if d.ID == 5 && d.Status != models.DocStatusUploadingToKB {
			t.Errorf("doc 5 status = %s, want uploading_to_kb", d.Status)
		}
	}
	if err := m.RebuildKnowledgeBase(ctx, "404"); err == nil {
		t.Error("unknown project should fail")
	}
}

func TestMock_CreateProjectAndStats(t *testing.T) {
	m := newTestMock(t)
	ctx := context.Background()

	p, err := m.CreateProject(ctx, models.NewProject{Name: "Globex Facility"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if p.ID == "" || p.Type != models.ProjectTypeEnterprise || p.Status != models.ProjectStatusCollecting {
		t.Errorf("unexpected project %+v", p)
	}
	if _, err := m.CreateProject(ctx, models.NewProject{Name: "  "}); err == nil {
		t.Error("blank name should fail")
	}

	s, err := m.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if s.TotalProjects != 4 || s.TotalDocuments != 7 {
		t.Errorf("totals = %d/%d", s.TotalProjects, s.TotalDocuments)
	}
	if s.CompletedDocuments != 2 || s.FailedDocuments != 2 || s.ProcessingDocuments != 2 {
		t.Errorf("breakdown = %+v", s)
	}
}

func TestMock_FailNextAndLatency(t *testing.T) {
	m := newTestMock(t)

	m.FailNext(OpDeleteDocument, nil)
	err := m.DeleteDocument(context.Background(), 1)
	if Classify(err) != KindApplication {
		t.Fatalf("expected application error, got %v", err)
	}
	if err := m.DeleteDocument(context.Background(), 1); err != nil {
		t.Fatalf("failure should be consumed: %v", err)
	}

	m.SetLatency(time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = m.ListDocuments(ctx, models.DocumentFilter{})
	if Classify(err) != KindNetwork {
		t.Fatalf("expected network error on timeout, got %v", err)
	}
}

func TestLoadSeed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	content := `
projects:
  - id: p1
    name: Test Project
    type: individual
    status: collecting
documents:
  - id: 10
    name: a.pdf
    project_id: p1
    type: pdf
    status: failed
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	seed, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed: %v", err)
	}
	m := NewMockBackend(seed)
	doc, err := m.UploadDocument(context.Background(), UploadRequest{ProjectID: "p1", Type: models.DocumentTypePDF, Name: "b.pdf"})
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	if doc.ID != 11 {
		t.Errorf("next id = %d, want 11", doc.ID)
	}

	bad := filepath.Join(dir, "bad.yaml")
	_ = os.WriteFile(bad, []byte("documents:\n  - id: 0\n"), 0o644)
	if _, err := LoadSeed(bad); err == nil {
		t.Error("expected error for non-positive id")
	}
}

func TestNew_SelectsBackend(t *testing.T) {
	b, err := New(models.APIConfig{Mock: true})
	if err != nil {
		t.Fatalf("New mock: %v", err)
	}
	if _, ok := b.(*MockBackend); !ok {
		t.Errorf("expected *MockBackend, got %T", b)
	}

	b, err = New(models.APIConfig{BaseURL: "http://localhost:1"})
	if err != nil {
		t.Fatalf("New http: %v", err)
	}
	if _, ok := b.(*HTTPBackend); !ok {
		t.Errorf("expected *HTTPBackend, got %T", b)
	}

	if _, err := New(models.APIConfig{}); Classify(err) != KindValidation {
		t.Errorf("expected validation error, got %v", err)
	}
}

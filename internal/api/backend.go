// Package api provides the clients used to reach the document, project and
// stats backend. HTTPBackend talks to the real REST service; MockBackend is an
// in-memory stand-in selected through configuration.
package api

import (
	"context"
	"io"
	"time"

	"github.com/valter-silva-au/riskdesk/pkg/models"
)

// Envelope is the uniform response shape returned by every endpoint.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// UploadRequest carries a new document to the backend.
type UploadRequest struct {
	ProjectID string
	Type      models.DocumentType
	Name      string
	FileName  string
	Content   io.Reader
}

// Backend defines every call the client makes against the platform.
type Backend interface {
	ListDocuments(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error)
	UploadDocument(ctx context.Context, req UploadRequest) (*models.Document, error)
	DeleteDocument(ctx context.Context, id int) error
	DownloadDocument(ctx context.Context, id int) ([]byte, error)
	RetryProcessing(ctx context.Context, id int) error
	UploadToKnowledgeBase(ctx context.Context, id int) error
	RetryKnowledgeBaseParsing(ctx context.Context, id int) error

	ListProjects(ctx context.Context) ([]models.Project, error)
	GetProject(ctx context.Context, id string) (*models.Project, error)
	CreateProject(ctx context.Context, p models.NewProject) (*models.Project, error)
	RebuildKnowledgeBase(ctx context.Context, projectID string) error

	GetStats(ctx context.Context) (*models.Stats, error)
}

// New returns the backend selected by cfg: the in-memory mock when cfg.Mock
// is set, otherwise an HTTP client for cfg.BaseURL.
func New(cfg models.APIConfig) (Backend, error) {
	if cfg.Mock {
		if cfg.SeedFile != "" {
			seed, err := LoadSeed(cfg.SeedFile)
			if err != nil {
				return nil, err
			}
			return NewMockBackend(seed), nil
		}
		return NewMockBackend(DefaultSeed()), nil
	}
	if cfg.BaseURL == "" {
		return nil, Validationf("api.base_url is required when api.mock is false")
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	return NewHTTPBackend(cfg.BaseURL, cfg.Token, timeout), nil
}

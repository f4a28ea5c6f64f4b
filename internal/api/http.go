package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valter-silva-au/riskdesk/pkg/models"
)

// DefaultTimeout applies when no request timeout is configured.
const DefaultTimeout = 30 * time.Second

// HTTPBackend implements Backend against the platform's REST API.
type HTTPBackend struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPBackend creates a client for baseURL. token is sent as a bearer
// token when non-empty.
func NewHTTPBackend(baseURL, token string, timeout time.Duration) *HTTPBackend {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (b *HTTPBackend) ListDocuments(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	q := url.Values{}
	if filter.Search != "" {
		q.Set("search", filter.Search)
	}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.ProjectID != "" {
		q.Set("project_id", filter.ProjectID)
	}
	path := "/api/documents"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var docs []models.Document
	if err := b.doJSON(ctx, "list documents", http.MethodGet, path, nil, &docs); err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, nil
}

func (b *HTTPBackend) UploadDocument(ctx context.Context, req UploadRequest) (*models.Document, error) {
	const op = "upload document"

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fileName := req.FileName
	if fileName == "" {
		fileName = req.Name
	}
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("%s: creating form file: %w", op, err)
	}
	if req.Content != nil {
		if _, err := io.Copy(part, req.Content); err != nil {
			return nil, fmt.Errorf("%s: reading content: %w", op, err)
		}
	}
	fields := map[string]string{
		"project_id": req.ProjectID,
		"type":       string(req.Type),
		"name":       req.Name,
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("%s: writing field %s: %w", op, k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%s: closing multipart body: %w", op, err)
	}

	httpReq, err := b.newRequest(ctx, http.MethodPost, "/api/documents", &body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	var doc models.Document
	if err := b.send(op, httpReq, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (b *HTTPBackend) DeleteDocument(ctx context.Context, id int) error {
	return b.doJSON(ctx, "delete document", http.MethodDelete, documentPath(id, ""), nil, nil)
}

func (b *HTTPBackend) DownloadDocument(ctx context.Context, id int) ([]byte, error) {
	const op = "download document"
	req, err := b.newRequest(ctx, http.MethodGet, documentPath(id, "/download"), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, appErrorFromBody(op, resp.StatusCode, data)
	}
	return data, nil
}

func (b *HTTPBackend) RetryProcessing(ctx context.Context, id int) error {
	return b.doJSON(ctx, "retry processing", http.MethodPost, documentPath(id, "/retry"), nil, nil)
}

func (b *HTTPBackend) UploadToKnowledgeBase(ctx context.Context, id int) error {
	return b.doJSON(ctx, "upload to knowledge base", http.MethodPost, documentPath(id, "/upload-to-kb"), nil, nil)
}

func (b *HTTPBackend) RetryKnowledgeBaseParsing(ctx context.Context, id int) error {
	return b.doJSON(ctx, "retry knowledge base parsing", http.MethodPost, documentPath(id, "/retry-kb"), nil, nil)
}

func (b *HTTPBackend) ListProjects(ctx context.Context) ([]models.Project, error) {
	var projects []models.Project
	if err := b.doJSON(ctx, "list projects", http.MethodGet, "/api/projects", nil, &projects); err != nil {
		return nil, err
	}
	if projects == nil {
		projects = []models.Project{}
	}
	return projects, nil
}

func (b *HTTPBackend) GetProject(ctx context.Context, id string) (*models.Project, error) {
	var p models.Project
	if err := b.doJSON(ctx, "get project", http.MethodGet, "/api/projects/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (b *HTTPBackend) CreateProject(ctx context.Context, np models.NewProject) (*models.Project, error) {
	var p models.Project
	if err := b.doJSON(ctx, "create project", http.MethodPost, "/api/projects", np, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (b *HTTPBackend) RebuildKnowledgeBase(ctx context.Context, projectID string) error {
	path := "/api/projects/" + url.PathEscape(projectID) + "/knowledge-base/rebuild"
	return b.doJSON(ctx, "rebuild knowledge base", http.MethodPost, path, nil, nil)
}

func (b *HTTPBackend) GetStats(ctx context.Context) (*models.Stats, error) {
	var s models.Stats
	if err := b.doJSON(ctx, "get stats", http.MethodGet, "/api/stats", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// --- Helpers ---

func documentPath(id int, suffix string) string {
	return "/api/documents/" + strconv.Itoa(id) + suffix
}

func (b *HTTPBackend) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	return req, nil
}

// doJSON sends an optional JSON payload and decodes the envelope's data into out.
func (b *HTTPBackend) doJSON(ctx context.Context, op, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: marshalling payload: %w", op, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := b.newRequest(ctx, method, path, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return b.send(op, req, out)
}

func (b *HTTPBackend) send(op string, req *http.Request, out any) error {
	resp, err := b.client.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return appErrorFromBody(op, resp.StatusCode, data)
	}

	var env Envelope[json.RawMessage]
	if err := json.Unmarshal(data, &env); err != nil {
		return &AppError{Op: op, StatusCode: resp.StatusCode, Message: "malformed response: " + err.Error()}
	}
	if !env.Success {
		return &AppError{Op: op, Message: envelopeError(env.Error, env.Message)}
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &AppError{Op: op, StatusCode: resp.StatusCode, Message: "decoding data: " + err.Error()}
		}
	}
	return nil
}

func appErrorFromBody(op string, status int, data []byte) error {
	var env Envelope[json.RawMessage]
	msg := http.StatusText(status)
	if err := json.Unmarshal(data, &env); err == nil {
		if env.Error != "" {
			msg = env.Error
		} else if env.Message != "" {
			msg = env.Message
		}
	}
	return &AppError{Op: op, StatusCode: status, Message: msg}
}

func envelopeError(errMsg, msg string) string {
	if errMsg != "" {
		return errMsg
	}
	if msg != "" {
		return msg
	}
	return "request failed"
}

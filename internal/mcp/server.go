// Package mcp provides an MCP (Model Context Protocol) server that exposes
// riskdesk projects, documents and activity metrics as MCP tools for AI
// assistants.
package mcp

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/riskdesk/internal/api"
	"github.com/valter-silva-au/riskdesk/internal/observability"
	"github.com/valter-silva-au/riskdesk/pkg/models"
)

// Rebuilder triggers a knowledge base rebuild for a project.
type Rebuilder interface {
	RebuildKnowledgeBase(ctx context.Context, projectID string) error
}

// Server wraps riskdesk services and exposes them as MCP tools.
type Server struct {
	server      *gomcp.Server
	backend     api.Backend
	rebuilder   Rebuilder
	metricsCalc observability.MetricsCalculator
	alertEngine observability.AlertEngine
}

// NewServer creates a new MCP server. rebuilder defaults to the backend
// itself; metricsCalc and alertEngine may be nil if the event log is
// unavailable.
func NewServer(backend api.Backend, rebuilder Rebuilder, metricsCalc observability.MetricsCalculator, alertEngine observability.AlertEngine, version string) *Server {
	if version == "" {
		version = "dev"
	}
	if rebuilder == nil {
		rebuilder = backend
	}

	s := &Server{
		backend:     backend,
		rebuilder:   rebuilder,
		metricsCalc: metricsCalc,
		alertEngine: alertEngine,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "rdk", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects
// or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type listProjectsInput struct{}

type listProjectsOutput struct {
	Projects []models.Project `json:"projects"`
	Count    int              `json:"count"`
}

type listDocumentsInput struct {
	ProjectID string `json:"project_id,omitempty" jsonschema:"only list documents of this project; all projects when empty"`
	Search    string `json:"search,omitempty" jsonschema:"case-insensitive substring of the document name"`
	Status    string `json:"status,omitempty" jsonschema:"filter by status (uploading, processing, processed, uploading_to_kb, parsing_kb, completed, failed, kb_parse_failed)"`
}

type listDocumentsOutput struct {
	Documents []models.Document `json:"documents"`
	Count     int               `json:"count"`
	Transient int               `json:"transient"`
}

type getStatsInput struct{}

type rebuildInput struct {
	ProjectID string `json:"project_id" jsonschema:"required,the project whose knowledge base is rebuilt"`
}

type rebuildOutput struct {
	Message string `json:"message"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	DocumentsUploaded   int            `json:"documents_uploaded"`
	DocumentsDeleted    int            `json:"documents_deleted"`
	DocumentsDownloaded int            `json:"documents_downloaded"`
	DocumentsRetried    int            `json:"documents_retried"`
	KBUploads           int            `json:"kb_uploads"`
	KBRebuilds          int            `json:"kb_rebuilds"`
	DeleteRollbacks     int            `json:"delete_rollbacks"`
	Failures            int            `json:"failures"`
	FailuresByKind      map[string]int `json:"failures_by_kind"`
	UploadsByType       map[string]int `json:"uploads_by_type"`
	EventCount          int            `json:"event_count"`
	OldestEvent         string         `json:"oldest_event,omitempty"`
	NewestEvent         string         `json:"newest_event,omitempty"`
}

type getAlertsInput struct{}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_projects",
		Description: "List credit review projects with their type, status and document count.",
	}, s.handleListProjects)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_documents",
		Description: "List documents, optionally narrowed to a project, a name search or a status. Filtering is done by the backend.",
	}, s.handleListDocuments)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_stats",
		Description: "Get dashboard totals: projects, documents, processing, completed, failed and storage used.",
	}, s.handleGetStats)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "rebuild_knowledge_base",
		Description: "Rebuild a project's knowledge base. Existing knowledge base entries are replaced.",
	}, s.handleRebuild)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get activity metrics from the event log: uploads, deletes, retries, rollbacks and failures.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active alerts (repeated failures, unreachable backend, delete rollbacks, stuck documents).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleListProjects(ctx context.Context, _ *gomcp.CallToolRequest, _ listProjectsInput) (*gomcp.CallToolResult, listProjectsOutput, error) {
	projects, err := s.backend.ListProjects(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("listing projects: %s", api.Message(err))), listProjectsOutput{Projects: []models.Project{}}, nil
	}
	if projects == nil {
		projects = []models.Project{}
	}
	return nil, listProjectsOutput{Projects: projects, Count: len(projects)}, nil
}

func (s *Server) handleListDocuments(ctx context.Context, _ *gomcp.CallToolRequest, input listDocumentsInput) (*gomcp.CallToolResult, listDocumentsOutput, error) {
	empty := listDocumentsOutput{Documents: []models.Document{}}
	status := models.DocumentStatus(input.Status)
	if status != "" && !status.Valid() {
		return errorResult(fmt.Sprintf("invalid status %q", input.Status)), empty, nil
	}

	docs, err := s.backend.ListDocuments(ctx, models.DocumentFilter{
		ProjectID: input.ProjectID,
		Search:    input.Search,
		Status:    status,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("listing documents: %s", api.Message(err))), empty, nil
	}

	if docs == nil {
		docs = []models.Document{}
	}
	out := listDocumentsOutput{Documents: docs, Count: len(docs)}
	for _, d := range docs {
		if d.Status.IsTransient() {
			out.Transient++
		}
	}
	return nil, out, nil
}

func (s *Server) handleGetStats(ctx context.Context, _ *gomcp.CallToolRequest, _ getStatsInput) (*gomcp.CallToolResult, models.Stats, error) {
	stats, err := s.backend.GetStats(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("getting stats: %s", api.Message(err))), models.Stats{}, nil
	}
	return nil, *stats, nil
}

func (s *Server) handleRebuild(ctx context.Context, _ *gomcp.CallToolRequest, input rebuildInput) (*gomcp.CallToolResult, rebuildOutput, error) {
	if input.ProjectID == "" {
		return errorResult("project_id is required"), rebuildOutput{}, nil
	}
	if err := s.rebuilder.RebuildKnowledgeBase(ctx, input.ProjectID); err != nil {
		return errorResult(fmt.Sprintf("rebuilding knowledge base for project %s: %s", input.ProjectID, api.Message(err))), rebuildOutput{}, nil
	}
	return nil, rebuildOutput{Message: fmt.Sprintf("knowledge base rebuild started for project %s", input.ProjectID)}, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (event log may be disabled)"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}

	sinceTime, err := ParseSince(sinceStr)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	metrics, err := s.metricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		DocumentsUploaded:   metrics.DocumentsUploaded,
		DocumentsDeleted:    metrics.DocumentsDeleted,
		DocumentsDownloaded: metrics.DocumentsDownloaded,
		DocumentsRetried:    metrics.DocumentsRetried,
		KBUploads:           metrics.KBUploads,
		KBRebuilds:          metrics.KBRebuilds,
		DeleteRollbacks:     metrics.DeleteRollbacks,
		Failures:            metrics.Failures,
		FailuresByKind:      metrics.FailuresByKind,
		UploadsByType:       metrics.UploadsByType,
		EventCount:          metrics.EventCount,
	}
	if metrics.OldestEvent != nil {
		out.OldestEvent = metrics.OldestEvent.Format(time.RFC3339)
	}
	if metrics.NewestEvent != nil {
		out.NewestEvent = metrics.NewestEvent.Format(time.RFC3339)
	}

	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available (event log may be disabled)"), getAlertsOutput{}, nil
	}

	alerts, err := s.alertEngine.Evaluate()
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}

	return nil, out, nil
}

// --- Helpers ---

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{
		FailuresByKind: make(map[string]int),
		UploadsByType:  make(map[string]int),
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// ParseSince parses a human-friendly duration string like "7d", "30d", or
// "24h" into the corresponding time in the past.
func ParseSince(s string) (time.Time, error) {
	now := time.Now().UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}

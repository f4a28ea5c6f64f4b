// Package mockserver serves an api.Backend over the platform's REST contract
// so the HTTP client, the dashboard and scripts can run against a local
// stand-in.
package mockserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/valter-silva-au/riskdesk/internal/api"
	"github.com/valter-silva-au/riskdesk/pkg/models"
)

// DefaultAddr is where `rdk mock serve` listens when no address is given.
const DefaultAddr = "127.0.0.1:8080"

// Options configures a Server.
type Options struct {
	// Token, when set, is required as a bearer token on every /api request.
	Token  string
	Logger *zap.Logger
	// BodyLimit caps request bodies, e.g. "20M".
	BodyLimit string
}

// Server exposes a Backend over HTTP.
type Server struct {
	echo    *echo.Echo
	backend api.Backend
	logger  *zap.Logger
}

// New builds a Server for backend.
func New(backend api.Backend, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.BodyLimit == "" {
		opts.BodyLimit = "20M"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	s := &Server{echo: e, backend: backend, logger: opts.Logger}

	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(opts.BodyLimit))
	e.Use(s.logRequests)

	g := e.Group("/api")
	if opts.Token != "" {
		g.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup:  "header:" + echo.HeaderAuthorization,
			AuthScheme: "Bearer",
			Validator: func(key string, _ echo.Context) (bool, error) {
				return key == opts.Token, nil
			},
			ErrorHandler: func(error, echo.Context) error {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing token")
			},
		}))
	}

	g.GET("/documents", s.listDocuments)
	g.POST("/documents", s.uploadDocument)
	g.DELETE("/documents/:id", s.deleteDocument)
	g.GET("/documents/:id/download", s.downloadDocument)
	g.POST("/documents/:id/retry", s.documentAction(backend.RetryProcessing))
	g.POST("/documents/:id/upload-to-kb", s.documentAction(backend.UploadToKnowledgeBase))
	g.POST("/documents/:id/retry-kb", s.documentAction(backend.RetryKnowledgeBaseParsing))

	g.GET("/projects", s.listProjects)
	g.POST("/projects", s.createProject)
	g.GET("/projects/:id", s.getProject)
	g.POST("/projects/:id/knowledge-base/rebuild", s.rebuildKnowledgeBase)

	g.GET("/stats", s.getStats)

	if mock, ok := backend.(*api.MockBackend); ok {
		e.POST("/_mock/fail/:op", func(c echo.Context) error {
			mock.FailNext(c.Param("op"), nil)
			return ok200(c, nil)
		})
	}
	return s
}

// Handler returns the server as an http.Handler, for httptest.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("mock server listening", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("mock server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// --- Handlers ---

func (s *Server) listDocuments(c echo.Context) error {
	filter := models.DocumentFilter{
		Search:    c.QueryParam("search"),
		Status:    models.DocumentStatus(c.QueryParam("status")),
		ProjectID: c.QueryParam("project_id"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return api.Validationf("unknown status %q", filter.Status)
	}
	docs, err := s.backend.ListDocuments(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return ok200(c, docs)
}

func (s *Server) uploadDocument(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return api.Validationf("file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close()

	req := api.UploadRequest{
		ProjectID: c.FormValue("project_id"),
		Type:      models.DocumentType(c.FormValue("type")),
		Name:      c.FormValue("name"),
		FileName:  fh.Filename,
		Content:   f,
	}
	if req.ProjectID == "" {
		return api.Validationf("project_id is required")
	}
	if !req.Type.Valid() {
		return api.Validationf("unsupported document type %q", req.Type)
	}
	if req.Name == "" {
		req.Name = fh.Filename
	}
	doc, err := s.backend.UploadDocument(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, api.Envelope[*models.Document]{Success: true, Data: doc})
}

func (s *Server) deleteDocument(c echo.Context) error {
	id, err := documentID(c)
	if err != nil {
		return err
	}
	if err := s.backend.DeleteDocument(c.Request().Context(), id); err != nil {
		return err
	}
	return ok200(c, nil)
}

func (s *Server) downloadDocument(c echo.Context) error {
	id, err := documentID(c)
	if err != nil {
		return err
	}
	data, err := s.backend.DownloadDocument(c.Request().Context(), id)
	if err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", "document-"+strconv.Itoa(id)))
	return c.Blob(http.StatusOK, echo.MIMEOctetStream, data)
}

func (s *Server) documentAction(fn func(ctx context.Context, id int) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := documentID(c)
		if err != nil {
			return err
		}
		if err := fn(c.Request().Context(), id); err != nil {
			return err
		}
		return ok200(c, nil)
	}
}

func (s *Server) listProjects(c echo.Context) error {
	projects, err := s.backend.ListProjects(c.Request().Context())
	if err != nil {
		return err
	}
	return ok200(c, projects)
}

func (s *Server) getProject(c echo.Context) error {
	p, err := s.backend.GetProject(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return ok200(c, p)
}

func (s *Server) createProject(c echo.Context) error {
	var np models.NewProject
	if err := c.Bind(&np); err != nil {
		return api.Validationf("invalid JSON body")
	}
	p, err := s.backend.CreateProject(c.Request().Context(), np)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, api.Envelope[*models.Project]{Success: true, Data: p})
}

func (s *Server) rebuildKnowledgeBase(c echo.Context) error {
	if err := s.backend.RebuildKnowledgeBase(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, api.Envelope[any]{Success: true, Message: "knowledge base rebuild started"})
}

func (s *Server) getStats(c echo.Context) error {
	stats, err := s.backend.GetStats(c.Request().Context())
	if err != nil {
		return err
	}
	return ok200(c, stats)
}

// --- Helpers ---

func ok200(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, api.Envelope[any]{Success: true, Data: data})
}

func documentID(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, api.Validationf("invalid document id %q", c.Param("id"))
	}
	return id, nil
}

// handleError renders every failure as an envelope. Application errors
// without a status code are answered with 200 and success:false, as the
// platform does for soft failures.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	msg := err.Error()

	var he *echo.HTTPError
	var appErr *api.AppError
	var netErr *api.NetworkError
	switch {
	case errors.As(err, &he):
		status = he.Code
		msg = fmt.Sprint(he.Message)
	case errors.Is(err, api.ErrValidation):
		status = http.StatusBadRequest
		msg = api.Message(err)
	case errors.As(err, &appErr):
		status = appErr.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		msg = appErr.Message
	case errors.As(err, &netErr):
		status = http.StatusGatewayTimeout
		msg = netErr.Err.Error()
	}

	s.logger.Debug("request failed",
		zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		zap.Int("status", status),
		zap.Error(err))

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, api.Envelope[any]{Success: false, Error: msg})
}

func (s *Server) logRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		req := c.Request()
		s.logger.Info("request",
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Int("status", c.Response().Status),
			zap.Duration("latency", time.Since(start)))
		return nil
	}
}

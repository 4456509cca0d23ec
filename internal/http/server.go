// Package http provides the inspection and interaction server for a live
// session.
package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/golang/glog"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/livedoc/internal/doctree"
	"github.com/xiaot623/livedoc/internal/domain"
	"github.com/xiaot623/livedoc/internal/session"
	"github.com/xiaot623/livedoc/internal/widgets"
)

// Runner runs functions on the goroutine that owns the engine.
type Runner interface {
	Do(ctx context.Context, fn func(*session.Engine)) error
}

// Journal is the read side of the run journal.
type Journal interface {
	ListRuns(ctx context.Context, limit int) ([]domain.Run, error)
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	GetEvents(ctx context.Context, runID string, types []domain.EventType, limit int) ([]domain.Event, error)
}

// Server is the HTTP server for a live session.
type Server struct {
	echo    *echo.Echo
	runner  Runner
	widgets *widgets.Store
	journal Journal

	mu   sync.RWMutex
	tree *doctree.Snapshot
}

// NewServer creates the server. journal may be nil when journaling is off.
func NewServer(runner Runner, store *widgets.Store, journal Journal) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	s := &Server{
		echo:    e,
		runner:  runner,
		widgets: store,
		journal: journal,
	}

	// Register routes
	e.GET("/health", s.handleHealth)
	e.GET("/tree", s.handleTree)
	e.GET("/widgets", s.handleListWidgets)
	e.PUT("/widgets/:widget_id", s.handleSetWidget)
	e.DELETE("/widgets/:widget_id", s.handleClearWidget)
	e.POST("/rerun", s.handleRerun)
	e.POST("/stop", s.handleStop)
	e.POST("/clear-cache", s.handleClearCache)
	e.GET("/runs", s.handleListRuns)
	e.GET("/runs/:run_id/events", s.handleListEvents)

	return s
}

// Handler returns the underlying echo instance.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Publish replaces the tree served by GET /tree. It is meant to be called
// from the engine's change hook.
func (s *Server) Publish(snap *doctree.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree = snap
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(c echo.Context) error {
	var info session.Info
	if err := s.runner.Do(c.Request().Context(), func(e *session.Engine) {
		info = e.Info()
	}); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "disconnected", "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":     "healthy",
		"run_id":     info.RunID,
		"run_status": info.Status,
		"pending":    info.Pending,
	})
}

func (s *Server) handleTree(c echo.Context) error {
	s.mu.RLock()
	snap := s.tree
	s.mu.RUnlock()
	if snap == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no tree published yet"})
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) handleListWidgets(c echo.Context) error {
	return c.JSON(http.StatusOK, widgets.States(s.widgets.Snapshot()))
}

// handleSetWidget stores the wire state in the body under the path's widget
// id. With ?rerun=true it also requests a rerun.
func (s *Server) handleSetWidget(c echo.Context) error {
	var st widgets.State
	if err := c.Bind(&st); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	st.ID = c.Param("widget_id")
	if err := s.widgets.SetState(st); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if c.QueryParam("rerun") != "true" {
		return c.JSON(http.StatusOK, map[string]any{"ok": true})
	}
	return s.rerun(c, session.RerunOptions{})
}

func (s *Server) handleClearWidget(c echo.Context) error {
	if !s.widgets.Clear(c.Param("widget_id")) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "widget not found"})
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

// RerunRequest is the optional body of POST /rerun.
type RerunRequest struct {
	QueryString    *string `json:"query_string,omitempty"`
	PageScriptHash string  `json:"page_script_hash,omitempty"`
	PageName       string  `json:"page_name,omitempty"`
}

func (s *Server) handleRerun(c echo.Context) error {
	var req RerunRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
	}
	return s.rerun(c, session.RerunOptions{
		QueryString:    req.QueryString,
		PageScriptHash: req.PageScriptHash,
		PageName:       req.PageName,
	})
}

func (s *Server) rerun(c echo.Context, opts session.RerunOptions) error {
	return s.request(c, func(ctx context.Context, e *session.Engine) (string, error) {
		return e.RequestRerun(ctx, opts)
	})
}

func (s *Server) handleStop(c echo.Context) error {
	return s.request(c, func(ctx context.Context, e *session.Engine) (string, error) {
		return e.StopScript(ctx)
	})
}

func (s *Server) handleClearCache(c echo.Context) error {
	return s.request(c, func(ctx context.Context, e *session.Engine) (string, error) {
		return e.RequestClearCache(ctx)
	})
}

// request runs an outbound request on the engine goroutine and maps its
// error to a status code.
func (s *Server) request(c echo.Context, fn func(context.Context, *session.Engine) (string, error)) error {
	ctx := c.Request().Context()
	var requestID string
	var sendErr error
	if err := s.runner.Do(ctx, func(e *session.Engine) {
		requestID, sendErr = fn(ctx, e)
	}); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	}

	switch {
	case sendErr == nil:
		return c.JSON(http.StatusOK, map[string]any{"ok": true, "request_id": requestID})
	case errors.Is(sendErr, session.ErrOutboundDenied):
		return c.JSON(http.StatusForbidden, map[string]string{"error": sendErr.Error()})
	case errors.Is(sendErr, session.ErrNoSender):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": sendErr.Error()})
	default:
		glog.Errorf("http: outbound request failed: %v", sendErr)
		return c.JSON(http.StatusBadGateway, map[string]string{"error": sendErr.Error()})
	}
}

func (s *Server) handleListRuns(c echo.Context) error {
	if s.journal == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "journal disabled"})
	}
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		}
		limit = n
	}

	runs, err := s.journal.ListRuns(c.Request().Context(), limit)
	if err != nil {
		glog.Errorf("http: failed to list runs: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list runs"})
	}
	if runs == nil {
		runs = []domain.Run{}
	}
	return c.JSON(http.StatusOK, runs)
}

func (s *Server) handleListEvents(c echo.Context) error {
	if s.journal == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "journal disabled"})
	}
	ctx := c.Request().Context()
	runID := c.Param("run_id")

	run, err := s.journal.GetRun(ctx, runID)
	if err != nil {
		glog.Errorf("http: failed to get run %s: %v", runID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get run"})
	}
	if run == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "run not found"})
	}

	var types []domain.EventType
	for _, t := range c.QueryParams()["type"] {
		types = append(types, domain.EventType(t))
	}
	events, err := s.journal.GetEvents(ctx, runID, types, 0)
	if err != nil {
		glog.Errorf("http: failed to get events for %s: %v", runID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get events"})
	}
	if events == nil {
		events = []domain.Event{}
	}
	return c.JSON(http.StatusOK, map[string]any{"run": run, "events": events})
}

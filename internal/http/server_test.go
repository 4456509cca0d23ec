package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/livedoc/internal/domain"
	"github.com/xiaot623/livedoc/internal/protocol"
	"github.com/xiaot623/livedoc/internal/session"
	"github.com/xiaot623/livedoc/internal/tests/helpers"
	"github.com/xiaot623/livedoc/internal/widgets"
)

// lockedRunner serializes access to an engine the way the WebSocket client
// does with its engine goroutine.
type lockedRunner struct {
	mu     sync.Mutex
	engine *session.Engine
}

func (r *lockedRunner) Do(_ context.Context, fn func(*session.Engine)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.engine)
	return nil
}

type captureSender struct {
	sent []*protocol.Outbound
}

func (s *captureSender) Send(_ context.Context, out *protocol.Outbound) error {
	s.sent = append(s.sent, out)
	return nil
}

type denyStop struct{}

func (denyStop) Allow(_ context.Context, req protocol.Request) (bool, string, error) {
	if req.Type() == protocol.TypeStopScript {
		return false, "stopping is not allowed", nil
	}
	return true, "", nil
}

type testServer struct {
	server *Server
	engine *session.Engine
	sender *captureSender
}

func newTestServer(t *testing.T, journal Journal, recorder session.Recorder) *testServer {
	t.Helper()
	sender := &captureSender{}
	ts := &testServer{sender: sender}
	engine := session.NewEngine(session.Options{
		Sender:   sender,
		Recorder: recorder,
		Policy:   denyStop{},
		OnChange: func(e *session.Engine) { ts.server.Publish(e.Snapshot()) },
	})
	ts.engine = engine
	ts.server = NewServer(&lockedRunner{engine: engine}, engine.Widgets(), journal)
	return ts
}

func (ts *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func startRun(e *session.Engine, runID string) {
	e.Handle(&protocol.Inbound{Message: &protocol.NewSession{
		RunID:       runID,
		PageContext: domain.PageContext{QueryString: "page=1"},
	}})
	e.Handle(&protocol.Inbound{
		RunID:    runID,
		Metadata: protocol.Metadata{DeltaPath: []int{0}},
		Message:  &protocol.NewElement{Element: domain.Element{Kind: domain.ElementKindText, Body: "hi"}},
	})
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	startRun(ts.engine, "r1")

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := ts.server.handleHealth(c); err != nil {
		t.Fatalf("handleHealth: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "r1", resp["run_id"])
	assert.Equal(t, string(domain.RunStatusRunning), resp["run_status"])
}

func TestTreeServesPublishedSnapshot(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.do(http.MethodGet, "/tree", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	startRun(ts.engine, "r1")
	rec = ts.do(http.MethodGet, "/tree", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Root struct {
			Children []struct {
				Element *domain.Element `json:"element"`
			} `json:"children"`
		} `json:"root"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Root.Children, 1)
	assert.Equal(t, "hi", resp.Root.Children[0].Element.Body)
}

func TestWidgetRoutes(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.do(http.MethodPut, "/widgets/slider", `{"id":"ignored","int_value":7}`)
	require.Equal(t, http.StatusOK, rec.Code)
	v, ok := ts.engine.Widgets().Get("slider")
	require.True(t, ok)
	assert.Equal(t, widgets.Int(7), v)

	rec = ts.do(http.MethodGet, "/widgets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var states []widgets.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &states))
	require.Len(t, states, 1)
	assert.Equal(t, "slider", states[0].ID)

	rec = ts.do(http.MethodDelete, "/widgets/slider", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(http.MethodDelete, "/widgets/slider", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetWidgetRejectsInvalidState(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.do(http.MethodPut, "/widgets/w", `{"bool_value":true,"int_value":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(http.MethodPut, "/widgets/w", `{"json_value":"{broken"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, ts.engine.Widgets().Len())
}

func TestSetWidgetWithRerun(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	startRun(ts.engine, "r1")

	rec := ts.do(http.MethodPut, "/widgets/button?rerun=true", `{"trigger_value":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, ts.sender.sent, 1)
	req, ok := ts.sender.sent[0].Request.(*protocol.RerunScript)
	require.True(t, ok)
	assert.Equal(t, "page=1", req.QueryString)
	require.Len(t, req.WidgetStates, 1)
	assert.Equal(t, "button", req.WidgetStates[0].ID)

	_, ok = ts.engine.Widgets().Get("button")
	assert.False(t, ok, "trigger should be consumed by the rerun")
}

func TestRerunRoute(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	startRun(ts.engine, "r1")

	rec := ts.do(http.MethodPost, "/rerun", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(http.MethodPost, "/rerun", `{"query_string":"page=2","page_name":"other"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ts.sender.sent[1].RequestID, resp["request_id"])

	require.Len(t, ts.sender.sent, 2)
	first := ts.sender.sent[0].Request.(*protocol.RerunScript)
	second := ts.sender.sent[1].Request.(*protocol.RerunScript)
	assert.Equal(t, "page=1", first.QueryString)
	assert.Equal(t, "page=2", second.QueryString)
	assert.Equal(t, "other", second.PageName)
}

func TestOutboundRoutes(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.do(http.MethodPost, "/clear-cache", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(http.MethodPost, "/stop", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	require.Len(t, ts.sender.sent, 1)
	assert.Equal(t, protocol.TypeClearCache, ts.sender.sent[0].Request.Type())
}

func TestJournalRoutesDisabled(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/runs", "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/runs/r1/events", "").Code)
}

func TestJournalRoutes(t *testing.T) {
	store, recorder := helpers.NewTestJournal(t)
	ts := newTestServer(t, store, recorder)

	startRun(ts.engine, "r1")
	time.Sleep(time.Millisecond)
	startRun(ts.engine, "r2")

	rec := ts.do(http.MethodGet, "/runs?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []domain.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "r2", runs[0].RunID)

	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/runs?limit=x", "").Code)

	rec = ts.do(http.MethodGet, "/runs/r1/events?type=run_finished", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Run    domain.Run     `json:"run"`
		Events []domain.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.RunStatusFinishedEarly, resp.Run.Status)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, domain.EventTypeRunFinished, resp.Events[0].Type)

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/runs/missing/events", "").Code)
}

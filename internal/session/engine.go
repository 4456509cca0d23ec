package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang/glog"

	"github.com/xiaot623/livedoc/internal/doctree"
	"github.com/xiaot623/livedoc/internal/domain"
	"github.com/xiaot623/livedoc/internal/msgcache"
	"github.com/xiaot623/livedoc/internal/protocol"
	"github.com/xiaot623/livedoc/internal/widgets"
)

// Engine tracks the current run and the document it has produced so far.
type Engine struct {
	opts     Options
	recorder Recorder
	widgets  *widgets.Store
	cache    *msgcache.Cache[protocol.Message]
	tree     *doctree.Tree
	run      domain.Run
	queue    []*protocol.Inbound

	// superseding is set while the queue is drained ahead of a new session.
	superseding bool

	pageContext      domain.PageContext
	pageConfig       protocol.PageConfigChanged
	sessionConfig    protocol.SessionConfig
	sessionStatus    protocol.SessionStatusChanged
	lastSessionEvent *protocol.SessionEvent
	pageNotFound     string
	pages            []domain.Page
	theme            json.RawMessage
	gitInfo          json.RawMessage
	profile          json.RawMessage
}

// NewEngine returns an idle engine with an empty tree.
func NewEngine(opts Options) *Engine {
	maxAge := opts.MaxCachedMessageAge
	if maxAge == 0 {
		maxAge = msgcache.DefaultMaxAge
	}
	e := &Engine{
		opts:     opts,
		recorder: opts.Recorder,
		widgets:  opts.Widgets,
		cache:    msgcache.New[protocol.Message](maxAge),
		tree:     doctree.New(),
		run:      domain.Run{Status: domain.RunStatusIdle},
	}
	if e.recorder == nil {
		e.recorder = nopRecorder{}
	}
	if e.widgets == nil {
		e.widgets = widgets.New()
	}
	return e
}

// Widgets returns the widget store. It is safe to use from any goroutine.
func (e *Engine) Widgets() *widgets.Store {
	return e.widgets
}

func (e *Engine) Status() domain.RunStatus {
	return e.run.Status
}

func (e *Engine) RunID() string {
	return e.run.RunID
}

// Run returns a copy of the current run record.
func (e *Engine) Run() domain.Run {
	return e.run
}

// Snapshot returns the visible document.
func (e *Engine) Snapshot() *doctree.Snapshot {
	return e.tree.Snapshot()
}

// Pending returns the number of received messages not yet processed.
func (e *Engine) Pending() int {
	return len(e.queue)
}

func (e *Engine) Info() Info {
	var lastEvent *protocol.SessionEvent
	if e.lastSessionEvent != nil {
		ev := *e.lastSessionEvent
		lastEvent = &ev
	}
	return Info{
		RunID:            e.run.RunID,
		Status:           e.run.Status,
		Pending:          len(e.queue),
		CachedMessages:   e.cache.Len(),
		PageContext:      e.pageContext,
		PageConfig:       e.pageConfig,
		SessionConfig:    e.sessionConfig,
		SessionStatus:    e.sessionStatus,
		LastSessionEvent: lastEvent,
		PageNotFound:     e.pageNotFound,
		Pages:            slices.Clone(e.pages),
		Theme:            e.theme,
		GitInfo:          e.gitInfo,
		Profile:          e.profile,
	}
}

// Handle receives one message and processes everything queued.
func (e *Engine) Handle(in *protocol.Inbound) {
	e.Receive(in)
	e.Flush()
}

// Receive queues in for processing. A message without a run id is tagged
// with the run active at arrival. A new session first drains the queue in
// arrival order: run-bound messages queued before it are dropped and side
// channels are applied. Then the new run starts.
func (e *Engine) Receive(in *protocol.Inbound) {
	if in == nil || (in.Message == nil && !in.IsRef()) {
		return
	}
	if in.Metadata.Cacheable && !in.IsRef() {
		e.cache.Store(in.Hash, in.Message)
	}
	if ns, ok := in.Message.(*protocol.NewSession); ok {
		e.supersede()
		e.startRun(ns)
		e.notify()
		return
	}

	tagged := *in
	if tagged.RunID == "" {
		tagged.RunID = e.run.RunID
	}
	e.queue = append(e.queue, &tagged)
	if glog.V(2) {
		glog.Infof("session: queued %s for run %s (%d pending)", messageType(in), tagged.RunID, len(e.queue))
	}
}

// Flush processes queued messages in arrival order.
func (e *Engine) Flush() {
	for len(e.queue) > 0 {
		in := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		if e.process(in) {
			e.notify()
		}
	}
	e.queue = nil
}

func (e *Engine) supersede() {
	e.superseding = true
	defer func() { e.superseding = false }()
	e.Flush()
}

// ReportDecodeFailure aborts the active run after a frame could not be
// decoded.
func (e *Engine) ReportDecodeFailure(err error) {
	glog.Infof("session: decode failure in run %s: %v", e.run.RunID, err)
	e.recorder.Record(e.run.RunID, domain.EventTypeDecodeFailure, errorPayload(err))
	if e.abort(err) {
		e.notify()
	}
}

// Reset returns the engine to its initial state. Cached messages and widget
// values are discarded.
func (e *Engine) Reset() {
	glog.Infof("session: reset (run %s, status %s)", e.run.RunID, e.run.Status)
	e.cache.Clear()
	e.widgets.Reset()
	e.tree = doctree.New()
	e.run = domain.Run{Status: domain.RunStatusIdle}
	e.queue = nil
	e.pageContext = domain.PageContext{}
	e.pageConfig = protocol.PageConfigChanged{}
	e.sessionConfig = protocol.SessionConfig{}
	e.sessionStatus = protocol.SessionStatusChanged{}
	e.lastSessionEvent = nil
	e.pageNotFound = ""
	e.pages = nil
	e.theme = nil
	e.gitInfo = nil
	e.profile = nil
	e.notify()
}

func (e *Engine) notify() {
	if e.opts.OnChange != nil {
		e.opts.OnChange(e)
	}
}

// process applies one queued message and reports whether the tree or the
// run status changed.
func (e *Engine) process(in *protocol.Inbound) bool {
	msg := in.Message
	if in.IsRef() {
		cached, err := e.cache.Resolve(in.RefHash)
		if err != nil {
			if e.isStale(in) {
				e.dropStale(in)
				return false
			}
			return e.cacheMiss(in, err)
		}
		msg = cached
	}

	switch m := msg.(type) {
	case *protocol.NewSession:
		// Only reachable through a cache reference.
		e.startRun(m)
		return true
	case *protocol.NewElement, *protocol.AddBlock, *protocol.AddRows:
		return e.applyMutation(in, m)
	case *protocol.ScriptFinished:
		if e.isStale(in) {
			e.dropStale(in)
			return false
		}
		return e.scriptFinished(m)
	case *protocol.SessionEvent:
		return e.sessionEvent(in, m)
	case *protocol.PageInfoChanged:
		e.pageContext.QueryString = m.QueryString
	case *protocol.PageConfigChanged:
		e.mergePageConfig(m)
	case *protocol.GitInfoChanged:
		e.gitInfo = m.Raw
	case *protocol.PageProfile:
		e.profile = m.Raw
	case *protocol.SessionStatusChanged:
		e.sessionStatus = *m
	case *protocol.PageNotFound:
		glog.Infof("session: page %q not found", m.PageName)
		e.pageNotFound = m.PageName
		e.recorder.Record(e.run.RunID, domain.EventTypePageNotFound, m)
	case *protocol.PagesChanged:
		e.pages = slices.Clone(m.Pages)
	default:
		glog.Errorf("session: unhandled message %T", msg)
	}
	return false
}

// isStale reports whether a run-bound message belongs to a run that is no
// longer receiving output.
func (e *Engine) isStale(in *protocol.Inbound) bool {
	return e.superseding || in.RunID != e.run.RunID || e.run.Status != domain.RunStatusRunning
}

func (e *Engine) dropStale(in *protocol.Inbound) {
	if glog.V(1) {
		glog.Infof("session: dropped %s for run %s, active run is %s (%s)", messageType(in), in.RunID, e.run.RunID, e.run.Status)
	}
	e.recorder.Record(in.RunID, domain.EventTypeStaleDropped, map[string]string{
		"type":          messageType(in),
		"active_run_id": e.run.RunID,
	})
}

func (e *Engine) applyMutation(in *protocol.Inbound, msg protocol.Message) bool {
	if e.isStale(in) {
		e.dropStale(in)
		return false
	}

	if in.Metadata.DeltaPath == nil {
		return e.abort(fmt.Errorf("%w: %s without a delta path", doctree.ErrMalformedPath, msg.Type()))
	}
	path := doctree.Path(in.Metadata.DeltaPath)
	dim := in.Metadata.ElementDimension
	var err error
	switch m := msg.(type) {
	case *protocol.NewElement:
		err = e.tree.SetLeaf(path, &m.Element, dim)
	case *protocol.AddBlock:
		err = e.tree.SetContainer(path, &m.Block, dim)
	case *protocol.AddRows:
		err = e.tree.AppendRows(path, &m.Table)
	}

	switch {
	case err == nil:
		return true
	case errors.Is(err, doctree.ErrInvalidMutation):
		glog.Infof("session: run %s: dropped mutation: %v", e.run.RunID, err)
		e.recorder.Record(e.run.RunID, domain.EventTypeInvalidMutation, map[string]any{
			"type":  msg.Type(),
			"path":  path,
			"error": err.Error(),
		})
		return false
	default:
		return e.abort(err)
	}
}

func (e *Engine) cacheMiss(in *protocol.Inbound, err error) bool {
	glog.Infof("session: run %s: %v", e.run.RunID, err)
	e.recorder.Record(e.run.RunID, domain.EventTypeCacheMiss, map[string]string{"hash": in.RefHash})
	changed := e.abort(err)
	if e.opts.OnResync != nil {
		e.opts.OnResync(e, err)
	}
	return changed
}

func (e *Engine) scriptFinished(m *protocol.ScriptFinished) bool {
	switch m.Status {
	case protocol.FinishedSuccessfully:
		e.finish(domain.RunStatusFinishedOK, nil)
	case protocol.FinishedEarlyForRerun:
		e.finish(domain.RunStatusFinishedEarly, nil)
	default:
		e.finish(domain.RunStatusFinishedError, m.Error)
	}
	return true
}

// sessionEvent records m. A compile exception also ends the run it belongs
// to.
func (e *Engine) sessionEvent(in *protocol.Inbound, m *protocol.SessionEvent) bool {
	ev := *m
	e.lastSessionEvent = &ev
	e.recorder.Record(in.RunID, domain.EventTypeSessionEvent, m)
	if m.Kind != protocol.SessionEventCompilationException {
		return false
	}
	if e.isStale(in) {
		e.dropStale(in)
		return false
	}
	glog.Infof("session: run %s failed to compile", e.run.RunID)
	e.finish(domain.RunStatusFinishedError, m.Exception)
	return true
}

func (e *Engine) mergePageConfig(m *protocol.PageConfigChanged) {
	if m.Title != "" {
		e.pageConfig.Title = m.Title
	}
	if m.Favicon != "" {
		e.pageConfig.Favicon = m.Favicon
	}
	if m.Layout != "" {
		e.pageConfig.Layout = m.Layout
	}
	if m.InitialSidebarState != "" {
		e.pageConfig.InitialSidebarState = m.InitialSidebarState
	}
	if len(m.MenuItems) > 0 {
		e.pageConfig.MenuItems = m.MenuItems
	}
}

// startRun supersedes the current run. A run still in progress finishes
// early.
func (e *Engine) startRun(ns *protocol.NewSession) {
	if e.run.Status == domain.RunStatusRunning {
		e.finish(domain.RunStatusFinishedEarly, nil)
	}

	e.tree = doctree.New()
	e.run = domain.Run{
		RunID:          ns.RunID,
		Status:         domain.RunStatusRunning,
		PageScriptHash: ns.PageContext.PageScriptHash,
		StartedAt:      time.Now(),
	}

	e.pageContext = ns.PageContext
	e.sessionConfig = ns.SessionConfig
	if age := ns.SessionConfig.MaxCachedMessageAge; age != nil {
		e.cache.SetMaxAge(*age)
	}
	if len(ns.Theme) > 0 {
		e.theme = ns.Theme
	}
	if ns.Pages != nil {
		e.pages = slices.Clone(ns.Pages)
	}
	e.pageNotFound = ""

	glog.V(1).Infof("session: run %s started on page %q", ns.RunID, ns.PageContext.PageName)
	e.recorder.RunStarted(e.run)
}

// finish moves the active run into a terminal status and ages the cache.
func (e *Engine) finish(status domain.RunStatus, cause json.RawMessage) {
	now := time.Now()
	e.run.Status = status
	e.run.EndedAt = &now
	e.run.Error = cause

	evicted := e.cache.IncrementRunCount()
	glog.V(1).Infof("session: run %s %s, %d cached messages evicted", e.run.RunID, status, evicted)
	e.recorder.RunFinished(e.run)
}

// abort ends the active run with err as its cause. It reports whether there
// was a running run to abort.
func (e *Engine) abort(err error) bool {
	if e.run.Status != domain.RunStatusRunning {
		return false
	}
	glog.Infof("session: run %s aborted: %v", e.run.RunID, err)
	payload := errorPayload(err)
	e.recorder.Record(e.run.RunID, domain.EventTypeRunAborted, payload)
	cause, _ := json.Marshal(payload)
	e.finish(domain.RunStatusFinishedError, cause)
	return true
}

func errorPayload(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

func messageType(in *protocol.Inbound) string {
	if in.IsRef() {
		return protocol.TypeRef
	}
	return in.Message.Type()
}

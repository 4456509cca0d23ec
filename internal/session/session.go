// Package session runs the client side of a session: it arbitrates which
// messages belong to the current run, resolves cache references, feeds
// mutations to the document tree and builds the requests sent back to the
// server.
//
// An Engine is owned by a single goroutine. Every method except those of
// the widget store must be called from it; transports hand other goroutines
// a way to run functions there (see ws.Client.Do).
package session

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/xiaot623/livedoc/internal/domain"
	"github.com/xiaot623/livedoc/internal/protocol"
	"github.com/xiaot623/livedoc/internal/widgets"
)

var (
	// ErrOutboundDenied is returned when the outbound policy rejects a request.
	ErrOutboundDenied = errors.New("outbound request denied")
	// ErrNoSender is returned when a request is made on an engine without a
	// sender.
	ErrNoSender = errors.New("no sender configured")
)

// Sender delivers outbound envelopes to the server.
type Sender interface {
	Send(ctx context.Context, out *protocol.Outbound) error
}

// Recorder receives every reportable occurrence. Implementations are called
// on the engine goroutine and must not call back into the engine.
type Recorder interface {
	RunStarted(run domain.Run)
	RunFinished(run domain.Run)
	Record(runID string, eventType domain.EventType, payload any)
}

// Policy decides whether an outbound request may be sent.
type Policy interface {
	Allow(ctx context.Context, req protocol.Request) (bool, string, error)
}

// Options configures an Engine. Every field is optional.
type Options struct {
	// MaxCachedMessageAge is the number of finished runs a cached message
	// survives without being referenced. Zero means msgcache.DefaultMaxAge;
	// each new session may override it.
	MaxCachedMessageAge int
	Widgets             *widgets.Store
	Sender              Sender
	Recorder            Recorder
	Policy              Policy

	// OnChange is called after each processed message that changed the tree
	// or the run status.
	OnChange func(e *Engine)
	// OnResync is called when a cache reference could not be resolved and
	// the session has to be rebuilt from a fresh run.
	OnResync func(e *Engine, err error)
}

// Info is a copy of the session's current state outside the tree.
type Info struct {
	RunID            string                        `json:"run_id,omitempty"`
	Status           domain.RunStatus              `json:"status"`
	Pending          int                           `json:"pending"`
	CachedMessages   int                           `json:"cached_messages"`
	PageContext      domain.PageContext            `json:"page_context"`
	PageConfig       protocol.PageConfigChanged    `json:"page_config"`
	SessionConfig    protocol.SessionConfig        `json:"session_config"`
	SessionStatus    protocol.SessionStatusChanged `json:"session_status"`
	LastSessionEvent *protocol.SessionEvent        `json:"last_session_event,omitempty"`
	PageNotFound     string                        `json:"page_not_found,omitempty"`
	Pages            []domain.Page                 `json:"pages,omitempty"`
	Theme            json.RawMessage               `json:"theme,omitempty"`
	GitInfo          json.RawMessage               `json:"git_info,omitempty"`
	Profile          json.RawMessage               `json:"profile,omitempty"`
}

type nopRecorder struct{}

func (nopRecorder) RunStarted(domain.Run)                {}
func (nopRecorder) RunFinished(domain.Run)               {}
func (nopRecorder) Record(string, domain.EventType, any) {}

// Package protocol defines the WebSocket message protocol between the server
// runtime and the session engine.
package protocol

import (
	"encoding/json"

	"github.com/xiaot623/livedoc/internal/domain"
)

// Message types from server to client
const (
	TypeNewSession           = "new_session"
	TypeNewElement           = "new_element"
	TypeAddBlock             = "add_block"
	TypeAddRows              = "add_rows"
	TypePageInfoChanged      = "page_info_changed"
	TypePageConfigChanged    = "page_config_changed"
	TypeScriptFinished       = "script_finished"
	TypeGitInfoChanged       = "git_info_changed"
	TypePageProfile          = "page_profile"
	TypeSessionStatusChanged = "session_status_changed"
	TypeSessionEvent         = "session_event"
	TypePageNotFound         = "page_not_found"
	TypePagesChanged         = "pages_changed"

	// TypeRef carries only a hash naming a previously cached message.
	TypeRef = "ref"
)

// Metadata accompanies every inbound message.
type Metadata struct {
	Cacheable        bool              `json:"cacheable,omitempty"`
	DeltaPath        []int             `json:"delta_path"` // nil for non-mutations
	ElementDimension *domain.Dimension `json:"element_dimension,omitempty"`
}

// Inbound is one decoded server message. Message is nil exactly when RefHash
// is set.
type Inbound struct {
	Hash     string
	RefHash  string
	RunID    string
	Metadata Metadata
	Message  Message
}

// IsRef reports whether in refers to a cached message instead of carrying one.
func (in *Inbound) IsRef() bool {
	return in.RefHash != ""
}

// Message is the payload of an inbound envelope. The set of implementations
// is closed; dispatch with an exhaustive type switch.
type Message interface {
	Type() string
}

// SessionConfig is the per-session configuration sent with each new session.
type SessionConfig struct {
	MaxCachedMessageAge *int `json:"max_cached_message_age,omitempty"`
	AllowRunOnSave      bool `json:"allow_run_on_save,omitempty"`
	HideSidebarNav      bool `json:"hide_sidebar_nav,omitempty"`
}

// NewSession starts a run.
type NewSession struct {
	RunID         string             `json:"script_run_id"`
	PageContext   domain.PageContext `json:"page_context"`
	SessionConfig SessionConfig      `json:"config"`
	Theme         json.RawMessage    `json:"custom_theme,omitempty"`
	Pages         []domain.Page      `json:"app_pages,omitempty"`
}

// NewElement writes a leaf at the metadata's delta path.
type NewElement struct {
	domain.Element
}

// AddBlock writes a container at the metadata's delta path.
type AddBlock struct {
	domain.Block
}

// AddRows appends rows to the tabular leaf at the metadata's delta path.
type AddRows struct {
	domain.Table
}

type PageInfoChanged struct {
	QueryString string `json:"query_string"`
}

type PageConfigChanged struct {
	Title               string          `json:"title,omitempty"`
	Favicon             string          `json:"favicon,omitempty"`
	Layout              string          `json:"layout,omitempty"`
	InitialSidebarState string          `json:"initial_sidebar_state,omitempty"`
	MenuItems           json.RawMessage `json:"menu_items,omitempty"`
}

// FinishedStatus is the terminal status reported by the server.
type FinishedStatus string

const (
	FinishedSuccessfully  FinishedStatus = "finished_successfully"
	FinishedWithError     FinishedStatus = "finished_with_compile_error"
	FinishedEarlyForRerun FinishedStatus = "finished_early_for_rerun"
)

// Valid reports whether s is a known finish status.
func (s FinishedStatus) Valid() bool {
	switch s {
	case FinishedSuccessfully, FinishedWithError, FinishedEarlyForRerun:
		return true
	}
	return false
}

type ScriptFinished struct {
	Status FinishedStatus  `json:"status"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// GitInfoChanged is passed through uninterpreted.
type GitInfoChanged struct {
	Raw json.RawMessage
}

// PageProfile is passed through uninterpreted.
type PageProfile struct {
	Raw json.RawMessage
}

type SessionStatusChanged struct {
	RunOnSave       bool `json:"run_on_save"`
	ScriptIsRunning bool `json:"script_is_running"`
}

// SessionEventKind is the kind of a session event.
type SessionEventKind string

const (
	SessionEventScriptChangedOnDisk  SessionEventKind = "script_changed_on_disk"
	SessionEventManuallyStopped      SessionEventKind = "script_was_manually_stopped"
	SessionEventCompilationException SessionEventKind = "script_compilation_exception"
)

type SessionEvent struct {
	Kind      SessionEventKind `json:"kind"`
	Exception json.RawMessage  `json:"exception,omitempty"`
}

type PageNotFound struct {
	PageName string `json:"page_name"`
}

type PagesChanged struct {
	Pages []domain.Page `json:"app_pages"`
}

func (*NewSession) Type() string           { return TypeNewSession }
func (*NewElement) Type() string           { return TypeNewElement }
func (*AddBlock) Type() string             { return TypeAddBlock }
func (*AddRows) Type() string              { return TypeAddRows }
func (*PageInfoChanged) Type() string      { return TypePageInfoChanged }
func (*PageConfigChanged) Type() string    { return TypePageConfigChanged }
func (*ScriptFinished) Type() string       { return TypeScriptFinished }
func (*GitInfoChanged) Type() string       { return TypeGitInfoChanged }
func (*PageProfile) Type() string          { return TypePageProfile }
func (*SessionStatusChanged) Type() string { return TypeSessionStatusChanged }
func (*SessionEvent) Type() string         { return TypeSessionEvent }
func (*PageNotFound) Type() string         { return TypePageNotFound }
func (*PagesChanged) Type() string         { return TypePagesChanged }

func (m *GitInfoChanged) MarshalJSON() ([]byte, error) { return marshalRaw(m.Raw) }
func (m *PageProfile) MarshalJSON() ([]byte, error)    { return marshalRaw(m.Raw) }

func (m *GitInfoChanged) UnmarshalJSON(b []byte) error {
	m.Raw = append(json.RawMessage(nil), b...)
	return nil
}

func (m *PageProfile) UnmarshalJSON(b []byte) error {
	m.Raw = append(json.RawMessage(nil), b...)
	return nil
}

func marshalRaw(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return []byte("{}"), nil
	}
	return raw, nil
}

// IsMutation reports whether m changes the document tree.
func IsMutation(m Message) bool {
	switch m.(type) {
	case *NewElement, *AddBlock, *AddRows:
		return true
	}
	return false
}

package protocol

import "github.com/xiaot623/livedoc/internal/widgets"

// Message types from client to server
const (
	TypeRerunScript              = "rerun_script"
	TypeClearCache               = "clear_cache"
	TypeSetRunOnSave             = "set_run_on_save"
	TypeStopScript               = "stop_script"
	TypeLoadGitInfo              = "load_git_info"
	TypeDebugDisconnectWebsocket = "debug_disconnect_websocket"
	TypeDebugShutdownRuntime     = "debug_shutdown_runtime"
)

// Outbound is one client message. RequestID is echoed by the server.
type Outbound struct {
	RequestID string
	Request   Request
}

// Request is the payload of an outbound envelope.
type Request interface {
	Type() string
	// Debug reports whether the request is a developer-only passthrough.
	Debug() bool
}

// RerunScript asks the server to run the script again with the current
// widget values.
type RerunScript struct {
	QueryString    string          `json:"query_string"`
	PageScriptHash string          `json:"page_script_hash,omitempty"`
	PageName       string          `json:"page_name,omitempty"`
	WidgetStates   []widgets.State `json:"widget_states"`
}

type ClearCache struct{}

type SetRunOnSave struct {
	RunOnSave bool `json:"run_on_save"`
}

type StopScript struct{}

type LoadGitInfo struct{}

type DebugDisconnectWebsocket struct{}

type DebugShutdownRuntime struct{}

func (*RerunScript) Type() string              { return TypeRerunScript }
func (*ClearCache) Type() string               { return TypeClearCache }
func (*SetRunOnSave) Type() string             { return TypeSetRunOnSave }
func (*StopScript) Type() string               { return TypeStopScript }
func (*LoadGitInfo) Type() string              { return TypeLoadGitInfo }
func (*DebugDisconnectWebsocket) Type() string { return TypeDebugDisconnectWebsocket }
func (*DebugShutdownRuntime) Type() string     { return TypeDebugShutdownRuntime }

func (*RerunScript) Debug() bool              { return false }
func (*ClearCache) Debug() bool               { return false }
func (*SetRunOnSave) Debug() bool             { return false }
func (*StopScript) Debug() bool               { return false }
func (*LoadGitInfo) Debug() bool              { return false }
func (*DebugDisconnectWebsocket) Debug() bool { return true }
func (*DebugShutdownRuntime) Debug() bool     { return true }

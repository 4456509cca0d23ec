package domain

import (
	"encoding/json"
	"time"
)

// Block holds the attributes of a container node. Only the fields relevant to
// Kind are meaningful.
type Block struct {
	Kind       BlockKind `json:"kind"`
	AllowEmpty bool      `json:"allow_empty,omitempty"`

	// horizontal, column
	Gap string `json:"gap,omitempty"`
	// column
	Weight float64 `json:"weight,omitempty"`
	// expandable, tab
	Label string `json:"label,omitempty"`
	// expandable
	Expanded bool `json:"expanded,omitempty"`
	// form
	FormID        string `json:"form_id,omitempty"`
	ClearOnSubmit bool   `json:"clear_on_submit,omitempty"`
	Border        bool   `json:"border,omitempty"`
}

// Element holds a leaf payload. Attrs is the kind-specific attribute set and
// is not interpreted by the engine.
type Element struct {
	Kind     ElementKind     `json:"kind"`
	WidgetID string          `json:"widget_id,omitempty"`
	Body     string          `json:"body,omitempty"`
	Attrs    json.RawMessage `json:"attrs,omitempty"`
	Table    *Table          `json:"table,omitempty"`
}

// Clone returns a copy of e whose table can be mutated independently.
func (e *Element) Clone() *Element {
	if e == nil {
		return nil
	}
	c := *e
	if e.Attrs != nil {
		c.Attrs = append(json.RawMessage(nil), e.Attrs...)
	}
	c.Table = e.Table.Clone()
	return &c
}

// Dimension is the optional size hint sent alongside a mutation.
type Dimension struct {
	Width             int  `json:"width,omitempty"`
	Height            int  `json:"height,omitempty"`
	UseContainerWidth bool `json:"use_container_width,omitempty"`
}

// PageContext identifies the page the user is viewing.
type PageContext struct {
	PageScriptHash string `json:"page_script_hash,omitempty"`
	PageName       string `json:"page_name,omitempty"`
	QueryString    string `json:"query_string,omitempty"`
}

// Page is one entry of the app's page list.
type Page struct {
	PageScriptHash string `json:"page_script_hash"`
	PageName       string `json:"page_name"`
	Icon           string `json:"icon,omitempty"`
	IsDefault      bool   `json:"is_default,omitempty"`
}

// Run is the journal record of a single script execution.
type Run struct {
	RunID          string          `json:"run_id"`
	Status         RunStatus       `json:"status"`
	PageScriptHash string          `json:"page_script_hash,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	EndedAt        *time.Time      `json:"ended_at,omitempty"`
	Error          json.RawMessage `json:"error,omitempty"`
}

// Event is a reportable occurrence recorded for observability.
type Event struct {
	EventID string          `json:"event_id"`
	RunID   string          `json:"run_id"`
	Ts      int64           `json:"ts"` // Unix milliseconds
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

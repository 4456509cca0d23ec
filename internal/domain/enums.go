// Package domain defines the data model shared by the session engine.
package domain

// RunStatus represents the status of a run.
type RunStatus string

const (
	RunStatusIdle          RunStatus = "idle"
	RunStatusRunning       RunStatus = "running"
	RunStatusFinishedOK    RunStatus = "finished-ok"
	RunStatusFinishedError RunStatus = "finished-with-error"
	RunStatusFinishedEarly RunStatus = "finished-early-for-rerun"
)

// IsTerminal reports whether the status is one of the finished states.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusFinishedOK, RunStatusFinishedError, RunStatusFinishedEarly:
		return true
	}
	return false
}

// BlockKind is the kind of a container node.
type BlockKind string

const (
	BlockKindVertical     BlockKind = "vertical"
	BlockKindHorizontal   BlockKind = "horizontal"
	BlockKindColumn       BlockKind = "column"
	BlockKindExpandable   BlockKind = "expandable"
	BlockKindForm         BlockKind = "form"
	BlockKindTabContainer BlockKind = "tab-container"
	BlockKindTab          BlockKind = "tab"
)

// Valid reports whether k is a known container kind.
func (k BlockKind) Valid() bool {
	switch k {
	case BlockKindVertical, BlockKindHorizontal, BlockKindColumn, BlockKindExpandable,
		BlockKindForm, BlockKindTabContainer, BlockKindTab:
		return true
	}
	return false
}

// ElementKind is the kind of a leaf node.
type ElementKind string

const (
	ElementKindText      ElementKind = "text"
	ElementKindMarkdown  ElementKind = "markdown"
	ElementKindCode      ElementKind = "code"
	ElementKindAlert     ElementKind = "alert"
	ElementKindException ElementKind = "exception"
	ElementKindJSON      ElementKind = "json"
	ElementKindMetric    ElementKind = "metric"
	ElementKindImage     ElementKind = "image"
	ElementKindEmpty     ElementKind = "empty"
	ElementKindChart     ElementKind = "chart"
	ElementKindDataFrame ElementKind = "data-frame"
	ElementKindTable     ElementKind = "table"

	// Interactive controls.
	ElementKindButton       ElementKind = "button"
	ElementKindCheckbox     ElementKind = "checkbox"
	ElementKindSlider       ElementKind = "slider"
	ElementKindNumberInput  ElementKind = "number-input"
	ElementKindTextInput    ElementKind = "text-input"
	ElementKindTextArea     ElementKind = "text-area"
	ElementKindSelectbox    ElementKind = "selectbox"
	ElementKindMultiselect  ElementKind = "multiselect"
	ElementKindRadio        ElementKind = "radio"
	ElementKindDateInput    ElementKind = "date-input"
	ElementKindColorPicker  ElementKind = "color-picker"
	ElementKindFileUploader ElementKind = "file-uploader"
	ElementKindDataEditor   ElementKind = "data-editor"
)

// Valid reports whether k is a known element kind.
func (k ElementKind) Valid() bool {
	switch k {
	case ElementKindText, ElementKindMarkdown, ElementKindCode, ElementKindAlert,
		ElementKindException, ElementKindJSON, ElementKindMetric, ElementKindImage,
		ElementKindEmpty, ElementKindChart, ElementKindDataFrame, ElementKindTable,
		ElementKindButton, ElementKindCheckbox, ElementKindSlider, ElementKindNumberInput,
		ElementKindTextInput, ElementKindTextArea, ElementKindSelectbox, ElementKindMultiselect,
		ElementKindRadio, ElementKindDateInput, ElementKindColorPicker, ElementKindFileUploader,
		ElementKindDataEditor:
		return true
	}
	return false
}

// Tabular reports whether elements of this kind carry a table that rows can
// be appended to.
func (k ElementKind) Tabular() bool {
	switch k {
	case ElementKindChart, ElementKindDataFrame, ElementKindTable, ElementKindDataEditor:
		return true
	}
	return false
}

// EventType represents the type of a journal event.
type EventType string

const (
	EventTypeRunStarted      EventType = "run_started"
	EventTypeRunFinished     EventType = "run_finished"
	EventTypeRunAborted      EventType = "run_aborted"
	EventTypeStaleDropped    EventType = "stale_message_dropped"
	EventTypeInvalidMutation EventType = "invalid_mutation"
	EventTypeCacheMiss       EventType = "cache_miss"
	EventTypeDecodeFailure   EventType = "decode_failure"
	EventTypePageNotFound    EventType = "page_not_found"
	EventTypeSessionEvent    EventType = "session_event"
	EventTypeOutboundSent    EventType = "outbound_sent"
	EventTypeOutboundDenied  EventType = "outbound_denied"
	EventTypeOutboundFailed  EventType = "outbound_failed"
)

package widgets

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidValue is returned for a missing value, a wire state without
// exactly one value set, or a JSON value that does not parse.
var ErrInvalidValue = errors.New("invalid widget value")

// ValueKind names the variant held by a Value.
type ValueKind string

const (
	KindTrigger           ValueKind = "trigger"
	KindBool              ValueKind = "bool"
	KindDouble            ValueKind = "double"
	KindInt               ValueKind = "int"
	KindString            ValueKind = "string"
	KindStringArray       ValueKind = "string_array"
	KindDoubleArray       ValueKind = "double_array"
	KindJSON              ValueKind = "json"
	KindArrowTable        ValueKind = "arrow_table"
	KindBytes             ValueKind = "bytes"
	KindFileUploaderState ValueKind = "file_uploader_state"
)

// Value is the current value of one control. The set of implementations is
// closed; switch over them exhaustively.
type Value interface {
	Kind() ValueKind
	clone() Value
}

// Trigger is a one-shot press, such as a button click.
type Trigger struct{}

type Bool bool

type Double float64

type Int int64

type String string

type StringArray []string

type DoubleArray []float64

// JSON holds a serialized JSON document.
type JSON string

// ArrowTable holds an opaque serialized table, as edited in a data editor.
type ArrowTable []byte

type Bytes []byte

// UploadedFile describes one file held by a file uploader.
type UploadedFile struct {
	FileID string `json:"file_id"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
}

// FileUploaderState is the state of a file uploader control.
type FileUploaderState struct {
	MaxFileID int            `json:"max_file_id"`
	Files     []UploadedFile `json:"uploaded_file_info,omitempty"`
}

func (Trigger) Kind() ValueKind           { return KindTrigger }
func (Bool) Kind() ValueKind              { return KindBool }
func (Double) Kind() ValueKind            { return KindDouble }
func (Int) Kind() ValueKind               { return KindInt }
func (String) Kind() ValueKind            { return KindString }
func (StringArray) Kind() ValueKind       { return KindStringArray }
func (DoubleArray) Kind() ValueKind       { return KindDoubleArray }
func (JSON) Kind() ValueKind              { return KindJSON }
func (ArrowTable) Kind() ValueKind        { return KindArrowTable }
func (Bytes) Kind() ValueKind             { return KindBytes }
func (FileUploaderState) Kind() ValueKind { return KindFileUploaderState }

func (v Trigger) clone() Value     { return v }
func (v Bool) clone() Value        { return v }
func (v Double) clone() Value      { return v }
func (v Int) clone() Value         { return v }
func (v String) clone() Value      { return v }
func (v StringArray) clone() Value { return slices.Clone(v) }
func (v DoubleArray) clone() Value { return slices.Clone(v) }
func (v JSON) clone() Value        { return v }
func (v ArrowTable) clone() Value  { return slices.Clone(v) }
func (v Bytes) clone() Value       { return slices.Clone(v) }

func (v FileUploaderState) clone() Value {
	v.Files = slices.Clone(v.Files)
	return v
}

func validate(v Value) error {
	switch v := v.(type) {
	case nil:
		return fmt.Errorf("%w: no value", ErrInvalidValue)
	case JSON:
		if !json.Valid([]byte(v)) {
			return fmt.Errorf("%w: json value does not parse", ErrInvalidValue)
		}
	}
	return nil
}

// State is the wire form of one widget record. Exactly one value field is set.
type State struct {
	ID                     string             `json:"id"`
	TriggerValue           *bool              `json:"trigger_value,omitempty"`
	BoolValue              *bool              `json:"bool_value,omitempty"`
	DoubleValue            *float64           `json:"double_value,omitempty"`
	IntValue               *int64             `json:"int_value,omitempty"`
	StringValue            *string            `json:"string_value,omitempty"`
	StringArrayValue       *StringArrayState  `json:"string_array_value,omitempty"`
	DoubleArrayValue       *DoubleArrayState  `json:"double_array_value,omitempty"`
	JSONValue              *string            `json:"json_value,omitempty"`
	ArrowValue             *ArrowState        `json:"arrow_value,omitempty"`
	BytesValue             *BytesState        `json:"bytes_value,omitempty"`
	FileUploaderStateValue *FileUploaderState `json:"file_uploader_state_value,omitempty"`
}

type StringArrayState struct {
	Data []string `json:"data"`
}

type DoubleArrayState struct {
	Data []float64 `json:"data"`
}

type ArrowState struct {
	Data []byte `json:"data"`
}

type BytesState struct {
	Data []byte `json:"data"`
}

// ToState converts a record to its wire form.
func ToState(id string, v Value) State {
	s := State{ID: id}
	switch v := v.(type) {
	case Trigger:
		t := true
		s.TriggerValue = &t
	case Bool:
		b := bool(v)
		s.BoolValue = &b
	case Double:
		f := float64(v)
		s.DoubleValue = &f
	case Int:
		i := int64(v)
		s.IntValue = &i
	case String:
		str := string(v)
		s.StringValue = &str
	case StringArray:
		s.StringArrayValue = &StringArrayState{Data: slices.Clone([]string(v))}
	case DoubleArray:
		s.DoubleArrayValue = &DoubleArrayState{Data: slices.Clone([]float64(v))}
	case JSON:
		str := string(v)
		s.JSONValue = &str
	case ArrowTable:
		s.ArrowValue = &ArrowState{Data: slices.Clone([]byte(v))}
	case Bytes:
		s.BytesValue = &BytesState{Data: slices.Clone([]byte(v))}
	case FileUploaderState:
		f := v.clone().(FileUploaderState)
		s.FileUploaderStateValue = &f
	}
	return s
}

// FromState converts a wire record back to a Value.
func FromState(s State) (Value, error) {
	var (
		out Value
		n   int
	)
	set := func(v Value) {
		out = v
		n++
	}
	if s.TriggerValue != nil {
		set(Trigger{})
	}
	if s.BoolValue != nil {
		set(Bool(*s.BoolValue))
	}
	if s.DoubleValue != nil {
		set(Double(*s.DoubleValue))
	}
	if s.IntValue != nil {
		set(Int(*s.IntValue))
	}
	if s.StringValue != nil {
		set(String(*s.StringValue))
	}
	if s.StringArrayValue != nil {
		set(StringArray(slices.Clone(s.StringArrayValue.Data)))
	}
	if s.DoubleArrayValue != nil {
		set(DoubleArray(slices.Clone(s.DoubleArrayValue.Data)))
	}
	if s.JSONValue != nil {
		set(JSON(*s.JSONValue))
	}
	if s.ArrowValue != nil {
		set(ArrowTable(slices.Clone(s.ArrowValue.Data)))
	}
	if s.BytesValue != nil {
		set(Bytes(slices.Clone(s.BytesValue.Data)))
	}
	if s.FileUploaderStateValue != nil {
		set(s.FileUploaderStateValue.clone())
	}

	if n != 1 {
		return nil, fmt.Errorf("%w: widget %q has %d values set", ErrInvalidValue, s.ID, n)
	}
	if err := validate(out); err != nil {
		return nil, fmt.Errorf("widget %q: %w", s.ID, err)
	}
	return out, nil
}

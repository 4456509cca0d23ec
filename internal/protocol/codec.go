package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDecodeFailure is returned for any inbound frame that cannot be turned
// into an Inbound.
var ErrDecodeFailure = errors.New("decode failure")

type inboundEnvelope struct {
	Type     string          `json:"type"`
	Hash     string          `json:"hash,omitempty"`
	RefHash  string          `json:"ref_hash,omitempty"`
	RunID    string          `json:"run_id,omitempty"`
	Metadata *Metadata       `json:"metadata,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

type outboundEnvelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	Payload   json.RawMessage `json:"payload"`
}

func newMessage(typ string) Message {
	switch typ {
	case TypeNewSession:
		return &NewSession{}
	case TypeNewElement:
		return &NewElement{}
	case TypeAddBlock:
		return &AddBlock{}
	case TypeAddRows:
		return &AddRows{}
	case TypePageInfoChanged:
		return &PageInfoChanged{}
	case TypePageConfigChanged:
		return &PageConfigChanged{}
	case TypeScriptFinished:
		return &ScriptFinished{}
	case TypeGitInfoChanged:
		return &GitInfoChanged{}
	case TypePageProfile:
		return &PageProfile{}
	case TypeSessionStatusChanged:
		return &SessionStatusChanged{}
	case TypeSessionEvent:
		return &SessionEvent{}
	case TypePageNotFound:
		return &PageNotFound{}
	case TypePagesChanged:
		return &PagesChanged{}
	}
	return nil
}

func newRequest(typ string) Request {
	switch typ {
	case TypeRerunScript:
		return &RerunScript{}
	case TypeClearCache:
		return &ClearCache{}
	case TypeSetRunOnSave:
		return &SetRunOnSave{}
	case TypeStopScript:
		return &StopScript{}
	case TypeLoadGitInfo:
		return &LoadGitInfo{}
	case TypeDebugDisconnectWebsocket:
		return &DebugDisconnectWebsocket{}
	case TypeDebugShutdownRuntime:
		return &DebugShutdownRuntime{}
	}
	return nil
}

func decodeErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDecodeFailure, fmt.Sprintf(format, args...))
}

// DecodeInbound parses one server frame.
func DecodeInbound(data []byte) (*Inbound, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailure, err)
	}

	in := &Inbound{Hash: env.Hash, RefHash: env.RefHash, RunID: env.RunID}
	if env.Metadata != nil {
		in.Metadata = *env.Metadata
	}

	if env.Type == TypeRef {
		if env.RefHash == "" {
			return nil, decodeErr("ref without ref_hash")
		}
		if hasPayload(env.Payload) {
			return nil, decodeErr("ref %s carries a payload", env.RefHash)
		}
		return in, nil
	}
	if env.RefHash != "" {
		return nil, decodeErr("%s message carries ref_hash", env.Type)
	}

	msg := newMessage(env.Type)
	if msg == nil {
		return nil, decodeErr("unknown message type %q", env.Type)
	}
	if !hasPayload(env.Payload) {
		return nil, decodeErr("%s message has no payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, msg); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %w", ErrDecodeFailure, env.Type, err)
	}
	if in.Metadata.Cacheable && in.Hash == "" {
		return nil, decodeErr("cacheable %s message has no hash", env.Type)
	}
	if IsMutation(msg) && in.Metadata.DeltaPath == nil {
		return nil, decodeErr("%s message has no delta_path", env.Type)
	}
	switch m := msg.(type) {
	case *NewSession:
		if m.RunID == "" {
			m.RunID = env.RunID
		}
		if m.RunID == "" {
			return nil, decodeErr("new_session without a run id")
		}
	case *ScriptFinished:
		if !m.Status.Valid() {
			return nil, decodeErr("unknown finish status %q", m.Status)
		}
	}

	in.Message = msg
	return in, nil
}

func hasPayload(p json.RawMessage) bool {
	return len(p) > 0 && string(p) != "null"
}

// EncodeInbound serializes in the way a server would send it.
func EncodeInbound(in *Inbound) ([]byte, error) {
	env := inboundEnvelope{
		Hash:    in.Hash,
		RefHash: in.RefHash,
		RunID:   in.RunID,
	}
	md := in.Metadata
	if in.IsRef() {
		env.Type = TypeRef
	} else {
		if in.Message == nil {
			return nil, errors.New("inbound has neither a message nor a ref hash")
		}
		env.Type = in.Message.Type()
		payload, err := json.Marshal(in.Message)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", env.Type, err)
		}
		env.Payload = payload
		if IsMutation(in.Message) && md.DeltaPath == nil {
			md.DeltaPath = []int{}
		}
	}
	if md.Cacheable || md.DeltaPath != nil || md.ElementDimension != nil {
		env.Metadata = &md
	}
	return json.Marshal(env)
}

// EncodeOutbound serializes a client message for sending.
func EncodeOutbound(out *Outbound) ([]byte, error) {
	if out.Request == nil {
		return nil, errors.New("outbound has no request")
	}
	payload, err := json.Marshal(out.Request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", out.Request.Type(), err)
	}
	return json.Marshal(outboundEnvelope{
		Type:      out.Request.Type(),
		RequestID: out.RequestID,
		Payload:   payload,
	})
}

// DecodeOutbound parses a client message, as a server would.
func DecodeOutbound(data []byte) (*Outbound, error) {
	var env outboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailure, err)
	}
	req := newRequest(env.Type)
	if req == nil {
		return nil, decodeErr("unknown request type %q", env.Type)
	}
	if hasPayload(env.Payload) {
		if err := json.Unmarshal(env.Payload, req); err != nil {
			return nil, fmt.Errorf("%w: %s payload: %w", ErrDecodeFailure, env.Type, err)
		}
	}
	return &Outbound{RequestID: env.RequestID, Request: req}, nil
}

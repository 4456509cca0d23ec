package session

import (
	"context"
	"fmt"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/xiaot623/livedoc/internal/domain"
	"github.com/xiaot623/livedoc/internal/protocol"
	"github.com/xiaot623/livedoc/internal/widgets"
)

// RerunOptions selects what a rerun request asks for. Zero fields default
// to the page and query string the user is currently viewing.
type RerunOptions struct {
	QueryString    *string
	PageScriptHash string
	PageName       string
}

// RequestRerun asks the server to run the script again with the current
// widget values. Trigger values are sent once and then removed from the
// store. It returns the request id.
func (e *Engine) RequestRerun(ctx context.Context, opts RerunOptions) (string, error) {
	req := &protocol.RerunScript{
		QueryString:    e.pageContext.QueryString,
		PageScriptHash: e.pageContext.PageScriptHash,
		PageName:       e.pageContext.PageName,
	}
	if opts.QueryString != nil {
		req.QueryString = *opts.QueryString
	}
	if opts.PageScriptHash != "" || opts.PageName != "" {
		req.PageScriptHash = opts.PageScriptHash
		req.PageName = opts.PageName
	}
	return e.send(ctx, req, func() {
		req.WidgetStates = widgets.States(e.widgets.RerunSnapshot())
	})
}

func (e *Engine) RequestClearCache(ctx context.Context) (string, error) {
	return e.send(ctx, &protocol.ClearCache{}, nil)
}

func (e *Engine) SetRunOnSave(ctx context.Context, runOnSave bool) (string, error) {
	return e.send(ctx, &protocol.SetRunOnSave{RunOnSave: runOnSave}, nil)
}

func (e *Engine) StopScript(ctx context.Context) (string, error) {
	return e.send(ctx, &protocol.StopScript{}, nil)
}

func (e *Engine) LoadGitInfo(ctx context.Context) (string, error) {
	return e.send(ctx, &protocol.LoadGitInfo{}, nil)
}

func (e *Engine) DebugDisconnect(ctx context.Context) (string, error) {
	return e.send(ctx, &protocol.DebugDisconnectWebsocket{}, nil)
}

func (e *Engine) DebugShutdown(ctx context.Context) (string, error) {
	return e.send(ctx, &protocol.DebugShutdownRuntime{}, nil)
}

// send checks req against the policy, fills it in with prepare and hands it
// to the sender under a fresh request id.
func (e *Engine) send(ctx context.Context, req protocol.Request, prepare func()) (string, error) {
	if e.opts.Sender == nil {
		return "", ErrNoSender
	}
	if e.opts.Policy != nil {
		allowed, reason, err := e.opts.Policy.Allow(ctx, req)
		if err != nil {
			return "", fmt.Errorf("failed to evaluate outbound policy: %w", err)
		}
		if !allowed {
			glog.Infof("session: %s denied: %s", req.Type(), reason)
			e.recorder.Record(e.run.RunID, domain.EventTypeOutboundDenied, map[string]string{
				"type":   req.Type(),
				"reason": reason,
			})
			return "", fmt.Errorf("%w: %s: %s", ErrOutboundDenied, req.Type(), reason)
		}
	}
	if prepare != nil {
		prepare()
	}

	out := &protocol.Outbound{RequestID: uuid.New().String(), Request: req}
	if err := e.opts.Sender.Send(ctx, out); err != nil {
		glog.Errorf("session: failed to send %s: %v", req.Type(), err)
		e.recorder.Record(e.run.RunID, domain.EventTypeOutboundFailed, map[string]string{
			"type":       req.Type(),
			"request_id": out.RequestID,
			"error":      err.Error(),
		})
		return "", fmt.Errorf("failed to send %s: %w", req.Type(), err)
	}
	glog.V(1).Infof("session: sent %s %s", req.Type(), out.RequestID)
	e.recorder.Record(e.run.RunID, domain.EventTypeOutboundSent, map[string]string{
		"type":       req.Type(),
		"request_id": out.RequestID,
	})
	return out.RequestID, nil
}

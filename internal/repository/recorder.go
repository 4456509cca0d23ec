package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"

	"github.com/xiaot623/livedoc/internal/domain"
)

// Recorder journals what the session engine reports. Write failures are
// logged and never reach the engine.
type Recorder struct {
	store   *SQLiteStore
	timeout time.Duration
}

func NewRecorder(store *SQLiteStore) *Recorder {
	return &Recorder{store: store, timeout: 5 * time.Second}
}

func (r *Recorder) RunStarted(run domain.Run) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.CreateRun(ctx, &run); err != nil {
		glog.Errorf("journal: failed to create run %s: %v", run.RunID, err)
	}
	r.Record(run.RunID, domain.EventTypeRunStarted, map[string]string{
		"page_script_hash": run.PageScriptHash,
	})
}

func (r *Recorder) RunFinished(run domain.Run) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	endedAt := time.Now()
	if run.EndedAt != nil {
		endedAt = *run.EndedAt
	}
	if err := r.store.UpdateRunCompleted(ctx, run.RunID, run.Status, endedAt, run.Error); err != nil {
		glog.Errorf("journal: failed to complete run %s: %v", run.RunID, err)
	}
	r.Record(run.RunID, domain.EventTypeRunFinished, map[string]any{
		"status": run.Status,
		"error":  run.Error,
	})
}

func (r *Recorder) Record(runID string, eventType domain.EventType, payload any) {
	if err := r.record(runID, eventType, payload); err != nil {
		glog.Errorf("journal: failed to record %s event: %v", eventType, err)
	}
}

// record records an event to the store.
func (r *Recorder) record(runID string, eventType domain.EventType, payload any) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := time.Now()
	event := &domain.Event{
		EventID: ulid.Make().String(),
		RunID:   runID,
		Ts:      now.UnixMilli(),
		Type:    eventType,
		Payload: payloadBytes,
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	return r.store.CreateEvent(ctx, event)
}

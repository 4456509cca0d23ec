// Package helpers holds fixtures shared by journal tests.
package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/xiaot623/livedoc/internal/domain"
	"github.com/xiaot623/livedoc/internal/repository"
)

// NewTestJournal opens an in-memory journal and a recorder writing to it.
// Both are released when the test ends.
func NewTestJournal(t *testing.T) (*repository.SQLiteStore, *repository.Recorder) {
	t.Helper()

	store, err := repository.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	return store, repository.NewRecorder(store)
}

// SeedRuns inserts one running run per id, each started a second after the
// previous one, and returns them in insertion order.
func SeedRuns(t *testing.T, store *repository.SQLiteStore, ids ...string) []domain.Run {
	t.Helper()

	base := time.Now().Add(-time.Duration(len(ids)) * time.Second)
	runs := make([]domain.Run, 0, len(ids))
	for i, id := range ids {
		run := domain.Run{
			RunID:          id,
			Status:         domain.RunStatusRunning,
			PageScriptHash: "page-" + id,
			StartedAt:      base.Add(time.Duration(i) * time.Second),
		}
		if err := store.CreateRun(context.Background(), &run); err != nil {
			t.Fatalf("failed to seed run %s: %v", id, err)
		}
		runs = append(runs, run)
	}
	return runs
}

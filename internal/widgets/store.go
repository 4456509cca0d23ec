// Package widgets stores the current values of interactive controls, keyed
// by widget id, and produces the snapshots sent to the server on a rerun.
//
// The store is the only piece of session state written from outside the
// engine goroutine, so it is guarded by its own lock.
package widgets

import (
	"fmt"
	"slices"
	"sync"
)

// Record is one entry of a snapshot.
type Record struct {
	ID    string
	Value Value
}

// Store holds widget records in first-set order.
type Store struct {
	mu     sync.RWMutex
	values map[string]Value
	order  []string
}

func New() *Store {
	return &Store{values: make(map[string]Value)}
}

// Set overwrites the record for id. A value of a different kind replaces the
// old one outright.
func (s *Store) Set(id string, v Value) error {
	if id == "" {
		return fmt.Errorf("%w: empty widget id", ErrInvalidValue)
	}
	if err := validate(v); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[id]; !ok {
		s.order = append(s.order, id)
	}
	s.values[id] = v.clone()
	return nil
}

// SetState decodes a wire record and stores it.
func (s *Store) SetState(st State) error {
	v, err := FromState(st)
	if err != nil {
		return err
	}
	return s.Set(st.ID, v)
}

func (s *Store) Get(id string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[id]
	if !ok {
		return nil, false
	}
	return v.clone(), true
}

// Clear removes the record for id and reports whether one existed.
func (s *Store) Clear(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[id]; !ok {
		return false
	}
	delete(s.values, id)
	s.order = slices.DeleteFunc(s.order, func(o string) bool { return o == id })
	return true
}

// Reset removes every record.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]Value)
	s.order = nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Snapshot returns a copy of every record in first-set order.
func (s *Store) Snapshot() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// RerunSnapshot returns the snapshot for a rerun request and removes trigger
// records under the same lock, so a press is sent exactly once.
func (s *Store) RerunSnapshot() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.snapshotLocked()
	s.order = slices.DeleteFunc(s.order, func(id string) bool {
		if _, ok := s.values[id].(Trigger); ok {
			delete(s.values, id)
			return true
		}
		return false
	})
	return out
}

func (s *Store) snapshotLocked() []Record {
	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, Record{ID: id, Value: s.values[id].clone()})
	}
	return out
}

// States converts records to their wire form.
func States(records []Record) []State {
	out := make([]State, 0, len(records))
	for _, r := range records {
		out = append(out, ToState(r.ID, r.Value))
	}
	return out
}

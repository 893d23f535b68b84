// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package store

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-memory Store usable as either a HotStore or a ColdStore.
// It plays the role the teacher's testStorage stub plays in
// wal_stubs_test.go: a fully in-process double that lets tests exercise
// commit/rollback semantics and inject failures without touching bbolt or
// etcd. It is also a legitimate (if non-durable) production HotStore for
// single-process demos.
type Memory struct {
	mu sync.Mutex

	committed map[string][]byte
	staged    map[string][]byte // nil value marks a staged delete
	dirty     bool

	// FailGet/FailPut/FailDelete/FailCommit let tests simulate store
	// unavailability (spec.md §4.4 "graceful degradation", §7
	// ColdStoreUnavailable). When non-nil, the function is called on every
	// matching operation; a non-nil error short-circuits the operation.
	FailGet    func(key string) error
	FailPut    func(key string) error
	FailDelete func(key string) error
	FailCommit func() error
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		committed: make(map[string][]byte),
		staged:    make(map[string][]byte),
	}
}

// Get returns the value for key, preferring any staged (not-yet-committed)
// mutation over the committed value so a HotStore reads back its own writes
// within one operation, matching bbolt's same-transaction read-your-writes.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailGet != nil {
		if err := m.FailGet(key); err != nil {
			return nil, false, err
		}
	}
	if v, ok := m.staged[key]; ok {
		if v == nil {
			return nil, false, nil
		}
		return cloneBytes(v), true, nil
	}
	v, ok := m.committed[key]
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(v), true, nil
}

// Put stages a write; only Commit moves staged writes into committed. Get
// reads staged writes back, so ColdStore use (which never commits) sees
// its writes through Get at once, while Snapshot and Keys show only
// committed state.
func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPut != nil {
		if err := m.FailPut(key); err != nil {
			return err
		}
	}
	m.staged[key] = cloneBytes(value)
	m.dirty = true
	return nil
}

// Delete stages a deletion.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDelete != nil {
		if err := m.FailDelete(key); err != nil {
			return err
		}
	}
	m.staged[key] = nil
	m.dirty = true
	return nil
}

// Commit atomically applies every staged Put/Delete since the last Commit.
func (m *Memory) Commit(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCommit != nil {
		if err := m.FailCommit(); err != nil {
			return err
		}
	}
	for k, v := range m.staged {
		if v == nil {
			delete(m.committed, k)
			continue
		}
		m.committed[k] = v
	}
	m.staged = make(map[string][]byte)
	m.dirty = false
	return nil
}

// Dirty reports whether there are staged mutations awaiting Commit. Used
// by tests to observe staged state before and after a Commit.
func (m *Memory) Dirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty
}

// Snapshot returns a copy of the committed key space, for assertions.
func (m *Memory) Snapshot() map[string][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]byte, len(m.committed))
	for k, v := range m.committed {
		out[k] = cloneBytes(v)
	}
	return out
}

// Keys returns every committed key, for assertions over which segments
// currently reside in a given tier.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.committed))
	for k := range m.committed {
		keys = append(keys, k)
	}
	return keys
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var _ HotStore = (*Memory)(nil)
var _ ColdStore = (*Memory)(nil)

// ErrSimulated is a canned error for fault-injection hooks in tests.
var ErrSimulated = fmt.Errorf("store: simulated failure")

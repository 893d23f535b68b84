// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package pqactor

import (
	"context"
	"fmt"

	"github.com/queuekit/pqactor/store"
)

// HotStoreFactory constructs (or looks up) the hot store for one actor id.
// The actor runtime itself (placement, activation scheduling, the state
// store transport) stays an external collaborator per spec.md §1; this
// factory is the one seam a host implementation plugs into.
type HotStoreFactory func(ctx context.Context, actorID string) (store.HotStore, error)

// Host wires an actor runtime's activation hook to Queue construction
// (spec.md §6 "Actor host contract": "Provides single-threaded invocation
// per actor, activation ..., and passive deactivation"). It does not
// implement any specific actor framework's SDK; it only captures the shape
// every such binding needs: one Queue per actor id, built from a hot store
// scoped to that actor and a cold store shared across all actors.
type Host struct {
	hotFactory HotStoreFactory
	cold       store.ColdStore
	opts       []Option
}

// NewHost builds a Host. cold may be nil for a hot-only deployment.
func NewHost(hotFactory HotStoreFactory, cold store.ColdStore, opts ...Option) *Host {
	return &Host{hotFactory: hotFactory, cold: cold, opts: opts}
}

// Activate runs the activation sequence for actorID: obtain (or create)
// its hot store via hotFactory, then open a Queue over it. This is what an
// actor runtime's activation callback should invoke before handing control
// to Push/Pop/PopWithAck/Acknowledge.
func (h *Host) Activate(ctx context.Context, actorID string) (*Queue, error) {
	hot, err := h.hotFactory(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("activate %s: hot store factory: %w", actorID, err)
	}
	return Open(ctx, actorID, hot, h.cold, h.opts...)
}

// Deactivate is the passive-deactivation hook (spec.md §6: "no explicit
// teardown is required; state rehydrates from the store on next
// activation"). It only releases the in-process Go value; it performs no
// store I/O of its own.
func (h *Host) Deactivate(_ context.Context, q *Queue) error {
	return q.Close()
}

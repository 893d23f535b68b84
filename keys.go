// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package pqactor

import (
	"fmt"

	"github.com/queuekit/pqactor/types"
)

// hotSegmentKey builds the hot-tier key for segment n of priority p
// (spec.md §4.1: "queue_{p}_seg_{n}").
func hotSegmentKey(p types.Priority, n int) string {
	return fmt.Sprintf("queue_%d_seg_%d", p, n)
}

// coldSegmentKey builds the cold-tier key for segment n of priority p,
// namespaced by actor id so every actor's offloaded segments occupy a
// disjoint slice of the shared store (spec.md §4.1: "Actor id is part of
// the key to globalize the namespace").
func (q *Queue) coldSegmentKey(p types.Priority, n int) string {
	return fmt.Sprintf("offloaded_queue_%d_seg_%d_%s", p, n, q.actorID)
}

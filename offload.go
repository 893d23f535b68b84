// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package pqactor

import (
	"context"
	"fmt"

	"github.com/go-kit/log/level"
	"github.com/queuekit/pqactor/segment"
	"github.com/queuekit/pqactor/types"
)

// offloadEligible reports whether segment n, given the current queue-meta
// pointers, the configured buffer_segments and qm's offloaded range, is in
// a position to migrate to cold storage (spec.md §4.4 "Eligibility"). It
// does not check that the segment is full; offloadScan does that after
// loading the segment.
func offloadEligible(cfg types.Config, qm types.QueueMeta, n int) bool {
	if !(qm.HeadSegment+cfg.BufferSegments < n && n < qm.TailSegment) {
		return false
	}
	if qm.HasOffloadedRange() && n >= *qm.HeadOffloadedSegment && n <= *qm.TailOffloadedSegment {
		return false
	}
	return true
}

// offloadScan runs after a Push commit for the pushed priority only
// (spec.md §4.4 "called after Push commit"). It is its own transaction:
// failures are logged and swallowed so a cold-store outage never fails the
// Push that triggered the scan (spec.md §4.3 step 6, §4.4 "degrading to a
// full-memory mode").
func (q *Queue) offloadScan(ctx context.Context, priority types.Priority) {
	if q.cold == nil {
		return
	}
	s, err := q.loadMetadata(ctx)
	if err != nil {
		level.Error(q.logger).Log("msg", "offload scan: load metadata failed", "priority", priority, "err", err)
		return
	}
	qm, ok := s.get(priority)
	if !ok {
		return
	}
	// Candidates are bounded by invariant 7: head+buffer < n < tail.
	for n := qm.HeadSegment + q.config.BufferSegments + 1; n < qm.TailSegment; n++ {
		if !offloadEligible(q.config, qm, n) {
			continue
		}
		seg, err := q.loadSegment(ctx, priority, n)
		if err != nil {
			level.Error(q.logger).Log("msg", "offload scan: read hot segment failed", "priority", priority, "segment", n, "err", err)
			return
		}
		if !seg.Full(q.config.SegmentSize) {
			continue
		}
		blob, err := seg.Encode()
		if err != nil {
			level.Error(q.logger).Log("msg", "offload scan: encode segment failed", "priority", priority, "segment", n, "err", err)
			return
		}
		if err := q.cold.Put(ctx, q.coldSegmentKey(priority, n), blob); err != nil {
			// Best-effort: leave the segment hot and stop extending the
			// offloaded range further, since the range must stay contiguous.
			q.metrics.offloadFailuresTotal.Inc()
			level.Error(q.logger).Log("msg", "offload scan: cold write failed, segment stays hot", "priority", priority, "segment", n, "err", err)
			return
		}
		if qm.HasOffloadedRange() {
			tail := n
			qm.TailOffloadedSegment = &tail
		} else {
			head, tail := n, n
			qm.HeadOffloadedSegment = &head
			qm.TailOffloadedSegment = &tail
		}
		if err := q.hot.Delete(ctx, hotSegmentKey(priority, n)); err != nil {
			level.Error(q.logger).Log("msg", "offload scan: delete hot segment failed", "priority", priority, "segment", n, "err", err)
			return
		}
		s.set(priority, qm)
		if err := q.stageMetadata(ctx, s); err != nil {
			level.Error(q.logger).Log("msg", "offload scan: stage metadata failed", "priority", priority, "segment", n, "err", err)
			return
		}
		if err := q.hot.Commit(ctx); err != nil {
			level.Error(q.logger).Log("msg", "offload scan: commit failed", "priority", priority, "segment", n, "err", err)
			return
		}
		q.metrics.segmentsOffloaded.Inc()
	}
}

// loadScan runs before each consuming (Pop/PopWithAck) access to a
// priority, promoting offloaded segments that are about to be consumed
// back into the hot tier (spec.md §4.4 "Load scan"). Unlike offloadScan,
// failures here are surfaced: the next pop would otherwise silently miss
// those items, so the asymmetry is intentional (spec.md §4.4, §7).
//
// s is mutated in place and each promotion is individually committed, the
// same granularity the spec describes.
func (q *Queue) loadScan(ctx context.Context, s *metadataState, priority types.Priority) error {
	if q.cold == nil {
		return nil
	}
	for {
		qm, ok := s.get(priority)
		if !ok || !qm.HasOffloadedRange() {
			return nil
		}
		n := *qm.HeadOffloadedSegment
		if n > qm.HeadSegment+q.config.BufferSegments {
			return nil
		}
		key := q.coldSegmentKey(priority, n)
		blob, found, err := q.cold.Get(ctx, key)
		if err != nil {
			q.metrics.loadFailuresTotal.Inc()
			return fmt.Errorf("%w: load segment %d of priority %d: %v", types.ErrColdStoreUnavailable, n, priority, err)
		}
		if !found {
			q.metrics.loadFailuresTotal.Inc()
			return fmt.Errorf("%w: segment %d of priority %d missing from cold store", types.ErrColdStoreUnavailable, n, priority)
		}
		seg, err := segment.Decode(n, blob)
		if err != nil {
			q.metrics.loadFailuresTotal.Inc()
			return fmt.Errorf("%w: %v", types.ErrColdStoreUnavailable, err)
		}
		if err := q.stageSegment(ctx, priority, seg); err != nil {
			return fmt.Errorf("%w: %v", types.ErrColdStoreUnavailable, err)
		}
		if n == *qm.TailOffloadedSegment {
			qm.HeadOffloadedSegment = nil
			qm.TailOffloadedSegment = nil
		} else {
			next := n + 1
			qm.HeadOffloadedSegment = &next
		}
		s.set(priority, qm)
		if err := q.stageMetadata(ctx, s); err != nil {
			return fmt.Errorf("%w: %v", types.ErrColdStoreUnavailable, err)
		}
		if err := q.hot.Commit(ctx); err != nil {
			return fmt.Errorf("%w: %v", types.ErrColdStoreUnavailable, err)
		}
		if err := q.cold.Delete(ctx, key); err != nil {
			level.Error(q.logger).Log("msg", "load scan: delete cold segment after promotion failed", "priority", priority, "segment", n, "err", err)
		}
		q.metrics.segmentsLoaded.Inc()
	}
}

// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package pqactor implements the storage engine for one actor's
// priority-ordered, persistent, at-least-once FIFO queue (spec.md §§1-9).
// A Queue is the unit an actor runtime activates one of per actor id; all
// operations on a given Queue are assumed to be invoked by a single-
// threaded host exactly as spec.md §5 describes, so nothing here takes an
// internal lock.
package pqactor

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/queuekit/pqactor/segment"
	"github.com/queuekit/pqactor/store"
	"github.com/queuekit/pqactor/types"
)

// Re-export the error taxonomy (spec.md §7) at package level, exactly as
// the teacher re-exports its types.Err* sentinels in wal.go.
var (
	ErrInvalidArgument      = types.ErrInvalidArgument
	ErrLockNotFound         = types.ErrLockNotFound
	ErrInvalidLockID        = types.ErrInvalidLockID
	ErrLockExpired          = types.ErrLockExpired
	ErrColdStoreUnavailable = types.ErrColdStoreUnavailable
	ErrClosed               = types.ErrClosed
)

// Queue is one actor's priority queue engine (spec.md §2, component F
// "Operation façade" wired directly to components C/D/E beneath it). It
// owns no state beyond what it loads from hot/cold on every operation;
// spec.md §5 guarantees the host never invokes two operations on the same
// Queue concurrently.
type Queue struct {
	actorID string
	hot     store.HotStore
	cold    store.ColdStore // nil is valid: offload/load scans become no-ops (hot-only mode).

	config types.Config // read once at activation (spec.md §9), immutable thereafter.

	logger  log.Logger
	metrics *queueMetrics
	now     func() time.Time

	closed bool
}

// Option configures a Queue at construction.
type Option func(*openOptions)

type openOptions struct {
	logger               log.Logger
	registerer           prometheus.Registerer
	now                  func() time.Time
	defaultSegmentSize   int
	defaultBufferSegment int
}

// WithLogger sets the go-kit logger used for swallowed-error and desync
// reporting (spec.md §4.4, §4.3 step 4.b).
func WithLogger(logger log.Logger) Option {
	return func(o *openOptions) { o.logger = logger }
}

// WithRegisterer sets the prometheus registerer metrics are registered
// against; defaults to a private registry if unset.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *openOptions) { o.registerer = reg }
}

// WithNowFunc overrides the wall-clock source used for lock TTL
// comparisons (spec.md §5 "checked against wall-clock time"); tests use
// this to simulate expiry without sleeping.
func WithNowFunc(now func() time.Time) Option {
	return func(o *openOptions) { o.now = now }
}

// WithDefaultSegmentSize sets the segment_size used only if this
// activation is the very first one for this actor (no metadata yet).
func WithDefaultSegmentSize(n int) Option {
	return func(o *openOptions) { o.defaultSegmentSize = n }
}

// WithDefaultBufferSegments sets the buffer_segments used only if this
// activation is the very first one for this actor (no metadata yet).
func WithDefaultBufferSegments(n int) Option {
	return func(o *openOptions) { o.defaultBufferSegment = n }
}

// Open activates a Queue for actorID, loading (or initializing) its
// metadata document (spec.md §4.2 "On activation"). hot must not be nil;
// cold may be nil, in which case the queue runs hot-only (spec.md §4.4
// degraded mode) permanently rather than just on transient cold failures.
func Open(ctx context.Context, actorID string, hot store.HotStore, cold store.ColdStore, opts ...Option) (*Queue, error) {
	if actorID == "" {
		return nil, fmt.Errorf("%w: actor id must not be empty", types.ErrInvalidArgument)
	}
	o := openOptions{
		logger:               log.NewNopLogger(),
		now:                  time.Now,
		defaultSegmentSize:   types.DefaultConfig().SegmentSize,
		defaultBufferSegment: types.DefaultConfig().BufferSegments,
	}
	for _, opt := range opts {
		opt(&o)
	}
	var reg prometheus.Registerer = o.registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	q := &Queue{
		actorID: actorID,
		hot:     hot,
		cold:    cold,
		logger:  o.logger,
		metrics: newQueueMetrics(reg),
		now:     o.now,
	}

	blob, ok, err := hot.Get(ctx, metadataKey)
	if err != nil {
		return nil, fmt.Errorf("activate %s: load metadata: %w", actorID, err)
	}
	if !ok {
		doc := types.NewMetadataDoc()
		doc.Config = types.Config{SegmentSize: o.defaultSegmentSize, BufferSegments: o.defaultBufferSegment}
		if doc.Config.SegmentSize <= 0 {
			doc.Config.SegmentSize = types.DefaultConfig().SegmentSize
		}
		if doc.Config.BufferSegments <= 0 {
			doc.Config.BufferSegments = types.DefaultConfig().BufferSegments
		}
		encoded, err := types.EncodeMetadata(doc)
		if err != nil {
			return nil, fmt.Errorf("activate %s: encode initial metadata: %w", actorID, err)
		}
		if err := hot.Put(ctx, metadataKey, encoded); err != nil {
			return nil, fmt.Errorf("activate %s: stage initial metadata: %w", actorID, err)
		}
		if err := hot.Commit(ctx); err != nil {
			return nil, fmt.Errorf("activate %s: commit initial metadata: %w", actorID, err)
		}
		q.config = doc.Config
		return q, nil
	}
	doc, err := types.DecodeMetadata(blob)
	if err != nil {
		return nil, fmt.Errorf("activate %s: decode metadata: %w", actorID, err)
	}
	q.config = doc.Config
	if q.config.SegmentSize <= 0 {
		q.config.SegmentSize = types.DefaultConfig().SegmentSize
	}
	if q.config.BufferSegments <= 0 {
		q.config.BufferSegments = types.DefaultConfig().BufferSegments
	}
	return q, nil
}

// Close marks the Queue deactivated. Per spec.md §6 "passive deactivation"
// there is no teardown work to do against the store; this only guards
// against further use of this Go value after the host has moved on.
func (q *Queue) Close() error {
	q.closed = true
	return nil
}

func (q *Queue) checkOpen() error {
	if q.closed {
		return types.ErrClosed
	}
	return nil
}

// loadSegment reads segment n of priority p from the hot tier, treating a
// missing blob as an empty segment (spec.md §4.3 step 2).
func (q *Queue) loadSegment(ctx context.Context, p types.Priority, n int) (*segment.Segment, error) {
	blob, ok, err := q.hot.Get(ctx, hotSegmentKey(p, n))
	if err != nil {
		return nil, fmt.Errorf("load segment %d of priority %d: %w", n, p, err)
	}
	if !ok {
		return segment.New(n), nil
	}
	return segment.Decode(n, blob)
}

// stageSegment encodes and stages (but does not commit) segment seg of
// priority p.
func (q *Queue) stageSegment(ctx context.Context, p types.Priority, seg *segment.Segment) error {
	blob, err := seg.Encode()
	if err != nil {
		return fmt.Errorf("stage segment %d of priority %d: %w", seg.Number, p, err)
	}
	return q.hot.Put(ctx, hotSegmentKey(p, seg.Number), blob)
}

// Push appends item to the tail of priority's queue (spec.md §4.3 "Push").
func (q *Queue) Push(ctx context.Context, item types.Item, priority types.Priority) error {
	if err := q.checkOpen(); err != nil {
		return err
	}
	if priority < 0 {
		return fmt.Errorf("%w: priority must be >= 0, got %d", types.ErrInvalidArgument, priority)
	}
	if item == nil {
		return fmt.Errorf("%w: item must not be nil", types.ErrInvalidArgument)
	}

	s, err := q.loadMetadata(ctx)
	if err != nil {
		return err
	}
	qm, ok := s.get(priority)
	if !ok {
		qm = types.QueueMeta{HeadSegment: 0, TailSegment: 0, Count: 0}
	}

	seg, err := q.loadSegment(ctx, priority, qm.TailSegment)
	if err != nil {
		return err
	}
	if seg.Full(q.config.SegmentSize) {
		qm.TailSegment++
		seg = segment.New(qm.TailSegment)
	}
	seg.Append(item)
	qm.Count++
	s.set(priority, qm)

	if err := q.stageSegment(ctx, priority, seg); err != nil {
		return err
	}
	if err := q.stageMetadata(ctx, s); err != nil {
		return err
	}
	if err := q.hot.Commit(ctx); err != nil {
		return fmt.Errorf("push: commit: %w", err)
	}

	q.metrics.pushesTotal.Inc()
	q.metrics.queueDepth.WithLabelValues(fmt.Sprint(priority)).Set(float64(qm.Count))

	q.offloadScan(ctx, priority)
	return nil
}

// popInternal implements spec.md §4.3 "Pop" up through the point of
// yielding an item, additionally returning the originating priority so
// PopWithAck can retain it for expiry recovery (spec.md §4.3 "Note on
// internal pop"). It does not handle the lock-gating steps (1-2); callers
// must do that first via checkLock.
func (q *Queue) popInternal(ctx context.Context, s *metadataState) (item types.Item, priority types.Priority, found bool, err error) {
	if s.queues.Len() == 0 {
		return nil, 0, false, nil
	}
	for _, p := range s.sortedPriorities() {
		if err := q.loadScan(ctx, s, p); err != nil {
			return nil, 0, false, err
		}
		qm, ok := s.get(p)
		if !ok || qm.Count == 0 {
			continue
		}
		seg, err := q.loadSegment(ctx, p, qm.HeadSegment)
		if err != nil {
			return nil, 0, false, err
		}
		if seg.Empty() {
			// Desync: count says items exist but the head segment doesn't.
			// Self-heal by dropping the priority record (spec.md §4.3 step
			// 4.b, §7 "self-healing").
			level.Error(q.logger).Log("msg", "desync: head segment empty despite positive count, dropping priority record", "priority", p, "count", qm.Count)
			s.remove(p)
			if err := q.stageMetadata(ctx, s); err != nil {
				return nil, 0, false, err
			}
			if err := q.hot.Commit(ctx); err != nil {
				return nil, 0, false, fmt.Errorf("pop: commit desync recovery: %w", err)
			}
			q.metrics.desyncsTotal.Inc()
			continue
		}

		popped, _ := seg.PopFront()
		qm.Count--

		if seg.Empty() {
			if err := q.hot.Delete(ctx, hotSegmentKey(p, qm.HeadSegment)); err != nil {
				return nil, 0, false, fmt.Errorf("pop: delete drained segment: %w", err)
			}
			if qm.HeadSegment < qm.TailSegment {
				qm.HeadSegment++
				s.set(p, qm)
			} else {
				s.remove(p)
			}
		} else {
			if err := q.stageSegment(ctx, p, seg); err != nil {
				return nil, 0, false, err
			}
			s.set(p, qm)
		}

		if err := q.stageMetadata(ctx, s); err != nil {
			return nil, 0, false, err
		}
		if err := q.hot.Commit(ctx); err != nil {
			return nil, 0, false, fmt.Errorf("pop: commit: %w", err)
		}
		q.metrics.queueDepth.WithLabelValues(fmt.Sprint(p)).Set(float64(qm.Count))
		return popped, p, true, nil
	}
	return nil, 0, false, nil
}

// Pop destructively removes and returns the single highest-priority, oldest
// item, or reports not-found if the queue is empty or a non-expired lock is
// outstanding (spec.md §4.3 "Pop", §6).
func (q *Queue) Pop(ctx context.Context) (types.PopResult, error) {
	if err := q.checkOpen(); err != nil {
		return types.PopResult{}, err
	}
	locked, s, err := q.checkLock(ctx)
	if err != nil {
		return types.PopResult{}, err
	}
	if locked {
		q.metrics.popsTotal.WithLabelValues("locked").Inc()
		return types.PopResult{Found: false}, nil
	}
	item, _, found, err := q.popInternal(ctx, s)
	if err != nil {
		return types.PopResult{}, err
	}
	if !found {
		q.metrics.popsTotal.WithLabelValues("empty").Inc()
		return types.PopResult{Found: false}, nil
	}
	q.metrics.popsTotal.WithLabelValues("hit").Inc()
	return types.PopResult{Item: item, Found: true}, nil
}

// Stats returns read-only introspection of this actor's queue
// (SPEC_FULL.md §4, not part of the distilled spec's operation set).
func (q *Queue) Stats(ctx context.Context) (types.Stats, error) {
	if err := q.checkOpen(); err != nil {
		return types.Stats{}, err
	}
	s, err := q.loadMetadata(ctx)
	if err != nil {
		return types.Stats{}, err
	}
	stats := types.Stats{
		PriorityDepth: make(map[types.Priority]int),
		LockActive:    s.lock != nil,
	}
	for _, p := range s.sortedPriorities() {
		qm, _ := s.get(p)
		stats.PriorityDepth[p] = qm.Count
		hotSegs := qm.TailSegment - qm.HeadSegment + 1
		coldSegs := 0
		if qm.HasOffloadedRange() {
			coldSegs = *qm.TailOffloadedSegment - *qm.HeadOffloadedSegment + 1
			hotSegs -= coldSegs
		}
		stats.HotSegments += hotSegs
		stats.ColdSegments += coldSegs
	}
	return stats, nil
}

// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package pqactor

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log/level"
	"github.com/queuekit/pqactor/types"
)

// checkLock implements spec.md §4.3 Pop/PopWithAck steps 1-2 and §4.5
// "Expiry recovery": if the active lock is live, report locked=true and the
// caller must not pop; if it is expired, recover it (its own committed
// transaction) and return a freshly loaded metadata snapshot so the caller
// continues as if starting fresh, exactly as spec.md describes ("recover
// it, then continue" followed by "Load metadata").
func (q *Queue) checkLock(ctx context.Context) (locked bool, s *metadataState, err error) {
	s, err = q.loadMetadata(ctx)
	if err != nil {
		return false, nil, err
	}
	if s.lock == nil {
		return false, s, nil
	}
	if !s.lock.Expired(q.now()) {
		return true, s, nil
	}
	if err := q.recoverLocked(ctx, s); err != nil {
		return false, nil, err
	}
	s, err = q.loadMetadata(ctx)
	if err != nil {
		return false, nil, err
	}
	return false, s, nil
}

// recoverLocked performs spec.md §4.5 "Expiry recovery" against an
// already-loaded snapshot whose lock is known to be expired, committing the
// result itself.
func (q *Queue) recoverLocked(ctx context.Context, s *metadataState) error {
	lock := s.lock
	if lock == nil {
		return nil
	}
	order, groups := groupByPriority(lock.Items)
	for _, p := range order {
		items := groups[p]
		qm, ok := s.get(p)
		if !ok {
			qm = types.QueueMeta{HeadSegment: 0, TailSegment: 0, Count: 0}
		}
		seg, err := q.loadSegment(ctx, p, qm.HeadSegment)
		if err != nil {
			return fmt.Errorf("recover expired lock: load head segment: %w", err)
		}
		seg.PrependAll(items)
		qm.Count += len(items)
		s.set(p, qm)
		if err := q.stageSegment(ctx, p, seg); err != nil {
			return fmt.Errorf("recover expired lock: stage head segment: %w", err)
		}
	}
	s.lock = nil
	if err := q.stageMetadata(ctx, s); err != nil {
		return fmt.Errorf("recover expired lock: stage metadata: %w", err)
	}
	if err := q.hot.Commit(ctx); err != nil {
		return fmt.Errorf("recover expired lock: commit: %w", err)
	}
	q.metrics.lockExpiriesTotal.Inc()
	q.metrics.activeLock.Set(0)
	level.Info(q.logger).Log("msg", "recovered expired lock", "lock_id", lock.LockID, "items", len(lock.Items))
	return nil
}

// PopWithAck implements spec.md §4.3 "PopWithAck": a Pop whose result must
// be explicitly acknowledged within ttlSeconds or it is returned to the
// front of its original priority queues.
func (q *Queue) PopWithAck(ctx context.Context, ttlSeconds int) (types.PopWithAckResult, error) {
	if err := q.checkOpen(); err != nil {
		return types.PopWithAckResult{}, err
	}
	ttl := clampTTL(ttlSeconds)

	locked, s, err := q.checkLock(ctx)
	if err != nil {
		return types.PopWithAckResult{}, err
	}
	if locked {
		q.metrics.popWithAckTotal.WithLabelValues("locked").Inc()
		return types.PopWithAckResult{
			Locked:    true,
			Count:     0,
			ExpiresAt: s.lock.ExpiresAt,
		}, nil
	}

	item, priority, found, err := q.popInternal(ctx, s)
	if err != nil {
		return types.PopWithAckResult{}, err
	}
	if !found {
		q.metrics.popWithAckTotal.WithLabelValues("empty").Inc()
		return types.PopWithAckResult{Locked: false, Count: 0}, nil
	}

	lockID, err := generateLockID()
	if err != nil {
		return types.PopWithAckResult{}, fmt.Errorf("pop with ack: %w", err)
	}
	now := q.now()
	expiresAt := now.Add(ttl)

	// Reload so the lock we write doesn't clobber the metadata popInternal
	// already committed (popInternal's commit only covered the popped
	// segment/priority bookkeeping, not a lock).
	s2, err := q.loadMetadata(ctx)
	if err != nil {
		return types.PopWithAckResult{}, err
	}
	s2.lock = &types.ActiveLock{
		LockID:    lockID,
		CreatedAt: now,
		ExpiresAt: expiresAt,
		Items:     []types.LockedItem{{Item: item, Priority: priority}},
	}
	if err := q.stageMetadata(ctx, s2); err != nil {
		return types.PopWithAckResult{}, err
	}
	if err := q.hot.Commit(ctx); err != nil {
		return types.PopWithAckResult{}, fmt.Errorf("pop with ack: commit lock: %w", err)
	}
	q.metrics.activeLock.Set(1)
	q.metrics.popWithAckTotal.WithLabelValues("locked_new").Inc()

	return types.PopWithAckResult{
		Locked:    true,
		Count:     1,
		Items:     []types.Item{item},
		LockID:    lockID,
		ExpiresAt: expiresAt,
	}, nil
}

// Acknowledge implements spec.md §4.3 "Acknowledge" with the fixed check
// ordering §7 requires: missing id -> absent lock -> mismatched id ->
// expired -> success.
func (q *Queue) Acknowledge(ctx context.Context, lockID string) (types.AcknowledgeResult, error) {
	if err := q.checkOpen(); err != nil {
		return types.AcknowledgeResult{}, err
	}
	if lockID == "" {
		q.metrics.acknowledgeTotal.WithLabelValues("invalid_lock_id").Inc()
		return types.AcknowledgeResult{}, fmt.Errorf("%w: lock id must not be empty", types.ErrInvalidLockID)
	}

	s, err := q.loadMetadata(ctx)
	if err != nil {
		return types.AcknowledgeResult{}, err
	}
	if s.lock == nil {
		q.metrics.acknowledgeTotal.WithLabelValues("not_found").Inc()
		return types.AcknowledgeResult{}, types.ErrLockNotFound
	}
	if s.lock.LockID != lockID {
		q.metrics.acknowledgeTotal.WithLabelValues("invalid_lock_id").Inc()
		return types.AcknowledgeResult{}, types.ErrInvalidLockID
	}
	if s.lock.Expired(q.now()) {
		if err := q.recoverLocked(ctx, s); err != nil {
			return types.AcknowledgeResult{}, err
		}
		q.metrics.acknowledgeTotal.WithLabelValues("expired").Inc()
		return types.AcknowledgeResult{}, types.ErrLockExpired
	}

	itemsAcked := len(s.lock.Items)
	s.lock = nil
	if err := q.stageMetadata(ctx, s); err != nil {
		return types.AcknowledgeResult{}, err
	}
	if err := q.hot.Commit(ctx); err != nil {
		return types.AcknowledgeResult{}, fmt.Errorf("acknowledge: commit: %w", err)
	}
	q.metrics.activeLock.Set(0)
	q.metrics.acknowledgeTotal.WithLabelValues("success").Inc()
	return types.AcknowledgeResult{Success: true, ItemsAcknowledged: itemsAcked}, nil
}

// ExpireLock is SPEC_FULL.md §4's explicit entry point into the same
// lazy-recovery routine spec.md §4.5 describes, for a host that wants to
// run it proactively on its own reminder/timer (still an external
// collaborator: this function runs no goroutine of its own). It is a
// no-op if there is no lock or the lock has not yet expired as of now.
func (q *Queue) ExpireLock(ctx context.Context, now func() time.Time) (recovered bool, err error) {
	if err := q.checkOpen(); err != nil {
		return false, err
	}
	clock := q.now
	if now != nil {
		clock = now
	}
	s, err := q.loadMetadata(ctx)
	if err != nil {
		return false, err
	}
	if s.lock == nil || !s.lock.Expired(clock()) {
		return false, nil
	}
	if err := q.recoverLocked(ctx, s); err != nil {
		return false, err
	}
	return true, nil
}

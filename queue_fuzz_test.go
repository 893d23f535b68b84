// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package pqactor

import (
	"context"
	"fmt"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/queuekit/pqactor/types"
	"github.com/stretchr/testify/require"
)

// TestPropertyRoundTripPreservesCountAndFIFO pushes a randomized batch of
// single-priority items and checks two invariants hold regardless of how
// many items land in each segment: popping drains exactly as many items as
// were pushed, and FIFO order within the priority is preserved (spec.md §8
// universal properties, invariant 2 "count equals the sum of segment
// lengths").
func TestPropertyRoundTripPreservesCountAndFIFO(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(1, 400)
	ctx := context.Background()

	for trial := 0; trial < 20; trial++ {
		var n int
		f.Fuzz(&n)
		if n < 0 {
			n = -n
		}
		n = (n%390 + 10)

		q, _, _ := newTestQueue(t, WithDefaultSegmentSize(17), WithDefaultBufferSegments(1))
		for i := 0; i < n; i++ {
			require.NoError(t, q.Push(ctx, item(i), 0))
		}

		stats, err := q.Stats(ctx)
		require.NoError(t, err)
		require.Equal(t, n, stats.PriorityDepth[0])

		for i := 0; i < n; i++ {
			res, err := q.Pop(ctx)
			require.NoError(t, err)
			require.True(t, res.Found, "trial n=%d, pop %d", n, i)
			require.Equal(t, item(i), res.Item)
		}

		res, err := q.Pop(ctx)
		require.NoError(t, err)
		require.False(t, res.Found)
	}
}

// TestPropertyStrictPriorityOrdering interleaves pushes across a random set
// of priorities and checks the popped sequence is non-decreasing in
// priority and FIFO within each priority (spec.md §8 "priority ordering").
func TestPropertyStrictPriorityOrdering(t *testing.T) {
	f := fuzz.New().NilChance(0)
	ctx := context.Background()

	for trial := 0; trial < 10; trial++ {
		q, _, _ := newTestQueue(t, WithDefaultSegmentSize(5), WithDefaultBufferSegments(1))

		type pushed struct {
			id       int
			priority types.Priority
		}
		var batch []pushed
		count := 30
		for i := 0; i < count; i++ {
			var pr uint8
			f.Fuzz(&pr)
			priority := types.Priority(pr % 6)
			require.NoError(t, q.Push(ctx, item(i), priority))
			batch = append(batch, pushed{id: i, priority: priority})
		}

		lastPriority := types.Priority(-1)
		seenAt := make(map[types.Priority]int)
		for range batch {
			res, err := q.Pop(ctx)
			require.NoError(t, err)
			require.True(t, res.Found)

			var id int
			_, err = fmt.Sscanf(string(res.Item), "item-%d", &id)
			require.NoError(t, err)

			var p types.Priority = -1
			for _, b := range batch {
				if b.id == id {
					p = b.priority
					break
				}
			}
			require.GreaterOrEqual(t, int(p), int(lastPriority), "priorities must pop non-decreasing")
			if p == lastPriority {
				require.Greater(t, id, seenAt[p], "FIFO within a priority must hold")
			}
			lastPriority = p
			seenAt[p] = id
		}
	}
}

// TestPropertyMismatchedAcknowledgeIsIdempotent repeatedly acknowledges with
// the wrong id and checks the lock never clears (spec.md §8 "mismatched
// Acknowledge calls never release the lock").
func TestPropertyMismatchedAcknowledgeIsIdempotent(t *testing.T) {
	clock := newFakeClock()
	q, _, _ := newTestQueue(t, WithNowFunc(clock.now))
	ctx := context.Background()
	require.NoError(t, q.Push(ctx, item(1), 0))

	res, err := q.PopWithAck(ctx, 30)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := q.Acknowledge(ctx, fmt.Sprintf("wrong-%d", i))
		require.ErrorIs(t, err, ErrInvalidLockID)
	}

	ackRes, err := q.Acknowledge(ctx, res.LockID)
	require.NoError(t, err)
	require.True(t, ackRes.Success)
}

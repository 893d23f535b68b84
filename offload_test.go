// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package pqactor

import (
	"context"
	"testing"

	"github.com/queuekit/pqactor/store"
	"github.com/queuekit/pqactor/types"
	"github.com/stretchr/testify/require"
)

func TestOffloadEligible(t *testing.T) {
	cfg := types.Config{SegmentSize: 100, BufferSegments: 1}
	qm := types.QueueMeta{HeadSegment: 0, TailSegment: 4}

	require.False(t, offloadEligible(cfg, qm, 0), "head segment never offloads")
	require.False(t, offloadEligible(cfg, qm, 1), "within the buffer window")
	require.True(t, offloadEligible(cfg, qm, 2))
	require.True(t, offloadEligible(cfg, qm, 3))
	require.False(t, offloadEligible(cfg, qm, 4), "tail segment never offloads")

	head, tail := 2, 2
	qm.HeadOffloadedSegment, qm.TailOffloadedSegment = &head, &tail
	require.False(t, offloadEligible(cfg, qm, 2), "already offloaded")
}

func TestScenario3_OffloadAndLoad(t *testing.T) {
	q, hot, cold := newTestQueue(t, WithDefaultSegmentSize(100), WithDefaultBufferSegments(1))
	ctx := context.Background()

	for i := 1; i <= 500; i++ {
		require.NoError(t, q.Push(ctx, item(i), 0))
	}

	s, err := q.loadMetadata(ctx)
	require.NoError(t, err)
	qm, ok := s.get(0)
	require.True(t, ok)
	require.Equal(t, 0, qm.HeadSegment)
	require.Equal(t, 4, qm.TailSegment)
	require.True(t, qm.HasOffloadedRange())
	require.Equal(t, 2, *qm.HeadOffloadedSegment)
	require.Equal(t, 3, *qm.TailOffloadedSegment)

	_, hotOK, _ := hot.Get(ctx, hotSegmentKey(0, 2))
	require.False(t, hotOK, "segment 2 should have migrated off the hot tier")
	_, coldOK, _ := cold.Get(ctx, q.coldSegmentKey(0, 2))
	require.True(t, coldOK)
	_, coldOK, _ = cold.Get(ctx, q.coldSegmentKey(0, 3))
	require.True(t, coldOK)

	for i := 1; i <= 100; i++ {
		res, err := q.Pop(ctx)
		require.NoError(t, err)
		require.True(t, res.Found)
		require.Equal(t, item(i), res.Item)
	}

	// loadScan runs before each consuming access, not after a commit, so
	// segment 2 is only pulled hot on the pop that *observes* head having
	// advanced to 1 (the 100th pop's own commit) — i.e. the 101st pop, not
	// the 100th.
	res, err := q.Pop(ctx)
	require.NoError(t, err)
	require.True(t, res.Found)
	require.Equal(t, item(101), res.Item)

	s, err = q.loadMetadata(ctx)
	require.NoError(t, err)
	qm, ok = s.get(0)
	require.True(t, ok)
	require.Equal(t, 1, qm.HeadSegment)
	require.True(t, qm.HasOffloadedRange())
	require.Equal(t, 3, *qm.HeadOffloadedSegment, "segment 2 must have been loaded back by the load scan")
	require.Equal(t, 3, *qm.TailOffloadedSegment)

	_, hotOK, _ = hot.Get(ctx, hotSegmentKey(0, 2))
	require.True(t, hotOK)
	_, coldOK, _ = cold.Get(ctx, q.coldSegmentKey(0, 2))
	require.False(t, coldOK)
}

func TestOffloadSwallowsColdFailureAndStopsRange(t *testing.T) {
	hot := store.NewMemory()
	cold := store.NewMemory()
	q, err := Open(context.Background(), "actor-1", hot, cold, WithDefaultSegmentSize(100), WithDefaultBufferSegments(1))
	require.NoError(t, err)
	ctx := context.Background()

	failKey := q.coldSegmentKey(0, 2)
	cold.FailPut = func(key string) error {
		if key == failKey {
			return store.ErrSimulated
		}
		return nil
	}

	for i := 1; i <= 500; i++ {
		require.NoError(t, q.Push(ctx, item(i), 0))
	}

	s, err := q.loadMetadata(ctx)
	require.NoError(t, err)
	qm, ok := s.get(0)
	require.True(t, ok)
	require.False(t, qm.HasOffloadedRange(), "first eligible segment's cold write failed, so no range should have opened")

	_, hotOK, _ := hot.Get(ctx, hotSegmentKey(0, 2))
	require.True(t, hotOK, "segment 2 stays hot after the swallowed failure")
}

func TestLoadScanSurfacesColdStoreUnavailable(t *testing.T) {
	q, _, cold := newTestQueue(t, WithDefaultSegmentSize(100), WithDefaultBufferSegments(1))
	ctx := context.Background()
	for i := 1; i <= 500; i++ {
		require.NoError(t, q.Push(ctx, item(i), 0))
	}

	cold.FailGet = func(string) error { return store.ErrSimulated }

	for i := 0; i < 100; i++ {
		_, err := q.Pop(ctx)
		require.NoError(t, err)
	}

	_, err := q.Pop(ctx)
	require.ErrorIs(t, err, ErrColdStoreUnavailable)
}

func TestHotOnlyModeNeverOffloads(t *testing.T) {
	hot := store.NewMemory()
	q, err := Open(context.Background(), "actor-1", hot, nil, WithDefaultSegmentSize(10), WithDefaultBufferSegments(1))
	require.NoError(t, err)
	ctx := context.Background()

	for i := 1; i <= 50; i++ {
		require.NoError(t, q.Push(ctx, item(i), 0))
	}

	s, err := q.loadMetadata(ctx)
	require.NoError(t, err)
	qm, ok := s.get(0)
	require.True(t, ok)
	require.False(t, qm.HasOffloadedRange())

	for i := 1; i <= 50; i++ {
		res, err := q.Pop(ctx)
		require.NoError(t, err)
		require.Equal(t, item(i), res.Item)
	}
}

// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package pqactor

import (
	"testing"
	"time"

	"github.com/queuekit/pqactor/types"
	"github.com/stretchr/testify/require"
)

func TestGenerateLockIDLengthAndUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := generateLockID()
		require.NoError(t, err)
		require.Len(t, id, lockIDLength)
		require.False(t, seen[id], "lock id collision: %s", id)
		seen[id] = true
	}
}

func TestClampTTL(t *testing.T) {
	cases := []struct {
		in   int
		want time.Duration
	}{
		{0, defaultTTLSeconds * time.Second},
		{-5, defaultTTLSeconds * time.Second},
		{1, 1 * time.Second},
		{300, 300 * time.Second},
		{301, 300 * time.Second},
		{5000, 300 * time.Second},
	}
	for _, c := range cases {
		require.Equal(t, c.want, clampTTL(c.in), "ttlSeconds=%d", c.in)
	}
}

func TestGroupByPriorityPreservesOrderWithinGroup(t *testing.T) {
	items := []types.LockedItem{
		{Item: types.Item("a"), Priority: 0},
		{Item: types.Item("b"), Priority: 5},
		{Item: types.Item("c"), Priority: 0},
		{Item: types.Item("d"), Priority: 2},
	}
	order, groups := groupByPriority(items)
	require.Equal(t, []types.Priority{0, 5, 2}, order)
	require.Equal(t, []types.Item{types.Item("a"), types.Item("c")}, groups[0])
	require.Equal(t, []types.Item{types.Item("b")}, groups[5])
	require.Equal(t, []types.Item{types.Item("d")}, groups[2])
}

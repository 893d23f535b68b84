// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package segment

import (
	"testing"

	"github.com/queuekit/pqactor/types"
	"github.com/stretchr/testify/require"
)

func makeItems(labels ...string) []types.Item {
	items := make([]types.Item, 0, len(labels))
	for _, l := range labels {
		items = append(items, types.Item(l))
	}
	return items
}

func TestSegmentAppendAndPopFront(t *testing.T) {
	s := New(0)
	require.True(t, s.Empty())
	s.Append(types.Item("a"))
	s.Append(types.Item("b"))
	require.Equal(t, 2, s.Len())

	item, ok := s.PopFront()
	require.True(t, ok)
	require.Equal(t, types.Item("a"), item)
	require.Equal(t, 1, s.Len())

	item, ok = s.PopFront()
	require.True(t, ok)
	require.Equal(t, types.Item("b"), item)
	require.True(t, s.Empty())

	_, ok = s.PopFront()
	require.False(t, ok)
}

func TestSegmentFull(t *testing.T) {
	s := New(3)
	require.False(t, s.Full(2))
	s.Append(types.Item("x"))
	s.Append(types.Item("y"))
	require.True(t, s.Full(2))
	// Full only reports len >= capacity; it does not clamp (invariant 5's
	// lock-reprepend exception).
	s.Append(types.Item("z"))
	require.True(t, s.Full(2))
	require.Equal(t, 3, s.Len())
}

func TestSegmentPrependAllPreservesOrder(t *testing.T) {
	s := New(0)
	s.Append(types.Item("3"))
	s.Append(types.Item("4"))

	s.PrependAll(makeItems("1", "2"))

	require.Equal(t, makeItems("1", "2", "3", "4"), s.Items())
}

func TestSegmentPrependAllOnEmpty(t *testing.T) {
	s := New(0)
	s.PrependAll(makeItems("1", "2"))
	require.Equal(t, makeItems("1", "2"), s.Items())
}

func TestSegmentEncodeDecodeRoundTrip(t *testing.T) {
	s := New(5)
	s.Append(types.Item("hello"))
	s.Append(types.Item("world"))

	blob, err := s.Encode()
	require.NoError(t, err)

	decoded, err := Decode(5, blob)
	require.NoError(t, err)
	require.Equal(t, s.Items(), decoded.Items())
	require.Equal(t, 5, decoded.Number)
}

func TestDecodeMissingBlobIsEmptySegment(t *testing.T) {
	s, err := Decode(2, nil)
	require.NoError(t, err)
	require.True(t, s.Empty())
	require.Equal(t, 2, s.Number)
}

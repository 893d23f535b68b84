// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package segment implements the bounded, ordered chunk of a per-priority
// queue (spec.md §3 "Segment", GLOSSARY). Unlike a raft-wal segment, which
// is a growable on-disk file addressed by byte offset, a queue segment here
// is small (capped at segment_size items) and is always read and written
// as a single opaque blob through a key-value store — so the codec is a
// whole-value encode/decode, never a random-access frame reader.
package segment

import (
	"fmt"

	"github.com/queuekit/pqactor/types"
)

// Segment is the in-memory form of one segment: its number plus an ordered
// list of items. It does not store its capacity; callers pass it to Full.
// It is always read in full from
// the store, mutated, and written back in full (spec.md §4.1 "typed get /
// put / delete of segment blobs").
type Segment struct {
	Number int
	items  []types.Item
}

// New returns an empty segment with the given number.
func New(number int) *Segment {
	return &Segment{Number: number}
}

// Decode builds a Segment from a persisted blob. A nil/empty blob yields an
// empty segment (spec.md §4.3 step 2: "treat missing as empty").
func Decode(number int, blob []byte) (*Segment, error) {
	items, err := types.DecodeSegment(blob)
	if err != nil {
		return nil, fmt.Errorf("segment %d: %w", number, err)
	}
	return &Segment{Number: number, items: items}, nil
}

// Encode serializes the segment to its persisted blob form.
func (s *Segment) Encode() ([]byte, error) {
	return types.EncodeSegment(s.items)
}

// Len returns the number of items currently in the segment.
func (s *Segment) Len() int {
	return len(s.items)
}

// Empty reports whether the segment holds no items.
func (s *Segment) Empty() bool {
	return len(s.items) == 0
}

// Full reports whether the segment has reached capacity. Per invariant 5,
// a segment may legally exceed capacity (via lock re-prepend onto head);
// Full only reports whether len >= capacity, it never clamps.
func (s *Segment) Full(capacity int) bool {
	return len(s.items) >= capacity
}

// Append adds an item to the tail of the segment (push path, spec.md §4.3
// step 4). Capacity is checked by the caller *before* calling Append — the
// predicate is "checked before appending" per spec.md, never enforced here.
func (s *Segment) Append(item types.Item) {
	s.items = append(s.items, item)
}

// PopFront removes and returns the first item (pop path, spec.md §4.3 step
// 4.c). ok is false if the segment is empty.
func (s *Segment) PopFront() (item types.Item, ok bool) {
	if len(s.items) == 0 {
		return nil, false
	}
	item = s.items[0]
	s.items = s.items[1:]
	return item, true
}

// PrependAll restores items to the front of the segment in FIFO order,
// i.e. items[0] ends up as the new first element (spec.md §4.5 expiry
// recovery: "prepend its items to head_segment ... in FIFO order"). This
// is the one path allowed to push length above capacity (invariant 5's
// exception).
func (s *Segment) PrependAll(items []types.Item) {
	if len(items) == 0 {
		return
	}
	merged := make([]types.Item, 0, len(items)+len(s.items))
	merged = append(merged, items...)
	merged = append(merged, s.items...)
	s.items = merged
}

// Items returns the segment's items as a read-only slice; callers must not
// mutate the returned slice's contents.
func (s *Segment) Items() []types.Item {
	return s.items
}

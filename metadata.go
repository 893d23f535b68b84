// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package pqactor

import (
	"context"
	"fmt"

	"github.com/benbjohnson/immutable"
	"github.com/queuekit/pqactor/types"
)

// metadataKey is the hot-tier key for the single metadata document
// (spec.md §4.1).
const metadataKey = "metadata"

// metadataState is the decoded-once, in-memory form of the metadata
// document (spec.md §9 design note: "decode once at load, re-encode once
// at commit; no mid-path type probing"). Queues is an immutable.SortedMap
// so iterating "priorities ascending" (spec.md §4.3 step 4) is the map's
// natural iteration order, and so a per-operation snapshot can be taken
// and mutated without the teacher's copy-on-write state ever aliasing a
// previous operation's view — the same role immutable.SortedMap plays for
// the teacher's segment table in wal.go.
type metadataState struct {
	config types.Config
	queues *immutable.SortedMap[int, types.QueueMeta]
	lock   *types.ActiveLock
}

func newMetadataState(cfg types.Config) *metadataState {
	return &metadataState{
		config: cfg,
		queues: immutable.NewSortedMap[int, types.QueueMeta](nil),
	}
}

func (s *metadataState) get(p types.Priority) (types.QueueMeta, bool) {
	return s.queues.Get(int(p))
}

func (s *metadataState) set(p types.Priority, qm types.QueueMeta) {
	s.queues = s.queues.Set(int(p), qm)
}

func (s *metadataState) remove(p types.Priority) {
	s.queues = s.queues.Delete(int(p))
}

// sortedPriorities returns every priority with a live record, ascending —
// spec.md §4.3 step 4: "Sort priorities ascending."
func (s *metadataState) sortedPriorities() []types.Priority {
	out := make([]types.Priority, 0, s.queues.Len())
	it := s.queues.Iterator()
	for !it.Done() {
		k, _, _ := it.Next()
		out = append(out, types.Priority(k))
	}
	return out
}

func (s *metadataState) toDoc() types.MetadataDoc {
	doc := types.MetadataDoc{
		Config: s.config,
		Queues: make(map[string]types.QueueMeta, s.queues.Len()),
		Lock:   s.lock,
	}
	it := s.queues.Iterator()
	for !it.Done() {
		k, v, _ := it.Next()
		doc.Queues[types.PriorityKey(types.Priority(k))] = v
	}
	return doc
}

func metadataStateFromDoc(doc types.MetadataDoc) (*metadataState, error) {
	s := newMetadataState(doc.Config)
	s.lock = doc.Lock
	for key, qm := range doc.Queues {
		p, err := types.ParsePriorityKey(key)
		if err != nil {
			return nil, err
		}
		s.set(p, qm)
	}
	return s, nil
}

// loadMetadata reads and decodes the metadata document from the hot tier,
// initializing a fresh one if absent (spec.md §4.2 "On activation").
func (q *Queue) loadMetadata(ctx context.Context) (*metadataState, error) {
	blob, ok, err := q.hot.Get(ctx, metadataKey)
	if err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	if !ok {
		doc := types.NewMetadataDoc()
		doc.Config = q.config
		return metadataStateFromDoc(doc)
	}
	doc, err := types.DecodeMetadata(blob)
	if err != nil {
		return nil, fmt.Errorf("load metadata: %w", err)
	}
	return metadataStateFromDoc(doc)
}

// stageMetadata encodes and stages (but does not commit) the metadata
// document. Callers must call q.hot.Commit after staging every segment
// blob the same operation touched, so metadata and segment state land
// together (spec.md §4.1 "atomic commit()").
func (q *Queue) stageMetadata(ctx context.Context, s *metadataState) error {
	blob, err := types.EncodeMetadata(s.toDoc())
	if err != nil {
		return fmt.Errorf("stage metadata: %w", err)
	}
	return q.hot.Put(ctx, metadataKey, blob)
}

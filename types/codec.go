// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package types

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// MetadataDoc is the self-describing, on-the-wire shape of the single
// metadata blob (spec.md §4.2). It is decoded once when an actor loads its
// state and re-encoded once per commit (spec.md §9 design note: "decode
// once at load, re-encode once at commit; no mid-path type probing").
//
// Queues is keyed by the decimal string form of the priority because JSON
// object keys must be strings and priorities are sparse; only priorities
// that have ever been non-empty appear here.
type MetadataDoc struct {
	Config Config               `json:"config"`
	Queues map[string]QueueMeta `json:"queues"`
	Lock   *ActiveLock          `json:"active_lock,omitempty"`
}

// EncodeMetadata serializes a MetadataDoc to its persisted blob form.
func EncodeMetadata(doc MetadataDoc) ([]byte, error) {
	if doc.Queues == nil {
		doc.Queues = map[string]QueueMeta{}
	}
	return json.Marshal(doc)
}

// DecodeMetadata parses a persisted metadata blob. An empty/nil blob is not
// valid input here; callers are responsible for substituting a fresh
// MetadataDoc (via NewMetadataDoc) when the key is absent (spec.md §4.2 "on
// activation: if metadata absent, initialize...").
func DecodeMetadata(blob []byte) (MetadataDoc, error) {
	var doc MetadataDoc
	if err := json.Unmarshal(blob, &doc); err != nil {
		return MetadataDoc{}, fmt.Errorf("decode metadata: %w", err)
	}
	if doc.Queues == nil {
		doc.Queues = map[string]QueueMeta{}
	}
	return doc, nil
}

// NewMetadataDoc builds the document an activation with no prior state
// initializes (spec.md §4.2).
func NewMetadataDoc() MetadataDoc {
	return MetadataDoc{
		Config: DefaultConfig(),
		Queues: map[string]QueueMeta{},
	}
}

// PriorityKey formats a priority as the string key used in MetadataDoc.Queues.
func PriorityKey(p Priority) string {
	return strconv.Itoa(int(p))
}

// ParsePriorityKey parses a MetadataDoc.Queues key back into a Priority.
func ParsePriorityKey(s string) (Priority, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse priority key %q: %w", s, err)
	}
	return Priority(n), nil
}

// SegmentDoc is the persisted shape of one segment blob: a plain ordered
// list of opaque items. Segments never interpret item contents.
type SegmentDoc struct {
	Items []Item `json:"items"`
}

// EncodeSegment serializes a segment's items to its persisted blob form.
func EncodeSegment(items []Item) ([]byte, error) {
	return json.Marshal(SegmentDoc{Items: items})
}

// DecodeSegment parses a persisted segment blob. A nil/empty blob decodes
// to a segment with zero items (spec.md §4.3 step 2: "treat missing as
// empty").
func DecodeSegment(blob []byte) ([]Item, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	var doc SegmentDoc
	if err := json.Unmarshal(blob, &doc); err != nil {
		return nil, fmt.Errorf("decode segment: %w", err)
	}
	return doc.Items, nil
}

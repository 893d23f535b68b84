// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package pqactor

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/queuekit/pqactor/types"
)

const (
	// lockIDLength is the length, in characters, of a generated lock id
	// (spec.md §4.5: "11-character URL-safe, cryptographically random
	// token").
	lockIDLength = 11

	// minTTLSeconds and maxTTLSeconds bound PopWithAck's ttl_seconds
	// (spec.md §4.3 step 1).
	minTTLSeconds = 1
	maxTTLSeconds = 300

	// defaultTTLSeconds is used when the caller omits ttl_seconds.
	defaultTTLSeconds = 30
)

// generateLockID returns a fresh, cryptographically random, URL-safe lock
// id. At ~64 bits of entropy over an 11-character base64 alphabet,
// collision probability is negligible given at most one outstanding lock
// per actor (spec.md §4.5).
func generateLockID() (string, error) {
	// base64 URL encoding yields 4 characters per 3 bytes; 9 raw bytes
	// encode to 12 characters, trimmed to 11 to match the spec exactly.
	raw := make([]byte, 9)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate lock id: %w", err)
	}
	enc := base64.RawURLEncoding.EncodeToString(raw)
	return enc[:lockIDLength], nil
}

// clampTTL applies spec.md §4.3 step 1: ttlSeconds <= 0 means "omitted",
// substitute the default; otherwise clamp into [1, 300].
func clampTTL(ttlSeconds int) time.Duration {
	switch {
	case ttlSeconds <= 0:
		ttlSeconds = defaultTTLSeconds
	case ttlSeconds < minTTLSeconds:
		ttlSeconds = minTTLSeconds
	case ttlSeconds > maxTTLSeconds:
		ttlSeconds = maxTTLSeconds
	}
	return time.Duration(ttlSeconds) * time.Second
}

// groupByPriority partitions locked items by their originating priority,
// preserving the relative order of items within each priority group
// (spec.md §4.5 step 1). The returned order of priorities is the order in
// which each priority first appeared in items, which is immaterial to the
// resulting state but keeps recovery deterministic for tests and logs.
func groupByPriority(items []types.LockedItem) (order []types.Priority, groups map[types.Priority][]types.Item) {
	groups = make(map[types.Priority][]types.Item)
	seen := make(map[types.Priority]bool)
	for _, it := range items {
		if !seen[it.Priority] {
			seen[it.Priority] = true
			order = append(order, it.Priority)
		}
		groups[it.Priority] = append(groups[it.Priority], it.Item)
	}
	return order, groups
}

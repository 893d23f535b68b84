// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package store

import (
	"context"
	"fmt"

	"github.com/coreos/etcd/clientv3"
)

// EtcdColdStore is a ColdStore backed by an etcd cluster — a genuine
// external, shared key-value store of the kind spec.md §6 describes for
// the cold tier. Cold operations are executed individually with no
// cross-key atomicity (spec.md §4.1, §9): each Get/Put/Delete is one etcd
// RPC, never batched into a transaction, because the engine's offload and
// load scans are explicitly allowed to fail independently per segment.
type EtcdColdStore struct {
	client *clientv3.Client
}

// NewEtcdColdStore wraps an already-constructed etcd client. The client's
// lifetime is owned by the caller (spec.md §9 design note: "take the
// cold-tier client as an explicit dependency injected into the engine,
// with lifetime owned by the host" — never a package-level singleton
// freshly constructed per offload).
func NewEtcdColdStore(client *clientv3.Client) *EtcdColdStore {
	return &EtcdColdStore{client: client}
}

// Get fetches a single key from etcd.
func (e *EtcdColdStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	resp, err := e.client.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("etcd get %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, false, nil
	}
	return resp.Kvs[0].Value, true, nil
}

// Put writes a single key to etcd, taking effect immediately — there is no
// staging/commit step for the cold tier.
func (e *EtcdColdStore) Put(ctx context.Context, key string, value []byte) error {
	if _, err := e.client.Put(ctx, key, string(value)); err != nil {
		return fmt.Errorf("etcd put %s: %w", key, err)
	}
	return nil
}

// Delete removes a single key from etcd.
func (e *EtcdColdStore) Delete(ctx context.Context, key string) error {
	if _, err := e.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("etcd delete %s: %w", key, err)
	}
	return nil
}

var _ ColdStore = (*EtcdColdStore)(nil)

// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package store provides resident-value stores used by workers to
// hold task results between execution and release. Stores implement
// remit.Store; package sched reclaims their contents by targeted
// release and by live-set collection.
package store

import (
	"context"
	"sync"

	"github.com/grailbio/base/data"
	"github.com/grailbio/remit"
	"github.com/grailbio/remit/errors"
	"github.com/grailbio/remit/liveset"
	"github.com/grailbio/remit/values"
)

type memEntry struct {
	value values.T
	size  data.Size
}

// Mem is an in-memory store. It is the store used by in-process
// pools, where values never cross an encoding boundary.
type Mem struct {
	mu      sync.Mutex
	entries map[remit.Key]memEntry
}

// NewMem returns an empty in-memory store.
func NewMem() *Mem {
	return &Mem{entries: make(map[remit.Key]memEntry)}
}

// Put stores the value v under key, returning its approximate size.
// Storing a key twice overwrites the previous value, so that task
// re-execution is idempotent.
func (m *Mem) Put(ctx context.Context, key remit.Key, v values.T) (data.Size, error) {
	size := values.Size(v)
	m.mu.Lock()
	m.entries[key] = memEntry{value: v, size: size}
	m.mu.Unlock()
	return size, nil
}

// Get returns the value stored under key.
func (m *Mem) Get(ctx context.Context, key remit.Key) (values.T, error) {
	m.mu.Lock()
	entry, ok := m.entries[key]
	m.mu.Unlock()
	if !ok {
		return nil, errors.E("get", string(key), errors.NotExist)
	}
	return entry.value, nil
}

// Stat returns the approximate size of the value stored under key.
func (m *Mem) Stat(ctx context.Context, key remit.Key) (data.Size, error) {
	m.mu.Lock()
	entry, ok := m.entries[key]
	m.mu.Unlock()
	if !ok {
		return 0, errors.E("stat", string(key), errors.NotExist)
	}
	return entry.size, nil
}

// Release removes the values stored under the given keys. Keys with
// no stored value are ignored.
func (m *Mem) Release(ctx context.Context, keys ...remit.Key) error {
	m.mu.Lock()
	for _, key := range keys {
		delete(m.entries, key)
	}
	m.mu.Unlock()
	return nil
}

// Collect removes every value whose key digest is not contained in
// live. A nil live set removes everything.
func (m *Mem) Collect(ctx context.Context, live liveset.Liveset) error {
	m.mu.Lock()
	for key := range m.entries {
		if live != nil && live.Contains(key.Digest()) {
			continue
		}
		delete(m.entries, key)
	}
	m.mu.Unlock()
	return nil
}

// Scan visits each stored key and its size.
func (m *Mem) Scan(ctx context.Context, visit func(remit.Key, data.Size) error) error {
	m.mu.Lock()
	keys := make([]remit.Key, 0, len(m.entries))
	sizes := make([]data.Size, 0, len(m.entries))
	for key, entry := range m.entries {
		keys = append(keys, key)
		sizes = append(sizes, entry.size)
	}
	m.mu.Unlock()
	for i := range keys {
		if err := visit(keys[i], sizes[i]); err != nil {
			return err
		}
	}
	return nil
}

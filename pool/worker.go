// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pool

import (
	"context"
	"sync"

	"github.com/grailbio/base/data"
	"github.com/grailbio/base/digest"
	"github.com/grailbio/remit"
	"github.com/grailbio/remit/errors"
	"github.com/grailbio/remit/liveset"
	"github.com/grailbio/remit/log"
	"github.com/grailbio/remit/values"
	"golang.org/x/sync/errgroup"
)

// A Worker executes calls against a local store. It implements
// remit.Worker. Results, and dependency values fetched from peers,
// stay resident in the worker's store until they are released or
// collected; the keys of in-flight execs are pinned so that a
// concurrent sweep cannot reclaim values out from under them.
type Worker struct {
	id    string
	procs int
	reg   *remit.Registry
	store remit.Store
	peers Peers
	log   *log.Logger

	mu     sync.Mutex
	pinned map[remit.Key]int
}

// NewWorker returns a new worker with the given identity, executing
// up to procs calls concurrently. Call idents are resolved through
// the registry and results are kept in store. Peers, if non-nil,
// resolves fetches of dependency values resident on other workers.
func NewWorker(id string, procs int, reg *remit.Registry, store remit.Store, peers Peers, log *log.Logger) *Worker {
	return &Worker{
		id:     id,
		procs:  procs,
		reg:    reg,
		store:  store,
		peers:  peers,
		log:    log,
		pinned: make(map[remit.Key]int),
	}
}

// ID returns the worker's identifier.
func (w *Worker) ID() string { return w.id }

// Procs returns the worker's exec concurrency.
func (w *Worker) Procs() int { return w.procs }

// Exec applies the call's registered function to its resolved
// arguments and stores the result under the call's key, returning a
// reference to it. Dependency values are taken from the local store
// when resident and fetched from their origin workers otherwise;
// fetched values are cached locally so that later execs find them
// resident.
func (w *Worker) Exec(ctx context.Context, call remit.Call, deps map[remit.Key]remit.Ref) (remit.Ref, error) {
	const op = "exec"
	fn, err := w.reg.Lookup(call.Ident)
	if err != nil {
		return remit.Ref{}, errors.E(op, string(call.Key), err)
	}
	keys := append([]remit.Key{call.Key}, call.Deps()...)
	w.pin(keys)
	defer w.unpin(keys)

	args := make([]values.T, len(call.Args))
	g, gctx := errgroup.WithContext(ctx)
	for i, arg := range call.Args {
		if !arg.IsRef() {
			args[i] = arg.Lit
			continue
		}
		i, key := i, arg.Ref
		g.Go(func() error {
			v, err := w.resolve(gctx, key, deps[key])
			if err != nil {
				return err
			}
			args[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return remit.Ref{}, errors.E(op, string(call.Key), err)
	}
	v, err := w.apply(ctx, fn, call, args)
	if err != nil {
		return remit.Ref{}, errors.E(op, string(call.Key), err)
	}
	size, err := w.store.Put(ctx, call.Key, v)
	if err != nil {
		return remit.Ref{}, errors.E(op, string(call.Key), err)
	}
	w.log.Debugf("exec %s %s: stored %s", call.Ident, call.Key, size)
	return remit.Ref{Key: call.Key, Size: size, Origin: w.id}, nil
}

// resolve produces the value of a dependency key, consulting the
// local store first and falling back to the value's origin worker.
func (w *Worker) resolve(ctx context.Context, key remit.Key, ref remit.Ref) (values.T, error) {
	v, err := w.store.Get(ctx, key)
	if err == nil {
		return v, nil
	}
	if !errors.Is(errors.NotExist, err) {
		return nil, err
	}
	if ref.Origin == "" || ref.Origin == w.id {
		return nil, errors.E("resolve", string(key), errors.NotExist)
	}
	if w.peers == nil {
		return nil, errors.E("resolve", string(key), errors.NotExist,
			errors.Errorf("no route to worker %s", ref.Origin))
	}
	peer := w.peers(ref.Origin)
	if peer == nil {
		return nil, errors.E("resolve", string(key), errors.NotExist,
			errors.Errorf("unknown worker %s", ref.Origin))
	}
	w.log.Debugf("fetching %s from %s", key, ref.Origin)
	v, err = peer.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	if _, err := w.store.Put(ctx, key, v); err != nil {
		return nil, err
	}
	return v, nil
}

// apply invokes the function, converting panics into Fatal errors
// so that a panicking task does not take the worker down with it.
func (w *Worker) apply(ctx context.Context, fn remit.Fn, call remit.Call, args []values.T) (v values.T, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.E(call.Ident, errors.Fatal, errors.Errorf("panic: %v", p))
		}
	}()
	return fn(ctx, args...)
}

// Fetch returns the resident value stored under key.
func (w *Worker) Fetch(ctx context.Context, key remit.Key) (values.T, error) {
	return w.store.Get(ctx, key)
}

// Scan visits each value resident in the worker's store.
func (w *Worker) Scan(ctx context.Context, visit func(remit.Key, data.Size) error) error {
	return w.store.Scan(ctx, visit)
}

// Release drops the resident values named by keys. Keys pinned by
// in-flight execs are skipped; a later sweep reclaims them.
func (w *Worker) Release(ctx context.Context, keys ...remit.Key) error {
	w.mu.Lock()
	var free []remit.Key
	for _, key := range keys {
		if w.pinned[key] == 0 {
			free = append(free, key)
		}
	}
	w.mu.Unlock()
	if len(free) == 0 {
		return nil
	}
	return w.store.Release(ctx, free...)
}

// Collect drops every resident value whose key digest is not in the
// live set. Keys pinned by in-flight execs are retained regardless.
func (w *Worker) Collect(ctx context.Context, live liveset.Liveset) error {
	w.mu.Lock()
	pinned := make(map[digest.Digest]bool, len(w.pinned))
	for key, n := range w.pinned {
		if n > 0 {
			pinned[key.Digest()] = true
		}
	}
	w.mu.Unlock()
	return w.store.Collect(ctx, pinnedSet{live, pinned})
}

func (w *Worker) pin(keys []remit.Key) {
	w.mu.Lock()
	for _, key := range keys {
		w.pinned[key]++
	}
	w.mu.Unlock()
}

func (w *Worker) unpin(keys []remit.Key) {
	w.mu.Lock()
	for _, key := range keys {
		if w.pinned[key]--; w.pinned[key] == 0 {
			delete(w.pinned, key)
		}
	}
	w.mu.Unlock()
}

// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package remit

import (
	"context"
	"sort"
	"sync"

	"github.com/grailbio/remit/errors"
	"github.com/grailbio/remit/values"
)

// Fn is the signature shared by every registered function. Arguments
// arrive fully resolved, in the positional order of the originating
// call, and the returned value becomes the task's result. Functions
// must be safe for concurrent invocation and should respect ctx
// cancellation for long-running work.
type Fn func(ctx context.Context, args ...values.T) (values.T, error)

// A Registry maps function identifiers to implementations. Calls are
// transported by identifier, never by code, so a scheduler and its
// workers must share a registry with identical registrations. For
// remote pools this is arranged by registering functions from package
// init, so that every process linking the program sees the same set.
type Registry struct {
	mu  sync.RWMutex
	fns map[string]Fn
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{fns: make(map[string]Fn)}
}

// Register associates ident with fn. Registering an identifier twice
// is an error.
func (r *Registry) Register(ident string, fn Fn) error {
	if ident == "" {
		return errors.E("register", errors.Invalid, errors.New("empty identifier"))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.fns[ident]; ok {
		return errors.E("register", ident, errors.Collision)
	}
	r.fns[ident] = fn
	return nil
}

// MustRegister is like Register but panics on error. It is intended
// for registrations performed from package init.
func (r *Registry) MustRegister(ident string, fn Fn) {
	if err := r.Register(ident, fn); err != nil {
		panic(err)
	}
}

// Funcs is the process-wide registry. Programs that serve workers
// remotely register their functions here from package init, so that
// the scheduling process and every worker process agree on the
// registered set by virtue of linking the same packages.
var Funcs = NewRegistry()

// Register associates ident with fn in the process-wide registry.
func Register(ident string, fn Fn) error {
	return Funcs.Register(ident, fn)
}

// MustRegister is like Register but panics on error.
func MustRegister(ident string, fn Fn) {
	Funcs.MustRegister(ident, fn)
}

// Lookup returns the function registered under ident. It returns an
// errors.NotExist error if no function is registered.
func (r *Registry) Lookup(ident string) (Fn, error) {
	r.mu.RLock()
	fn, ok := r.fns[ident]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.E("lookup", ident, errors.NotExist)
	}
	return fn, nil
}

// Idents returns the registered identifiers in lexical order.
func (r *Registry) Idents() []string {
	r.mu.RLock()
	idents := make([]string, 0, len(r.fns))
	for ident := range r.fns {
		idents = append(idents, ident)
	}
	r.mu.RUnlock()
	sort.Strings(idents)
	return idents
}

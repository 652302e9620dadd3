// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package remit

import (
	"context"
	"fmt"

	"github.com/grailbio/base/data"
	"github.com/grailbio/remit/liveset"
	"github.com/grailbio/remit/values"
)

// A Ref names a result value resident on a worker. Refs are handed
// from workers to the scheduler when a task completes, and from the
// scheduler back to workers so that dependent calls can locate their
// inputs.
type Ref struct {
	// Key is the task key under which the value is stored.
	Key Key
	// Size is the approximate in-memory size of the stored value.
	Size data.Size
	// Origin is the ID of the worker holding the value.
	Origin string
}

func (r Ref) String() string {
	return fmt.Sprintf("%s@%s (%s)", r.Key, r.Origin, r.Size)
}

// A Worker executes calls and holds their results resident until they
// are released or collected. Workers must be safe for concurrent use:
// the scheduler issues execs, fetches, and releases without external
// synchronization.
type Worker interface {
	// ID returns the worker's stable, unique identifier.
	ID() string

	// Procs returns the number of calls the worker executes
	// concurrently. The scheduler never assigns more than this many
	// outstanding execs to the worker.
	Procs() int

	// Exec applies the call's registered function to its resolved
	// arguments and stores the result locally, returning a reference
	// to it. Reference arguments are resolved through deps, which
	// maps each dependency key to a reference naming the worker on
	// which its value resides; values not resident locally are
	// fetched from their origin workers. Exec returns the function's
	// error, if any, undecorated except for kind.
	Exec(ctx context.Context, call Call, deps map[Key]Ref) (Ref, error)

	// Fetch retrieves the resident value named by key. It returns an
	// errors.NotExist error if the value is not resident.
	Fetch(ctx context.Context, key Key) (values.T, error)

	// Release drops the resident values named by keys. Keys that are
	// not resident are ignored.
	Release(ctx context.Context, keys ...Key) error

	// Collect drops every resident value whose key digest is not
	// contained in the provided live set.
	Collect(ctx context.Context, live liveset.Liveset) error
}

// A Scanner enumerates resident values. Workers that support
// enumeration implement it in addition to Worker; it is consulted
// for diagnostics only and is not required for scheduling.
type Scanner interface {
	// Scan visits each resident key and its approximate size.
	// Scanning stops at the first error, which is returned.
	Scan(ctx context.Context, visit func(Key, data.Size) error) error
}

// A Pool supplies a scheduler with workers. The worker set is fixed
// for the lifetime of the pool.
type Pool interface {
	// Workers returns the pool's workers.
	Workers() []Worker
}

// A Store holds resident result values on behalf of a worker.
// Implementations must be safe for concurrent use.
type Store interface {
	// Put stores the value v under key, returning its approximate
	// size.
	Put(ctx context.Context, key Key, v values.T) (data.Size, error)

	// Get returns the value stored under key. It returns an
	// errors.NotExist error if there is none.
	Get(ctx context.Context, key Key) (values.T, error)

	// Stat returns the approximate size of the value stored under
	// key. It returns an errors.NotExist error if there is none.
	Stat(ctx context.Context, key Key) (data.Size, error)

	// Release removes the values stored under the given keys. Keys
	// with no stored value are ignored.
	Release(ctx context.Context, keys ...Key) error

	// Collect removes every value whose key digest is not contained
	// in the live set.
	Collect(ctx context.Context, live liveset.Liveset) error

	// Scan visits each stored key and its size. Scanning stops at
	// the first error, which is returned.
	Scan(ctx context.Context, visit func(Key, data.Size) error) error
}

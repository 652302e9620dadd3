// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package pool implements workers for remit. A worker executes calls
// against a local store and keeps their results resident, serving
// them to the scheduler and to peer workers until they are released
// or collected. A Local pool runs its workers in process; the client
// and server subpackages expose the same worker protocol over HTTP.
package pool

import (
	"github.com/grailbio/base/digest"
	"github.com/grailbio/remit"
	"github.com/grailbio/remit/liveset"
)

// Peers locates a peer worker by its ID, so that dependency values
// resident on other workers can be fetched. Returning nil fails the
// lookup.
type Peers func(id string) remit.Worker

// pinnedSet is the union of a liveset and a set of pinned digests.
// It protects the keys of in-flight execs from collection.
type pinnedSet struct {
	live   liveset.Liveset
	pinned map[digest.Digest]bool
}

func (p pinnedSet) Contains(d digest.Digest) bool {
	if p.pinned[d] {
		return true
	}
	return p.live != nil && p.live.Contains(d)
}

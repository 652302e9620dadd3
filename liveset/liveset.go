// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package liveset defines the live-set judgements used to reclaim
// worker-resident results. Stores discard any value whose key digest
// is not contained in the live set presented to them; live sets may
// be approximate, so long as they never exclude a live key.
package liveset

import (
	"github.com/grailbio/base/digest"
)

// A Liveset contains a possibly approximate judgement about live
// objects.
type Liveset interface {
	// Contains returns true if the given object definitely is in the
	// set; it may rarely return true when the object does not.
	Contains(digest.Digest) bool
}

// An Exact is a Liveset with no false positives, implemented as a
// plain set of digests.
type Exact map[digest.Digest]bool

// Add inserts the digest d into the set.
func (e Exact) Add(d digest.Digest) {
	e[d] = true
}

// Contains tells whether the digest d is in the set.
func (e Exact) Contains(d digest.Digest) bool {
	return e[d]
}

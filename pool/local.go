// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pool

import (
	"fmt"

	"github.com/grailbio/remit"
	"github.com/grailbio/remit/log"
	"github.com/grailbio/remit/store"
)

// A Local is an in-process pool. Each worker executes against its
// own store; dependency values move between workers by direct
// fetches, exactly as they would in a distributed pool.
type Local struct {
	workers []remit.Worker
}

// NewLocal returns a pool of n in-process workers, each executing up
// to procs calls concurrently. Worker stores are created by
// newStore, keyed by worker ID; if newStore is nil, every worker
// gets a fresh in-memory store.
func NewLocal(n, procs int, reg *remit.Registry, newStore func(id string) remit.Store, log *log.Logger) *Local {
	p := &Local{}
	byid := make(map[string]remit.Worker, n)
	peers := func(id string) remit.Worker { return byid[id] }
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("local%d", i)
		var st remit.Store
		if newStore != nil {
			st = newStore(id)
		} else {
			st = store.NewMem()
		}
		w := NewWorker(id, procs, reg, st, peers, log.Tee(nil, id+": "))
		byid[id] = w
		p.workers = append(p.workers, w)
	}
	return p
}

// Workers implements remit.Pool.
func (p *Local) Workers() []remit.Worker {
	return append([]remit.Worker{}, p.workers...)
}

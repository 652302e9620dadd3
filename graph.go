// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package remit

import (
	"github.com/grailbio/remit/errors"
)

// A Graph is a batch of keyed calls built up for joint submission.
// Calls in a graph may reference each other's keys freely; the
// scheduler validates the batch as a whole, so submission order
// within the graph does not matter. References that name no call in
// the graph must name tasks already known to the scheduler.
type Graph struct {
	calls map[Key]Call
	order []Key
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{calls: make(map[Key]Call)}
}

// Add inserts a call under the given key. Adding a key twice is an
// errors.Collision error.
func (g *Graph) Add(key Key, ident string, args ...Arg) error {
	if key == "" {
		return errors.E("graph.add", errors.Invalid, errors.New("empty key"))
	}
	if _, ok := g.calls[key]; ok {
		return errors.E("graph.add", string(key), errors.Collision)
	}
	g.calls[key] = Call{Key: key, Ident: ident, Args: args}
	g.order = append(g.order, key)
	return nil
}

// Len returns the number of calls in the graph.
func (g *Graph) Len() int {
	return len(g.calls)
}

// Calls returns the graph's calls in insertion order.
func (g *Graph) Calls() []Call {
	calls := make([]Call, len(g.order))
	for i, key := range g.order {
		calls[i] = g.calls[key]
	}
	return calls
}

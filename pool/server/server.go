// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package server exposes a worker for remote access.
package server

import (
	"context"
	"net/http"

	"github.com/grailbio/base/data"
	"github.com/grailbio/remit"
	"github.com/grailbio/remit/errors"
	"github.com/grailbio/remit/liveset/bloomlive"
	"github.com/grailbio/remit/rest"
)

// Info describes a worker's identity and capacity.
type Info struct {
	ID    string `json:"id"`
	Procs int    `json:"procs"`
}

// ExecRequest is the body of an exec call.
type ExecRequest struct {
	Call remit.Call              `json:"call"`
	Deps map[remit.Key]remit.Ref `json:"deps,omitempty"`
}

// ReleaseRequest is the body of a release call.
type ReleaseRequest struct {
	Keys []remit.Key `json:"keys"`
}

// CollectRequest is the body of a collect call. The live set is
// transported as a bloom filter.
type CollectRequest struct {
	Live *bloomlive.T `json:"live"`
}

// NewNode returns a rest.Node implementing the worker REST API:
//
//	GET  v1/info           worker identity and capacity
//	POST v1/exec           execute a call
//	GET  v1/values         list resident values
//	GET  v1/values/<key>   fetch a resident value
//	POST v1/release        drop resident values
//	POST v1/collect        drop values absent from a live set
func NewNode(w remit.Worker) rest.Node {
	n := &node{w}
	v1 := rest.Mux{
		"info":    rest.DoFunc(n.info),
		"exec":    rest.DoFunc(n.exec),
		"values":  valuesNode{n},
		"release": rest.DoFunc(n.release),
		"collect": rest.DoFunc(n.collect),
	}
	return rest.Mux{"v1": v1}
}

type node struct {
	w remit.Worker
}

func (n *node) info(ctx context.Context, call *rest.Call) {
	if !call.Allow("GET") {
		return
	}
	call.Reply(http.StatusOK, Info{ID: n.w.ID(), Procs: n.w.Procs()})
}

func (n *node) exec(ctx context.Context, call *rest.Call) {
	if !call.Allow("POST") {
		return
	}
	var req ExecRequest
	if call.Unmarshal(&req) != nil {
		return
	}
	ref, err := n.w.Exec(ctx, req.Call, req.Deps)
	if err != nil {
		call.Error(err)
		return
	}
	call.Reply(http.StatusOK, ref)
}

// valuesNode serves the resident value collection: addressed with a
// key, it fetches the value; addressed directly, it lists residents.
type valuesNode struct {
	n *node
}

// Walk implements rest.Node.
func (v valuesNode) Walk(ctx context.Context, call *rest.Call, path string) rest.Node {
	return v.n.value(path)
}

// Do implements rest.Node.
func (v valuesNode) Do(ctx context.Context, call *rest.Call) {
	if !call.Allow("GET") {
		return
	}
	scanner, ok := v.n.w.(remit.Scanner)
	if !ok {
		call.Error(errors.E("values", errors.NotSupported,
			errors.Errorf("worker %T cannot enumerate values", v.n.w)))
		return
	}
	refs := []remit.Ref{}
	err := scanner.Scan(ctx, func(key remit.Key, size data.Size) error {
		refs = append(refs, remit.Ref{Key: key, Size: size, Origin: v.n.w.ID()})
		return nil
	})
	if err != nil {
		call.Error(err)
		return
	}
	call.Reply(http.StatusOK, refs)
}

func (n *node) value(path string) rest.Node {
	key := remit.Key(path)
	return rest.DoFunc(func(ctx context.Context, call *rest.Call) {
		if !call.Allow("GET") {
			return
		}
		v, err := n.w.Fetch(ctx, key)
		if err != nil {
			call.Error(err)
			return
		}
		call.Reply(http.StatusOK, v)
	})
}

func (n *node) release(ctx context.Context, call *rest.Call) {
	if !call.Allow("POST") {
		return
	}
	var req ReleaseRequest
	if call.Unmarshal(&req) != nil {
		return
	}
	if err := n.w.Release(ctx, req.Keys...); err != nil {
		call.Error(err)
		return
	}
	call.Reply(http.StatusOK, struct{}{})
}

func (n *node) collect(ctx context.Context, call *rest.Call) {
	if !call.Allow("POST") {
		return
	}
	var req CollectRequest
	if call.Unmarshal(&req) != nil {
		return
	}
	if req.Live == nil {
		call.Error(errors.E("collect", errors.Invalid, errors.New("no live set")))
		return
	}
	if err := n.w.Collect(ctx, req.Live); err != nil {
		call.Error(err)
		return
	}
	call.Reply(http.StatusOK, struct{}{})
}

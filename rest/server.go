// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package rest implements a simple REST framework over HTTP. A
// server exposes a tree of resource nodes; requests are routed by
// walking the tree along the request path. Replies, including
// errors, are JSON encoded, so that error kinds survive the trip
// between client and server.
package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/grailbio/remit/errors"
	"github.com/grailbio/remit/log"
)

// A Node is a node in a REST resource tree. A node replies to calls
// addressed to it (Do) and routes calls addressed below it (Walk).
type Node interface {
	// Walk returns the child node named by path, or nil if there is
	// none. Walk may reply to the call directly, for example when a
	// resource lookup fails.
	Walk(ctx context.Context, call *Call, path string) Node

	// Do replies to a call addressed to this node.
	Do(ctx context.Context, call *Call)
}

// Mux routes calls to child nodes by the first path element.
type Mux map[string]Node

// Walk implements Node.
func (m Mux) Walk(ctx context.Context, call *Call, path string) Node {
	return m[path]
}

// Do implements Node. A mux is not itself addressable.
func (m Mux) Do(ctx context.Context, call *Call) {
	call.Error(errors.E(errors.NotExist, errors.New("resource does not exist")))
}

// WalkFunc is a Node that routes by path and is not itself
// addressable.
type WalkFunc func(path string) Node

// Walk implements Node.
func (f WalkFunc) Walk(ctx context.Context, call *Call, path string) Node {
	return f(path)
}

// Do implements Node.
func (f WalkFunc) Do(ctx context.Context, call *Call) {
	call.Error(errors.E(errors.NotExist, errors.New("resource does not exist")))
}

// DoFunc is a leaf Node.
type DoFunc func(ctx context.Context, call *Call)

// Walk implements Node.
func (f DoFunc) Walk(ctx context.Context, call *Call, path string) Node {
	return nil
}

// Do implements Node.
func (f DoFunc) Do(ctx context.Context, call *Call) {
	f(ctx, call)
}

// A Call represents a single request and reply exchange. A call is
// replied to at most once; replies after the first are dropped.
type Call struct {
	w    http.ResponseWriter
	r    *http.Request
	log  *log.Logger
	done bool
}

// Method returns the call's HTTP method.
func (c *Call) Method() string { return c.r.Method }

// URL returns the call's request URL.
func (c *Call) URL() *url.URL { return c.r.URL }

// Body returns the call's request body.
func (c *Call) Body() io.Reader { return c.r.Body }

// Allow tells whether the call's method is among the allowed
// methods. If it is not, Allow replies to the call with a
// MethodNotAllowed error.
func (c *Call) Allow(methods ...string) bool {
	for _, m := range methods {
		if c.r.Method == m {
			return true
		}
	}
	c.w.Header().Set("Allow", strings.Join(methods, ", "))
	c.reply(http.StatusMethodNotAllowed,
		errors.Recover(errors.E(errors.NotSupported, errors.Errorf("method %s not allowed", c.r.Method))))
	return false
}

// Unmarshal unmarshals the call's request body using Go's JSON
// decoder. If unmarshaling fails, the call is replied to with an
// Invalid error and the decoding error is returned.
func (c *Call) Unmarshal(v interface{}) error {
	err := json.NewDecoder(c.r.Body).Decode(v)
	if err != nil {
		c.reply(http.StatusBadRequest, errors.Recover(errors.E(errors.Invalid, err)))
	}
	return err
}

// Reply replies to the call with the given HTTP status code and a
// JSON-encoded reply body.
func (c *Call) Reply(code int, reply interface{}) {
	c.reply(code, reply)
}

// Error replies to the call with an error. The HTTP status code is
// derived from the error's kind, and the body carries the marshaled
// error so that the client can recover it intact.
func (c *Call) Error(err error) {
	e := errors.Recover(err)
	c.reply(e.HTTPStatus(), e)
}

func (c *Call) reply(code int, reply interface{}) {
	if c.done {
		return
	}
	c.done = true
	c.w.Header().Set("Content-Type", "application/json; charset=utf-8")
	c.w.WriteHeader(code)
	if err := json.NewEncoder(c.w).Encode(reply); err != nil {
		c.log.Errorf("reply %v: %v", reply, err)
	}
}

// Handler returns an http.Handler that serves the resource tree
// rooted at root.
func Handler(root Node, log *log.Logger) http.Handler {
	return &handler{root, log}
}

type handler struct {
	root Node
	log  *log.Logger
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	call := &Call{w: w, r: r, log: h.log}
	h.log.Debugf("%s %s", r.Method, r.URL)
	node := h.root
	for _, elem := range strings.Split(strings.Trim(r.URL.Path, "/"), "/") {
		if elem == "" {
			continue
		}
		node = node.Walk(ctx, call, elem)
		if node == nil || call.done {
			break
		}
	}
	switch {
	case call.done:
	case node == nil:
		call.Error(errors.E(r.URL.Path, errors.NotExist))
	default:
		node.Do(ctx, call)
		if !call.done {
			call.Error(errors.E(r.URL.Path, errors.New("node did not reply")))
		}
	}
}

// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package client implements a remoting client for remit workers.
package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/grailbio/base/data"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/remit"
	"github.com/grailbio/remit/errors"
	"github.com/grailbio/remit/liveset"
	"github.com/grailbio/remit/liveset/bloomlive"
	"github.com/grailbio/remit/log"
	"github.com/grailbio/remit/pool/server"
	"github.com/grailbio/remit/rest"
	"github.com/grailbio/remit/values"
)

// Worker is a remit.Worker that dispatches calls to a remote worker
// over its REST API. Worker IDs double as dialable addresses, so
// that values can be fetched directly from the worker holding them.
type Worker struct {
	*rest.Client
	id    string
	procs int
}

// New dials the worker at baseurl, queries its identity, and
// returns a client for it. If client is nil, the default HTTP
// client is used. If log is not nil, detailed request and response
// information is logged to it.
func New(ctx context.Context, baseurl string, client *http.Client, log *log.Logger) (*Worker, error) {
	u, err := url.Parse(baseurl)
	if err != nil {
		return nil, err
	}
	w := &Worker{Client: rest.NewClient(client, u, log)}
	call := w.Call("GET", "v1/info")
	defer call.Close()
	code, err := call.Do(ctx, nil)
	if err != nil {
		return nil, errors.E("info", baseurl, err)
	}
	if code != http.StatusOK {
		return nil, call.Error()
	}
	var info server.Info
	if err := call.Unmarshal(&info); err != nil {
		return nil, errors.E("info", baseurl, err)
	}
	w.id = info.ID
	w.procs = info.Procs
	return w, nil
}

// ID returns the remote worker's identifier.
func (w *Worker) ID() string { return w.id }

// Procs returns the remote worker's exec concurrency.
func (w *Worker) Procs() int { return w.procs }

// Exec dispatches the call to the remote worker.
func (w *Worker) Exec(ctx context.Context, call remit.Call, deps map[remit.Key]remit.Ref) (remit.Ref, error) {
	c := w.Call("POST", "v1/exec")
	defer c.Close()
	code, err := c.DoJSON(ctx, server.ExecRequest{Call: call, Deps: deps})
	if err != nil {
		return remit.Ref{}, errors.E("exec", string(call.Key), err)
	}
	if code != http.StatusOK {
		return remit.Ref{}, c.Error()
	}
	var ref remit.Ref
	if err := c.Unmarshal(&ref); err != nil {
		return remit.Ref{}, errors.E("exec", string(call.Key), err)
	}
	return ref, nil
}

// Fetch retrieves a resident value from the remote worker. Values
// travel as JSON, so numbers arrive as float64 and composite values
// in their JSON forms.
func (w *Worker) Fetch(ctx context.Context, key remit.Key) (values.T, error) {
	c := w.Call("GET", "v1/values/%s", key)
	defer c.Close()
	code, err := c.Do(ctx, nil)
	if err != nil {
		return nil, errors.E("fetch", string(key), err)
	}
	if code != http.StatusOK {
		return nil, c.Error()
	}
	var v values.T
	if err := c.Unmarshal(&v); err != nil {
		return nil, errors.E("fetch", string(key), err)
	}
	return v, nil
}

// Scan visits each value resident on the remote worker, reporting
// sizes as accounted there.
func (w *Worker) Scan(ctx context.Context, visit func(remit.Key, data.Size) error) error {
	c := w.Call("GET", "v1/values")
	defer c.Close()
	code, err := c.Do(ctx, nil)
	if err != nil {
		return errors.E("scan", w.id, err)
	}
	if code != http.StatusOK {
		return c.Error()
	}
	var refs []remit.Ref
	if err := c.Unmarshal(&refs); err != nil {
		return errors.E("scan", w.id, err)
	}
	for _, ref := range refs {
		if err := visit(ref.Key, ref.Size); err != nil {
			return err
		}
	}
	return nil
}

// Release drops resident values on the remote worker.
func (w *Worker) Release(ctx context.Context, keys ...remit.Key) error {
	c := w.Call("POST", "v1/release")
	defer c.Close()
	code, err := c.DoJSON(ctx, server.ReleaseRequest{Keys: keys})
	if err != nil {
		return errors.E("release", err)
	}
	if code != http.StatusOK {
		return c.Error()
	}
	return nil
}

// Collect ships the live set to the remote worker, which drops
// every resident value outside of it. Only bloomlive live sets can
// be transported.
func (w *Worker) Collect(ctx context.Context, live liveset.Liveset) error {
	b, ok := live.(*bloomlive.T)
	if !ok {
		return errors.E("collect", errors.NotSupported, errors.Errorf("cannot transport liveset %T", live))
	}
	c := w.Call("POST", "v1/collect")
	defer c.Close()
	code, err := c.DoJSON(ctx, server.CollectRequest{Live: b})
	if err != nil {
		return errors.E("collect", err)
	}
	if code != http.StatusOK {
		return c.Error()
	}
	return nil
}

// Pool is a remit.Pool over a fixed set of remote workers.
type Pool struct {
	workers []remit.Worker
}

// NewPool dials each of the given worker addresses in parallel.
func NewPool(ctx context.Context, addrs []string, client *http.Client, log *log.Logger) (*Pool, error) {
	workers := make([]remit.Worker, len(addrs))
	err := traverse.Each(len(addrs), func(i int) error {
		w, err := New(ctx, addrs[i], client, log)
		if err != nil {
			return err
		}
		workers[i] = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Pool{workers}, nil
}

// Workers implements remit.Pool.
func (p *Pool) Workers() []remit.Worker {
	return append([]remit.Worker{}, p.workers...)
}

// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pool

import (
	"context"
	"testing"

	"github.com/grailbio/remit"
	"github.com/grailbio/remit/errors"
	"github.com/grailbio/remit/store"
	"github.com/grailbio/remit/values"
)

func newTestRegistry(t *testing.T) *remit.Registry {
	t.Helper()
	reg := remit.NewRegistry()
	reg.MustRegister("concat", func(ctx context.Context, args ...values.T) (values.T, error) {
		var s string
		for _, arg := range args {
			s += arg.(string)
		}
		return s, nil
	})
	reg.MustRegister("panics", func(ctx context.Context, args ...values.T) (values.T, error) {
		panic("boom")
	})
	return reg
}

func TestWorkerExec(t *testing.T) {
	reg := newTestRegistry(t)
	w := NewWorker("w0", 1, reg, store.NewMem(), nil, nil)
	ctx := context.Background()

	ref, err := w.Exec(ctx, remit.Call{
		Key:   "greeting",
		Ident: "concat",
		Args:  []remit.Arg{remit.Lit("hello"), remit.Lit(", world")},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := ref.Key, remit.Key("greeting"); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := ref.Origin, "w0"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	v, err := w.Fetch(ctx, "greeting")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := v, "hello, world"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	// A dependency resident in the local store is used directly.
	ref2, err := w.Exec(ctx, remit.Call{
		Key:   "longer",
		Ident: "concat",
		Args:  []remit.Arg{remit.Dep("greeting"), remit.Lit("!")},
	}, map[remit.Key]remit.Ref{"greeting": ref})
	if err != nil {
		t.Fatal(err)
	}
	v, err = w.Fetch(ctx, ref2.Key)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := v, "hello, world!"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestWorkerPeerFetch(t *testing.T) {
	reg := newTestRegistry(t)
	byid := make(map[string]remit.Worker)
	peers := func(id string) remit.Worker { return byid[id] }
	w1 := NewWorker("w1", 1, reg, store.NewMem(), peers, nil)
	w2 := NewWorker("w2", 1, reg, store.NewMem(), peers, nil)
	byid["w1"], byid["w2"] = w1, w2
	ctx := context.Background()

	ref, err := w1.Exec(ctx, remit.Call{
		Key:   "part",
		Ident: "concat",
		Args:  []remit.Arg{remit.Lit("remote")},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	// w2 resolves the dependency by fetching it from w1 and caches it
	// locally.
	_, err = w2.Exec(ctx, remit.Call{
		Key:   "whole",
		Ident: "concat",
		Args:  []remit.Arg{remit.Dep("part"), remit.Lit(" value")},
	}, map[remit.Key]remit.Ref{"part": ref})
	if err != nil {
		t.Fatal(err)
	}
	v, err := w2.Fetch(ctx, "whole")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := v, "remote value"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, err = w2.Fetch(ctx, "part"); err != nil {
		t.Errorf("fetched dependency not cached: %v", err)
	}
}

func TestWorkerMissingDependency(t *testing.T) {
	reg := newTestRegistry(t)
	w := NewWorker("w0", 1, reg, store.NewMem(), nil, nil)

	_, err := w.Exec(context.Background(), remit.Call{
		Key:   "orphan",
		Ident: "concat",
		Args:  []remit.Arg{remit.Dep("nowhere")},
	}, nil)
	if !errors.Is(errors.NotExist, err) {
		t.Errorf("expected notexist, got %v", err)
	}
}

func TestWorkerPanic(t *testing.T) {
	reg := newTestRegistry(t)
	w := NewWorker("w0", 1, reg, store.NewMem(), nil, nil)

	_, err := w.Exec(context.Background(), remit.Call{Key: "bad", Ident: "panics"}, nil)
	if !errors.Is(errors.Fatal, err) {
		t.Errorf("expected fatal, got %v", err)
	}
	if _, err = w.Fetch(context.Background(), "bad"); !errors.Is(errors.NotExist, err) {
		t.Errorf("expected notexist, got %v", err)
	}
}

func TestWorkerUnregistered(t *testing.T) {
	reg := newTestRegistry(t)
	w := NewWorker("w0", 1, reg, store.NewMem(), nil, nil)

	_, err := w.Exec(context.Background(), remit.Call{Key: "k", Ident: "missing"}, nil)
	if !errors.Is(errors.NotExist, err) {
		t.Errorf("expected notexist, got %v", err)
	}
}

func TestLocalPool(t *testing.T) {
	reg := newTestRegistry(t)
	p := NewLocal(3, 2, reg, nil, nil)
	workers := p.Workers()
	if got, want := len(workers), 3; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	seen := make(map[string]bool)
	for _, w := range workers {
		if seen[w.ID()] {
			t.Errorf("duplicate worker id %s", w.ID())
		}
		seen[w.ID()] = true
		if got, want := w.Procs(), 2; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

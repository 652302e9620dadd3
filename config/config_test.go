// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package config

import (
	"errors"
	"reflect"
	"testing"

	"github.com/grailbio/remit"
	"github.com/grailbio/remit/pool"
	"github.com/grailbio/remit/store"
	"github.com/grailbio/testutil"
)

type testPool struct {
	Config
	arg string
}

func (p *testPool) Pool() (remit.Pool, error) {
	return nil, errors.New(p.arg)
}

func TestConfig(t *testing.T) {
	Register(Pool, "test", "test", "", func(cfg Config, arg string) (Config, error) {
		return &testPool{cfg, arg}, nil
	})

	cfg, err := Parse([]byte(`
pool: test,arg1
`))
	if err != nil {
		t.Fatal(err)
	}
	p, err := cfg.Pool()
	if p != nil {
		t.Errorf("expected nil pool, got %v", p)
	}
	if err == nil {
		t.Fatal("expected non-nil error")
	}
	if got, want := err.Error(), "arg1"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	b, err := Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	cfg1, err := Parse(b)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(cfg, cfg1) {
		t.Error("cfg, cfg1 not equal after marshal roundtrip")
	}
}

func TestLocalPool(t *testing.T) {
	cfg, err := Parse([]byte(`
logger: off
pool: local,3x2
`))
	if err != nil {
		t.Fatal(err)
	}
	p, err := cfg.Pool()
	if err != nil {
		t.Fatal(err)
	}
	local, ok := p.(*pool.Local)
	if !ok {
		t.Fatalf("expected *pool.Local, got %T", p)
	}
	workers := local.Workers()
	if got, want := len(workers), 3; got != want {
		t.Fatalf("got %v workers, want %v", got, want)
	}
	for _, w := range workers {
		if got, want := w.Procs(), 2; got != want {
			t.Errorf("worker %s: got %v procs, want %v", w.ID(), got, want)
		}
	}
}

func TestStore(t *testing.T) {
	cfg, err := Parse([]byte(`
logger: off
store: mem
`))
	if err != nil {
		t.Fatal(err)
	}
	s, err := cfg.Store()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*store.Mem); !ok {
		t.Errorf("expected *store.Mem, got %T", s)
	}

	dir, cleanup := testutil.TempDir(t, "", "config-")
	defer cleanup()
	cfg, err = Parse([]byte("store: file," + dir + "\n"))
	if err != nil {
		t.Fatal(err)
	}
	s, err = cfg.Store()
	if err != nil {
		t.Fatal(err)
	}
	fs, ok := s.(*store.File)
	if !ok {
		t.Fatalf("expected *store.File, got %T", s)
	}
	if got, want := fs.Root, dir; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestBadProvider(t *testing.T) {
	for _, doc := range []string{
		"pool: nonexistent\n",
		"pool: local,0x0\n",
		"store: file\n",
	} {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("%q: expected error", doc)
		}
	}
}

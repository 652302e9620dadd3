// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sched_test

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/grailbio/remit"
	"github.com/grailbio/remit/errors"
	"github.com/grailbio/remit/pool"
	"github.com/grailbio/remit/sched"
	"github.com/grailbio/remit/values"
)

// newEvalScheduler starts a scheduler over a real in-process pool
// with the given registry.
func newEvalScheduler(reg *remit.Registry, nworkers, procs int) (scheduler *sched.Scheduler, shutdown func()) {
	scheduler = sched.New()
	scheduler.Pool = pool.NewLocal(nworkers, procs, reg, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		scheduler.Do(ctx)
		wg.Done()
	}()
	shutdown = func() {
		cancel()
		wg.Wait()
	}
	return
}

func newEvalRegistry() *remit.Registry {
	reg := remit.NewRegistry()
	reg.MustRegister("inc", func(ctx context.Context, args ...values.T) (values.T, error) {
		time.Sleep(5 * time.Millisecond)
		return args[0].(int) + 1, nil
	})
	reg.MustRegister("sum", func(ctx context.Context, args ...values.T) (values.T, error) {
		var sum int
		for _, arg := range args {
			sum += arg.(int)
		}
		return sum, nil
	})
	reg.MustRegister("fail", func(ctx context.Context, args ...values.T) (values.T, error) {
		return nil, errors.New("deliberate failure")
	})
	return reg
}

func TestEvalInc(t *testing.T) {
	scheduler, shutdown := newEvalScheduler(newEvalRegistry(), 1, 1)
	defer shutdown()
	ctx := context.Background()

	futures, err := scheduler.Submit(ctx, remit.Call{Ident: "inc", Args: []remit.Arg{remit.Lit(1)}})
	if err != nil {
		t.Fatal(err)
	}
	v, err := futures[0].Result(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := v, 2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := futures[0].State(), sched.Done; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestEvalMap(t *testing.T) {
	scheduler, shutdown := newEvalScheduler(newEvalRegistry(), 2, 2)
	defer shutdown()
	ctx := context.Background()

	futures, err := scheduler.Map(ctx, "inc", []values.T{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	vs, err := sched.Gather(ctx, futures)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := vs, []values.T{2, 3, 4}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

// TestEvalGraph evaluates a diamond-shaped graph across multiple
// workers, exercising peer fetches of intermediate values.
func TestEvalGraph(t *testing.T) {
	scheduler, shutdown := newEvalScheduler(newEvalRegistry(), 3, 1)
	defer shutdown()
	ctx := context.Background()

	g := remit.NewGraph()
	mustAdd := func(key string, ident string, args ...remit.Arg) {
		if err := g.Add(remit.Key(key), ident, args...); err != nil {
			t.Fatal(err)
		}
	}
	mustAdd("x", "inc", remit.Lit(1))
	mustAdd("y", "inc", remit.Dep("x"))
	mustAdd("z", "inc", remit.Dep("x"))
	mustAdd("total", "sum", remit.Dep("y"), remit.Dep("z"), remit.Lit(10))

	futures, err := scheduler.Compute(ctx, g, "total")
	if err != nil {
		t.Fatal(err)
	}
	v, err := futures["total"].Result(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// x=2, y=z=3, total=3+3+10.
	if got, want := v, 16; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestEvalError(t *testing.T) {
	scheduler, shutdown := newEvalScheduler(newEvalRegistry(), 1, 1)
	defer shutdown()
	ctx := context.Background()

	futures, err := scheduler.Submit(ctx,
		remit.Call{Key: "bad", Ident: "fail"},
		remit.Call{Key: "dependent", Ident: "inc", Args: []remit.Arg{remit.Dep("bad")}},
	)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range futures {
		if _, err := f.Result(ctx); err == nil {
			t.Errorf("%s: expected error", f.Key)
		}
	}
}

func TestEvalUnregistered(t *testing.T) {
	scheduler, shutdown := newEvalScheduler(newEvalRegistry(), 1, 1)
	defer shutdown()
	ctx := context.Background()

	futures, err := scheduler.Submit(ctx, remit.Call{Ident: "frobnicate"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := futures[0].Result(ctx); !errors.Is(errors.NotExist, err) {
		t.Errorf("expected notexist, got %v", err)
	}
}

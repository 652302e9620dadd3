// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sched_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/grailbio/remit"
	"github.com/grailbio/remit/errors"
	"github.com/grailbio/remit/sched"
)

func TestSchedulerBasic(t *testing.T) {
	w := newTestWorker("w0", 1)
	scheduler, shutdown := newTestScheduler(w)
	defer shutdown()
	ctx := context.Background()

	f := submit(t, scheduler, call("a", remit.Lit(1)))[0]
	e := w.exec(t)
	if got, want := e.Call.Key, remit.Key("a"); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := f.State(), sched.Running; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	e.Ok(2)
	if err := f.Wait(ctx, sched.Done); err != nil {
		t.Fatal(err)
	}
	if got, want := f.State(), sched.Done; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	v, err := f.Result(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := v, 2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSubmitNonblocking(t *testing.T) {
	w := newTestWorker("w0", 1)
	scheduler, shutdown := newTestScheduler(w)
	defer shutdown()

	// The worker never services its exec; submission must return
	// regardless.
	start := time.Now()
	f := submit(t, scheduler, call("a"))[0]
	if d := time.Since(start); d > timeout/2 {
		t.Errorf("submit took %s", d)
	}
	if state := f.State(); state != sched.Pending && state != sched.Running {
		t.Errorf("unexpected state %v", state)
	}
}

func TestKeyCollision(t *testing.T) {
	w := newTestWorker("w0", 1)
	scheduler, shutdown := newTestScheduler(w)
	defer shutdown()
	ctx := context.Background()

	submit(t, scheduler, call("a"))
	_, err := scheduler.Submit(ctx, call("a"))
	if !errors.Is(errors.Collision, err) {
		t.Errorf("expected collision, got %v", err)
	}
	// Duplicates within a batch collide too, and the whole batch is
	// rejected.
	_, err = scheduler.Submit(ctx, call("b"), call("b"))
	if !errors.Is(errors.Collision, err) {
		t.Errorf("expected collision, got %v", err)
	}
	if _, err = scheduler.Submit(ctx, call("b")); err != nil {
		t.Errorf("key b should be free: %v", err)
	}
}

func TestCyclicGraph(t *testing.T) {
	w := newTestWorker("w0", 1)
	scheduler, shutdown := newTestScheduler(w)
	defer shutdown()
	ctx := context.Background()

	_, err := scheduler.Submit(ctx,
		call("a", remit.Dep("b")),
		call("b", remit.Dep("a")),
	)
	if !errors.Is(errors.Cyclic, err) {
		t.Fatalf("expected cyclic error, got %v", err)
	}
	// Nothing may have been dispatched, and the keys remain free.
	w.expectNoExec(t)
	if _, err = scheduler.Submit(ctx, call("a")); err != nil {
		t.Errorf("key a should be free: %v", err)
	}
}

func TestUnknownDependency(t *testing.T) {
	w := newTestWorker("w0", 1)
	scheduler, shutdown := newTestScheduler(w)
	defer shutdown()

	_, err := scheduler.Submit(context.Background(), call("a", remit.Dep("nope")))
	if !errors.Is(errors.NotExist, err) {
		t.Errorf("expected notexist, got %v", err)
	}
}

func TestDependency(t *testing.T) {
	w := newTestWorker("w0", 1)
	scheduler, shutdown := newTestScheduler(w)
	defer shutdown()
	ctx := context.Background()

	futures := submit(t, scheduler,
		call("a", remit.Lit(1)),
		call("b", remit.Dep("a")),
	)
	b := futures[1]
	ea := w.exec(t)
	if got, want := ea.Call.Key, remit.Key("a"); got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	// b must not be dispatched until a has finished.
	w.expectNoExec(t)
	ea.Ok(10)
	eb := w.exec(t)
	if got, want := eb.Call.Key, remit.Key("b"); got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := eb.Deps["a"].Origin, "w0"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	eb.Ok(11)
	v, err := b.Result(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := v, 11; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDependencyError(t *testing.T) {
	w := newTestWorker("w0", 1)
	scheduler, shutdown := newTestScheduler(w)
	defer shutdown()
	ctx := context.Background()

	futures := submit(t, scheduler,
		call("a"),
		call("b", remit.Dep("a")),
	)
	b := futures[1]
	e := w.exec(t)
	e.Err(errors.New("boom"))
	if err := b.Wait(ctx, sched.Done); err != nil {
		t.Fatal(err)
	}
	if got, want := b.State(), sched.Errored; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	err := b.Err()
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected propagated error, got %v", err)
	}
	// b errored by propagation; it must never execute.
	w.expectNoExec(t)
}

func TestCancelPending(t *testing.T) {
	w := newTestWorker("w0", 1)
	scheduler, shutdown := newTestScheduler(w)
	defer shutdown()
	ctx := context.Background()

	t1 := submit(t, scheduler, call("a"))[0]
	t2 := submit(t, scheduler, call("b"))[0]
	e1 := w.exec(t)
	// b is queued behind a on the only proc; cancel it there.
	t2.Cancel()
	if err := t2.Wait(ctx, sched.Done); err != nil {
		t.Fatal(err)
	}
	if got, want := t2.State(), sched.Canceled; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, err := t2.Result(ctx); !errors.Is(errors.Canceled, err) {
		t.Errorf("expected canceled, got %v", err)
	}
	e1.Ok(1)
	if err := t1.Wait(ctx, sched.Done); err != nil {
		t.Fatal(err)
	}
	if got, want := t1.State(), sched.Done; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCancelRunning(t *testing.T) {
	w := newTestWorker("w0", 1)
	scheduler, shutdown := newTestScheduler(w)
	defer shutdown()

	f := submit(t, scheduler, call("a"))[0]
	e := w.exec(t)
	f.Cancel()
	poll(t, "cancellation", func() bool {
		return f.State() == sched.Canceled
	})
	// Cancellation is advisory: the worker completes the exec anyway,
	// and the result is discarded rather than delivered.
	e.Ok(7)
	if _, err := f.Result(context.Background()); !errors.Is(errors.Canceled, err) {
		t.Errorf("expected canceled, got %v", err)
	}
	if got, want := f.State(), sched.Canceled; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	poll(t, "discarded result release", func() bool {
		return w.Released("a")
	})
}

func TestReclamation(t *testing.T) {
	w := newTestWorker("w0", 1)
	scheduler, shutdown := newTestScheduler(w)
	defer shutdown()
	ctx := context.Background()

	f := submit(t, scheduler, call("a"))[0]
	w.exec(t).Ok("result")
	if err := f.Wait(ctx, sched.Done); err != nil {
		t.Fatal(err)
	}
	if !w.Resident("a") {
		t.Fatal("result not resident")
	}
	f.Release()
	poll(t, "key retirement", func() bool {
		_, ok := scheduler.Stats.GetStats().Tasks["a"]
		return !ok
	})
	poll(t, "result release", func() bool {
		return w.Released("a") && !w.Resident("a")
	})
	// The key is free for reuse.
	if _, err := scheduler.Submit(ctx, call("a")); err != nil {
		t.Errorf("key a should be free: %v", err)
	}
}

func TestDependentHoldsReference(t *testing.T) {
	w := newTestWorker("w0", 1)
	scheduler, shutdown := newTestScheduler(w)
	defer shutdown()
	ctx := context.Background()

	futures := submit(t, scheduler,
		call("a"),
		call("b", remit.Dep("a")),
	)
	a, b := futures[0], futures[1]
	// Dropping the caller's reference to a must not release its
	// result while b still depends on it.
	a.Release()
	w.exec(t).Ok("data")
	eb := w.exec(t)
	if w.Released("a") {
		t.Fatal("dependency released while dependent in flight")
	}
	eb.Ok("derived")
	if err := b.Wait(ctx, sched.Done); err != nil {
		t.Fatal(err)
	}
	// With b settled, a's last reference is gone.
	poll(t, "dependency release", func() bool {
		return w.Released("a")
	})
}

func TestPlacement(t *testing.T) {
	w1 := newTestWorker("w1", 1)
	w2 := newTestWorker("w2", 1)
	scheduler, shutdown := newTestScheduler(w1, w2)
	defer shutdown()

	// Occupy w1 so that a's result lands on w2.
	submit(t, scheduler, call("busy"))
	ebusy := w1.exec(t)
	submit(t, scheduler, call("a"))
	ea := w2.exec(t)
	ea.OkSize("payload", 1000)
	ebusy.Ok(0)

	// Both workers are now idle; b must follow its input data to w2
	// even though w1 is first in pool order.
	submit(t, scheduler, call("b", remit.Dep("a")))
	w1.expectNoExec(t)
	eb := w2.exec(t)
	if got, want := eb.Call.Key, remit.Key("b"); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	eb.Ok(0)
}

func TestDispatchOrder(t *testing.T) {
	w := newTestWorker("w0", 1)
	scheduler, shutdown := newTestScheduler(w)
	defer shutdown()

	submit(t, scheduler, call("a"), call("b"), call("c"))
	for _, want := range []remit.Key{"a", "b", "c"} {
		e := w.exec(t)
		if got := e.Call.Key; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
		e.Ok(0)
	}
}

func TestTransientRetry(t *testing.T) {
	w := newTestWorker("w0", 1)
	scheduler, shutdown := newTestScheduler(w)
	defer shutdown()
	ctx := context.Background()

	f := submit(t, scheduler, call("a"))[0]
	w.exec(t).Err(errors.E(errors.Unavailable, errors.New("worker hiccup")))
	// The task is retried rather than failed, and remains observably
	// running while it is requeued and redispatched.
	var (
		e        *testExec
		deadline = time.Now().Add(timeout)
	)
	for e == nil {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for retry")
		}
		if got, want := f.State(), sched.Running; got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
		select {
		case e = <-w.execc:
		case <-time.After(time.Millisecond):
		}
	}
	e.Ok(3)
	v, err := f.Result(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := v, 3; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFatalError(t *testing.T) {
	w := newTestWorker("w0", 1)
	scheduler, shutdown := newTestScheduler(w)
	defer shutdown()
	ctx := context.Background()

	f := submit(t, scheduler, call("a"))[0]
	w.exec(t).Err(errors.E(errors.Fatal, errors.New("assertion botched")))
	if err := f.Wait(ctx, sched.Done); err != nil {
		t.Fatal(err)
	}
	if got, want := f.State(), sched.Errored; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, err := f.Result(ctx); !errors.Is(errors.Fatal, err) {
		t.Errorf("expected fatal, got %v", err)
	}
}

func TestResultDeadline(t *testing.T) {
	w := newTestWorker("w0", 1)
	scheduler, shutdown := newTestScheduler(w)
	defer shutdown()

	f := submit(t, scheduler, call("a"))[0]
	e := w.exec(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := f.Result(ctx); err == nil {
		t.Fatal("expected deadline error")
	}
	// An elapsed deadline does not affect the computation.
	e.Ok(1)
	v, err := f.Result(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got, want := v, 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestStats(t *testing.T) {
	w := newTestWorker("w0", 2)
	scheduler, shutdown := newTestScheduler(w)
	defer shutdown()
	ctx := context.Background()

	f := submit(t, scheduler, call("a"))[0]
	e := w.exec(t)
	stats := scheduler.Stats.GetStats()
	if got, want := stats.TotalWorkers, int64(1); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := stats.Workers["w0"].Pending, 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	task, ok := stats.Tasks["a"]
	if !ok {
		t.Fatal("task a missing from stats")
	}
	if got, want := task.Ident, "test"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := task.State, sched.Running; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	e.OkSize("x", 100)
	if err := f.Wait(ctx, sched.Done); err != nil {
		t.Fatal(err)
	}
	poll(t, "resident accounting", func() bool {
		stats := scheduler.Stats.GetStats()
		return stats.ResidentBytes == 100 && stats.Workers["w0"].Pending == 0
	})
}

// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sched_test

import (
	"context"
	"flag"
	golog "log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/grailbio/base/data"
	"github.com/grailbio/remit"
	"github.com/grailbio/remit/errors"
	"github.com/grailbio/remit/liveset"
	"github.com/grailbio/remit/log"
	"github.com/grailbio/remit/sched"
	"github.com/grailbio/remit/values"
)

var logTasks = flag.Bool("logtasks", false, "log task scheduling output to stderr")

const timeout = 10 * time.Second

// testWorker is a remit.Worker whose execs are driven by the test:
// each Exec surfaces as a testExec on the worker's exec channel, and
// completes only when the test replies to it.
type testWorker struct {
	id    string
	procs int

	execc chan *testExec

	mu       sync.Mutex
	resident map[remit.Key]values.T
	released map[remit.Key]bool
}

func newTestWorker(id string, procs int) *testWorker {
	return &testWorker{
		id:       id,
		procs:    procs,
		execc:    make(chan *testExec),
		resident: make(map[remit.Key]values.T),
		released: make(map[remit.Key]bool),
	}
}

func (w *testWorker) ID() string { return w.id }

func (w *testWorker) Procs() int { return w.procs }

func (w *testWorker) Exec(ctx context.Context, call remit.Call, deps map[remit.Key]remit.Ref) (remit.Ref, error) {
	e := &testExec{Call: call, Deps: deps, replyc: make(chan execReply, 1)}
	select {
	case w.execc <- e:
	case <-ctx.Done():
		return remit.Ref{}, errors.E("exec", string(call.Key), ctx.Err())
	}
	select {
	case r := <-e.replyc:
		if r.err != nil {
			return remit.Ref{}, r.err
		}
		size := r.size
		if size == 0 {
			size = values.Size(r.v)
		}
		w.mu.Lock()
		w.resident[call.Key] = r.v
		w.mu.Unlock()
		return remit.Ref{Key: call.Key, Size: size, Origin: w.id}, nil
	case <-ctx.Done():
		return remit.Ref{}, errors.E("exec", string(call.Key), ctx.Err())
	}
}

func (w *testWorker) Fetch(ctx context.Context, key remit.Key) (values.T, error) {
	w.mu.Lock()
	v, ok := w.resident[key]
	w.mu.Unlock()
	if !ok {
		return nil, errors.E("fetch", string(key), errors.NotExist)
	}
	return v, nil
}

func (w *testWorker) Release(ctx context.Context, keys ...remit.Key) error {
	w.mu.Lock()
	for _, key := range keys {
		delete(w.resident, key)
		w.released[key] = true
	}
	w.mu.Unlock()
	return nil
}

func (w *testWorker) Collect(ctx context.Context, live liveset.Liveset) error {
	w.mu.Lock()
	for key := range w.resident {
		if live != nil && live.Contains(key.Digest()) {
			continue
		}
		delete(w.resident, key)
		w.released[key] = true
	}
	w.mu.Unlock()
	return nil
}

// Resident tells whether the worker currently holds a value for key.
func (w *testWorker) Resident(key remit.Key) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.resident[key]
	return ok
}

// Released tells whether the worker was asked to drop key.
func (w *testWorker) Released(key remit.Key) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.released[key]
}

// exec returns the worker's next exec, failing the test if none
// arrives in time.
func (w *testWorker) exec(t *testing.T) *testExec {
	t.Helper()
	select {
	case e := <-w.execc:
		return e
	case <-time.After(timeout):
		t.Fatalf("worker %s: timed out waiting for exec", w.id)
	}
	panic("not reached")
}

// expectNoExec asserts that no exec is dispatched to the worker
// within a polling window.
func (w *testWorker) expectNoExec(t *testing.T) {
	t.Helper()
	select {
	case e := <-w.execc:
		t.Fatalf("worker %s: unexpected exec %s", w.id, e.Call)
	case <-time.After(50 * time.Millisecond):
	}
}

type execReply struct {
	v    values.T
	size data.Size
	err  error
}

// testExec is a single exec surfaced to the test for completion.
type testExec struct {
	Call   remit.Call
	Deps   map[remit.Key]remit.Ref
	replyc chan execReply
}

// Ok completes the exec with the value v.
func (e *testExec) Ok(v values.T) {
	e.replyc <- execReply{v: v}
}

// OkSize completes the exec with the value v, accounted at the given
// size.
func (e *testExec) OkSize(v values.T, size data.Size) {
	e.replyc <- execReply{v: v, size: size}
}

// Err fails the exec with the error err.
func (e *testExec) Err(err error) {
	e.replyc <- execReply{err: err}
}

type testPool []*testWorker

func (p testPool) Workers() []remit.Worker {
	workers := make([]remit.Worker, len(p))
	for i, w := range p {
		workers[i] = w
	}
	return workers
}

// newTestScheduler starts a scheduler over the given workers. The
// collect threshold is set to 1 so that retired results are released
// promptly, keeping reclamation observable in tests.
func newTestScheduler(workers ...*testWorker) (scheduler *sched.Scheduler, shutdown func()) {
	scheduler = sched.New()
	scheduler.Pool = testPool(workers)
	scheduler.CollectThreshold = 1
	if *logTasks {
		scheduler.Log = log.New(golog.New(os.Stderr, "", golog.LstdFlags), log.DebugLevel)
	}
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

// submit submits calls, failing the test on submission error.
func submit(t *testing.T, scheduler *sched.Scheduler, calls ...remit.Call) []*sched.Future {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	futures, err := scheduler.Submit(ctx, calls...)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return futures
}

// call constructs a keyed test call.
func call(key string, args ...remit.Arg) remit.Call {
	return remit.Call{Key: remit.Key(key), Ident: "test", Args: args}
}

// poll calls cond until it returns true or the polling window
// elapses.
func poll(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sched

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/status"
	"github.com/grailbio/base/sync/ctxsync"
	"github.com/grailbio/remit"
	"github.com/grailbio/remit/errors"
	"github.com/grailbio/remit/log"
	"github.com/grailbio/remit/values"
)

// State enumerates the possible states of a future. States are
// ordered: a future's state advances monotonically, except when a
// transiently failed task is reset for retry.
type State int

const (
	// Pending indicates the task awaits its dependencies or an idle
	// worker.
	Pending State = iota
	// Running indicates the task is executing on a worker.
	Running
	// Done indicates the task completed and its result is resident
	// on a worker.
	Done
	// Errored indicates the task failed, or that a dependency of the
	// task failed.
	Errored
	// Canceled indicates the task was canceled before it produced a
	// result.
	Canceled
	// Released indicates the last reference to the future was
	// dropped and the task's key retired.
	Released
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Errored:
		return "errored"
	case Canceled:
		return "canceled"
	case Released:
		return "released"
	default:
		return "unknown"
	}
}

// Terminal tells whether the state is a terminal state: one from
// which the task will make no further progress.
func (s State) Terminal() bool {
	return s >= Done
}

// A Future is the scheduler's handle on a submitted call. Futures
// are returned by Submit and its derivatives; after submission, all
// coordination between the caller and the scheduler is performed
// through the future.
//
// Futures are reference counted. A future begins with one reference,
// owned by the submitter; Retain adds references when the future is
// shared, and each holder calls Release exactly once. When the last
// reference is dropped, the scheduler retires the task's key and
// reclaims its worker-resident result.
type Future struct {
	// Key names the future's task and its result.
	Key remit.Key
	// Call is the call submitted for this future.
	Call remit.Call
	// Log receives status messages during task scheduling and
	// execution.
	Log *log.Logger

	mu   sync.Mutex
	cond *ctxsync.Cond

	state  State
	err    error
	ref    remit.Ref
	value  values.T
	cached bool

	refs int32

	sched *Scheduler
	stats *TaskStats

	// The fields below are owned by the scheduler loop and must not
	// be accessed outside of it.
	seq        uint64
	index      int
	attempt    int
	worker     *worker
	ndeps      int
	deps       map[remit.Key]remit.Ref
	dependents []*Future
	watchers   []*Stream
	status     *status.Task
}

func newFuture(call remit.Call, s *Scheduler) *Future {
	f := &Future{
		Key:   call.Key,
		Call:  call,
		sched: s,
		refs:  1,
		index: -1,
		deps:  make(map[remit.Key]remit.Ref),
	}
	f.cond = ctxsync.NewCond(&f.mu)
	return f
}

// State returns the future's current state.
func (f *Future) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Err returns the future's terminal error: non-nil if the task
// errored or was canceled, nil otherwise. Err does not block; it
// returns nil if the task has not yet reached a terminal state.
func (f *Future) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.state {
	case Errored, Canceled:
		return f.err
	default:
		return nil
	}
}

// Wait returns after the future's state is at least the provided
// state. Wait returns an error if the context was canceled while
// waiting.
func (f *Future) Wait(ctx context.Context, state State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	for f.state < state && err == nil {
		err = f.cond.Wait(ctx)
	}
	return err
}

// Result waits for the task to reach a terminal state and returns
// its result value. If the task errored or was canceled, the task's
// error is returned; if its result was already released, Result
// returns an errors.NotExist error. The value is fetched from the
// worker holding it and cached on the future, so repeated calls
// fetch at most once.
func (f *Future) Result(ctx context.Context) (values.T, error) {
	if err := f.Wait(ctx, Done); err != nil {
		return nil, errors.E("result", string(f.Key), err)
	}
	f.mu.Lock()
	if f.cached {
		v := f.value
		f.mu.Unlock()
		return v, nil
	}
	state, err, ref := f.state, f.err, f.ref
	f.mu.Unlock()
	switch state {
	case Errored, Canceled:
		return nil, err
	case Released:
		return nil, errors.E("result", string(f.Key), errors.NotExist)
	}
	v, ferr := f.sched.fetch(ctx, ref)
	if ferr != nil {
		return nil, errors.E("result", string(f.Key), ferr)
	}
	f.mu.Lock()
	f.value, f.cached = v, true
	f.mu.Unlock()
	return v, nil
}

// Retain adds a reference to the future. Each call to Retain must be
// balanced by exactly one call to Release.
func (f *Future) Retain() {
	if atomic.AddInt32(&f.refs, 1) <= 1 {
		panic("sched: retain of released future")
	}
}

// Release drops a reference to the future. When the last reference
// is dropped, the scheduler retires the task's key, marks the future
// Released, and reclaims the worker-resident result. Releasing a
// future more often than it was retained panics.
func (f *Future) Release() {
	n := atomic.AddInt32(&f.refs, -1)
	if n < 0 {
		panic("sched: release of released future")
	}
	if n > 0 {
		return
	}
	select {
	case f.sched.releasec <- f:
	case <-f.sched.done:
	}
}

// Cancel requests cancellation of the future's task. Cancellation of
// a pending task removes it from the scheduler's queue; cancellation
// of a running task is advisory: the worker may still complete it,
// in which case the result is discarded. Cancellation of a task in a
// terminal state has no effect.
func (f *Future) Cancel() {
	select {
	case f.sched.cancelc <- f:
	case <-f.sched.done:
	}
}

// dropref drops a scheduler-internal reference. It is called only
// from the scheduler loop; a zero crossing retires the future
// inline rather than through the release channel.
func (f *Future) dropref() bool {
	n := atomic.AddInt32(&f.refs, -1)
	if n < 0 {
		panic("sched: release of released future")
	}
	return n == 0
}

// retain is the loop-side spelling of Retain, used when dependency
// edges take references. Unlike Retain, it may resurrect a future
// whose count reached zero but which has not yet been retired.
func (f *Future) retain() {
	atomic.AddInt32(&f.refs, 1)
}

// refcount returns the current reference count.
func (f *Future) refcount() int32 {
	return atomic.LoadInt32(&f.refs)
}

// mutate mutates the future under its lock using the given mutator
// function, updates its stats, and wakes up any waiters.
func mutate(f *Future, mutator func(*Future)) {
	f.mu.Lock()
	mutator(f)
	if f.stats != nil {
		f.stats.Update(f)
	}
	f.cond.Broadcast()
	f.mu.Unlock()
}

// futureq defines a queue of ready futures, ordered by submission
// sequence so that dispatch is first-in, first-out.
type futureq []*Future

func (q futureq) Len() int { return len(q) }

func (q futureq) Less(i, j int) bool {
	return q[i].seq < q[j].seq
}

func (q futureq) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index, q[j].index = i, j
}

// Push implements heap.Interface.
func (q *futureq) Push(x interface{}) {
	f := x.(*Future)
	f.index = len(*q)
	*q = append(*q, f)
}

// Pop implements heap.Interface.
func (q *futureq) Pop() interface{} {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[0 : n-1]
	x.index = -1
	return x
}

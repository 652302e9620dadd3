// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package sched implements call scheduling for remit.
//
// A unit of work is a remit.Call; calls are submitted in batches and
// the scheduler returns a Future for each. Futures resolve when the
// call's task has executed on a worker drawn from the scheduler's
// pool. A call may reference the keys of other calls as arguments;
// the scheduler defers its dispatch until every referenced task has
// finished, and routes it to the worker already holding the largest
// share of its input bytes.
//
// Results stay resident on the workers that produced them. Futures
// are reference counted: dependent tasks and submitters hold
// references, and when the last reference to a future is dropped the
// scheduler retires its key and releases the worker-resident result.
// Retired results are reclaimed in batches, either by targeted
// release or by periodic sweeps that ship a liveset to each worker.
//
// The scheduler is driven by a single event loop (Do), which owns
// the task table, the ready queue, and all dependency bookkeeping.
// All other goroutines communicate with the loop over channels.
package sched

import (
	"bytes"
	"container/heap"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/grailbio/base/data"
	"github.com/grailbio/base/digest"
	"github.com/grailbio/base/limiter"
	"github.com/grailbio/base/retry"
	"github.com/grailbio/base/status"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/remit"
	"github.com/grailbio/remit/errors"
	"github.com/grailbio/remit/liveset/bloomlive"
	"github.com/grailbio/remit/log"
	"github.com/grailbio/remit/trace"
	"github.com/grailbio/remit/values"
	"github.com/willf/bloom"
	"golang.org/x/time/rate"
)

const (
	// numExecTries is the number of times a task is attempted on
	// transient errors before it is failed.
	numExecTries = 5

	// keyRandLen is the number of hex digits of randomness in minted
	// keys.
	keyRandLen = 12

	// collectErrRate is the false positive rate of the liveset
	// shipped to workers on full sweeps. False positives delay
	// reclamation of a dead result until a later sweep.
	collectErrRate = 0.001
)

// fetchRetrier is the retry policy applied to result fetches.
var fetchRetrier = retry.MaxRetries(retry.Backoff(20*time.Millisecond, 100*time.Millisecond, 1.5), 3)

// A Scheduler turns batches of submitted calls into futures and
// executes them on a pool of workers, dispatching each task once its
// dependencies have resolved. Scheduler can manage large numbers of
// tasks and workers efficiently.
//
// The exported fields may be customized after New and before Do is
// invoked.
type Scheduler struct {
	// Pool supplies the scheduler's workers. The worker set is read
	// once, when Do commences.
	Pool remit.Pool
	// Log receives scheduler status and error messages.
	Log *log.Logger
	// Status, if non-nil, receives per-task status updates.
	Status *status.Group
	// Stats is the scheduler stats.
	Stats *Stats

	// CollectInterval is the period between full sweeps that ship a
	// liveset to each worker. If zero or negative, full sweeps are
	// disabled and only targeted release is performed.
	CollectInterval time.Duration
	// CollectThreshold is the number of retired keys that triggers a
	// reclamation ahead of the collection interval.
	CollectThreshold int
	// FetchLimit caps the number of concurrent result fetches issued
	// on behalf of Result and Gather.
	FetchLimit int

	submitc  chan *submission
	cancelc  chan *Future
	releasec chan *Future
	trackc   chan *trackReq
	done     chan struct{}

	fetchLim *limiter.Limiter
	sweepLim *rate.Limiter

	// The fields below are owned by the scheduler loop (Do) and must
	// not be accessed outside of it.
	tasks    map[remit.Key]*Future
	queue    futureq
	workers  []*worker
	byid     map[string]*worker
	dead     map[string][]remit.Key
	ndead    int
	nrunning int
	nextseq  uint64
	returnc  chan taskReturn
}

type submission struct {
	calls  []remit.Call
	replyc chan submitReply
}

type submitReply struct {
	futures []*Future
	err     error
}

type trackReq struct {
	stream  *Stream
	futures []*Future
}

type taskReturn struct {
	f   *Future
	ref remit.Ref
	err error
}

// New returns a new Scheduler instance. The caller may customize its
// parameters before starting scheduling by invoking Scheduler.Do.
func New() *Scheduler {
	return &Scheduler{
		Stats:            newStats(),
		CollectInterval:  time.Minute,
		CollectThreshold: 100,
		FetchLimit:       10,
		submitc:          make(chan *submission),
		cancelc:          make(chan *Future),
		releasec:         make(chan *Future),
		trackc:           make(chan *trackReq),
		done:             make(chan struct{}),
		fetchLim:         limiter.New(),
		sweepLim:         rate.NewLimiter(rate.Every(10*time.Second), 2),
		tasks:            make(map[remit.Key]*Future),
		byid:             make(map[string]*worker),
		dead:             make(map[string][]remit.Key),
		returnc:          make(chan taskReturn),
	}
}

// ExportStats exports scheduler stats as expvars.
func (s *Scheduler) ExportStats() {
	s.Stats.Publish()
}

// Submit submits a batch of calls for execution, returning a future
// for each call, in call order. The batch is admitted as a unit:
// every key must be free of collisions with the batch and with live
// tasks, every referenced dependency must be in the batch or already
// submitted, and the batch's reference edges must not form a cycle.
// If any check fails, no call in the batch is admitted. Calls
// submitted without a key are assigned a fresh unique key derived
// from their ident.
//
// The caller owns one reference to each returned future and must
// release it, directly or through Future.Release, when the future is
// no longer needed.
func (s *Scheduler) Submit(ctx context.Context, calls ...remit.Call) ([]*Future, error) {
	sub := &submission{
		calls:  append([]remit.Call{}, calls...),
		replyc: make(chan submitReply, 1),
	}
	select {
	case s.submitc <- sub:
	case <-s.done:
		return nil, errors.E("submit", errors.Unavailable, errors.New("scheduler is not running"))
	case <-ctx.Done():
		return nil, errors.E("submit", ctx.Err())
	}
	// The loop replies exactly once for every submission it receives.
	reply := <-sub.replyc
	return reply.futures, reply.err
}

// SubmitGraph submits the graph's calls as a single batch, returning
// futures in the graph's insertion order.
func (s *Scheduler) SubmitGraph(ctx context.Context, graph *remit.Graph) ([]*Future, error) {
	return s.Submit(ctx, graph.Calls()...)
}

// Map submits one call of the named function per item and returns
// the corresponding futures in item order.
func (s *Scheduler) Map(ctx context.Context, ident string, items []values.T) ([]*Future, error) {
	calls := make([]remit.Call, len(items))
	for i, item := range items {
		calls[i] = remit.Call{Ident: ident, Args: []remit.Arg{remit.Lit(item)}}
	}
	return s.Submit(ctx, calls...)
}

// Compute submits the graph and returns futures for the target keys
// only. References on the remaining futures are released immediately,
// so intermediate results are reclaimed as soon as their dependent
// tasks finish with them. If no targets are given, every key in the
// graph is a target.
func (s *Scheduler) Compute(ctx context.Context, graph *remit.Graph, targets ...remit.Key) (map[remit.Key]*Future, error) {
	have := make(map[remit.Key]bool, graph.Len())
	for _, call := range graph.Calls() {
		have[call.Key] = true
	}
	for _, key := range targets {
		if !have[key] {
			return nil, errors.E("compute", string(key), errors.NotExist)
		}
	}
	futures, err := s.SubmitGraph(ctx, graph)
	if err != nil {
		return nil, err
	}
	bykey := make(map[remit.Key]*Future, len(targets))
	if len(targets) == 0 {
		for _, f := range futures {
			bykey[f.Key] = f
		}
		return bykey, nil
	}
	want := make(map[remit.Key]bool, len(targets))
	for _, key := range targets {
		want[key] = true
	}
	for _, f := range futures {
		if want[f.Key] {
			bykey[f.Key] = f
		} else {
			f.Release()
		}
	}
	return bykey, nil
}

// Do commences scheduling. The scheduler runs until the provided
// context is canceled, after which all live futures are failed with
// the context's error and the error is returned.
func (s *Scheduler) Do(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ctx, endTrace := trace.Start(ctx, trace.Run, remit.Digester.Rand(nil), "scheduler")
	defer endTrace()

	if s.Pool != nil {
		for _, w := range s.Pool.Workers() {
			ww := newWorker(w)
			s.workers = append(s.workers, ww)
			s.byid[ww.id] = ww
			s.Stats.AddWorker(ww)
		}
	}
	if n := s.FetchLimit; n > 0 {
		s.fetchLim.Release(n)
	} else {
		s.fetchLim.Release(1)
	}
	if s.Status != nil {
		s.Status.Print(fmt.Sprintf("%d workers", len(s.workers)))
	}
	var collectc <-chan time.Time
	if s.CollectInterval > 0 {
		tick := time.NewTicker(s.CollectInterval)
		defer tick.Stop()
		collectc = tick.C
	}
	s.Log.Debugf("scheduler started: %d workers, collect every %s", len(s.workers), s.CollectInterval)

	for {
		select {
		case <-ctx.Done():
			// After being canceled, we fail every live future, wake
			// their waiters and streams, and then drain outstanding
			// execs, all of which are canceled by the same context
			// cancellation.
			close(s.done)
			err := ctx.Err()
			for _, f := range s.tasks {
				if f.state.Terminal() {
					continue
				}
				mutate(f, func(f *Future) {
					f.state = Errored
					f.err = err
				})
				for _, t := range f.watchers {
					t.deliver(f)
				}
				f.watchers = nil
				if f.status != nil {
					f.status.Done()
				}
			}
			for ; s.nrunning > 0; s.nrunning-- {
				<-s.returnc
			}
			return err
		case sub := <-s.submitc:
			futures, err := s.accept(sub.calls)
			sub.replyc <- submitReply{futures, err}
		case ret := <-s.returnc:
			s.ret(ret)
		case f := <-s.cancelc:
			s.cancel(f)
		case f := <-s.releasec:
			// The sender observed the reference count reach zero,
			// but the future may have been re-referenced by a
			// subsequent submission in the meantime. Only a count
			// that is still zero retires it.
			if f.refcount() == 0 {
				s.forget(f)
			}
		case req := <-s.trackc:
			for _, f := range req.futures {
				if f.state.Terminal() {
					req.stream.deliver(f)
				} else {
					f.watchers = append(f.watchers, req.stream)
				}
			}
		case <-collectc:
			s.sweep(ctx, true)
		}

		s.dispatch(ctx)
		if s.CollectThreshold > 0 && s.ndead >= s.CollectThreshold {
			s.sweep(ctx, false)
		}
		s.Stats.SetQueueDepth(len(s.queue))
	}
}

// accept validates and admits a batch of calls. Admission is atomic:
// if any call fails validation, the whole batch is rejected and no
// state is retained.
func (s *Scheduler) accept(calls []remit.Call) ([]*Future, error) {
	const op = "submit"
	batch := make(map[remit.Key]int, len(calls))
	for i := range calls {
		if calls[i].Ident == "" {
			return nil, errors.E(op, errors.Invalid, errors.New("call has no ident"))
		}
		if calls[i].Key == "" {
			calls[i].Key = s.mint(calls[i].Ident, batch)
		}
		key := calls[i].Key
		if _, ok := batch[key]; ok {
			return nil, errors.E(op, string(key), errors.Collision)
		}
		if _, ok := s.tasks[key]; ok {
			return nil, errors.E(op, string(key), errors.Collision)
		}
		batch[key] = i
	}
	for _, call := range calls {
		for _, dep := range call.Deps() {
			if _, ok := batch[dep]; ok {
				continue
			}
			if _, ok := s.tasks[dep]; ok {
				continue
			}
			return nil, errors.E(op, string(call.Key), errors.NotExist,
				errors.Errorf("dependency %s is not submitted", dep))
		}
	}
	if err := acyclic(calls, batch); err != nil {
		return nil, err
	}

	futures := make([]*Future, len(calls))
	for i, call := range calls {
		f := newFuture(call, s)
		f.seq = s.nextseq
		s.nextseq++
		f.Log = s.Log.Tee(nil, string(call.Key)+": ")
		if s.Status != nil {
			f.status = s.Status.Start(call.Ident)
		}
		s.tasks[call.Key] = f
		futures[i] = f
	}
	s.Stats.AddTasks(futures)

	// Wire dependency edges. Each future retains a reference on every
	// dependency for as long as it is live, so that a dependency's
	// result cannot be reclaimed before its dependents have read it.
	for _, f := range futures {
		for _, key := range f.Call.Deps() {
			d := s.tasks[key]
			d.retain()
			d.dependents = append(d.dependents, f)
			if d.state == Done {
				f.deps[key] = d.ref
			} else if !d.state.Terminal() {
				f.ndeps++
			}
		}
	}
	// Settle futures whose dependencies already failed, and queue
	// those that are immediately runnable.
	for _, f := range futures {
		for _, key := range f.Call.Deps() {
			d := s.tasks[key]
			switch d.state {
			case Errored, Canceled:
				s.fail(f, errors.E("dep", string(key), d.err))
			}
			if f.state.Terminal() {
				break
			}
		}
		if f.state == Pending && f.ndeps == 0 {
			s.enqueue(f)
		}
		f.Log.Debugf("submitted: %s", f.Call)
	}
	return futures, nil
}

// acyclic rejects batches whose reference edges contain a cycle.
// Only edges internal to the batch can participate in one: edges to
// previously admitted tasks point into an already acyclic graph.
func acyclic(calls []remit.Call, batch map[remit.Key]int) error {
	var (
		indeg = make(map[remit.Key]int, len(calls))
		out   = make(map[remit.Key][]remit.Key, len(calls))
	)
	for _, call := range calls {
		for _, dep := range call.Deps() {
			if _, ok := batch[dep]; !ok {
				continue
			}
			indeg[call.Key]++
			out[dep] = append(out[dep], call.Key)
		}
	}
	var ready []remit.Key
	for key := range batch {
		if indeg[key] == 0 {
			ready = append(ready, key)
		}
	}
	seen := 0
	for len(ready) > 0 {
		key := ready[len(ready)-1]
		ready = ready[:len(ready)-1]
		seen++
		for _, next := range out[key] {
			if indeg[next]--; indeg[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	if seen == len(calls) {
		return nil
	}
	var cyclic []string
	for key, n := range indeg {
		if n > 0 {
			cyclic = append(cyclic, string(key))
		}
	}
	sort.Strings(cyclic)
	return errors.E("submit", errors.Cyclic,
		errors.Errorf("cycle through %s", strings.Join(cyclic, ", ")))
}

// mint derives a fresh unique key for a call submitted without one.
func (s *Scheduler) mint(ident string, batch map[remit.Key]int) remit.Key {
	for {
		key := remit.Key(ident + "-" + remit.Digester.Rand(nil).Hex()[:keyRandLen])
		if _, ok := batch[key]; ok {
			continue
		}
		if _, ok := s.tasks[key]; ok {
			continue
		}
		return key
	}
}

// enqueue adds a runnable future to the ready queue. Dispatch order
// is submission order.
func (s *Scheduler) enqueue(f *Future) {
	heap.Push(&s.queue, f)
	if f.status != nil {
		f.status.Print("ready")
	}
}

// dispatch assigns ready tasks to idle workers in queue order and
// starts their execs. Dispatch stops when the queue is empty or all
// workers are busy.
func (s *Scheduler) dispatch(ctx context.Context) {
	for len(s.queue) > 0 {
		w := s.pick(s.queue[0])
		if w == nil {
			break
		}
		f := heap.Pop(&s.queue).(*Future)
		w.Assign(f)
		s.Stats.AssignTask(f, w)
		deps := make(map[remit.Key]remit.Ref, len(f.deps))
		for key, ref := range f.deps {
			deps[key] = ref
		}
		mutate(f, func(f *Future) {
			f.state = Running
		})
		if f.status != nil {
			f.status.Print("running on " + w.id)
		}
		f.Log.Debugf("assigned to %s", w)
		s.nrunning++
		go s.run(ctx, f, w.Worker, deps)
	}
}

// pick chooses an idle worker for the future, preferring the worker
// holding the largest share of the future's input bytes. Ties go to
// pool order.
func (s *Scheduler) pick(f *Future) *worker {
	var (
		best     *worker
		bestSize data.Size
	)
	for _, w := range s.workers {
		if !w.Idle() {
			continue
		}
		var size data.Size
		for key := range f.deps {
			size += w.resident[key]
		}
		if best == nil || size > bestSize {
			best, bestSize = w, size
		}
	}
	return best
}

// run executes a single attempt of the future's call on the given
// worker and reports the outcome to the scheduler loop.
func (s *Scheduler) run(ctx context.Context, f *Future, w remit.Worker, deps map[remit.Key]remit.Ref) {
	ctx, endTrace := trace.Start(ctx, trace.Exec, f.Call.Digest(), fmt.Sprintf("%s %s", f.Call.Ident, f.Key))
	ref, err := w.Exec(ctx, f.Call, deps)
	endTrace()
	s.returnc <- taskReturn{f, ref, err}
}

// ret handles an exec outcome. Transient errors are retried up to
// numExecTries attempts; results for futures that went terminal
// while executing are discarded.
func (s *Scheduler) ret(r taskReturn) {
	f := r.f
	s.nrunning--
	w := f.worker
	w.Unassign(f)
	s.Stats.ReturnTask(f, w)
	switch {
	case f.state != Running:
		// The future was canceled or released while its exec was in
		// flight. Any result it produced is unobservable.
		if r.err == nil {
			s.Log.Warnf("%s %s: discarding result: task is %s", f.Call.Ident, f.Key, f.state)
			s.retire(r.ref.Origin, r.ref.Key)
		}
	case r.err == nil:
		s.finish(f, r.ref)
	case errors.Transient(r.err) && f.attempt < numExecTries-1:
		// The future remains Running across the requeue: state
		// transitions are monotonic, so the retry is invisible to
		// State observers.
		f.attempt++
		f.Log.Debugf("retrying after transient error (try %d): %v", f.attempt, r.err)
		s.enqueue(f)
	default:
		s.fail(f, r.err)
	}
}

// finish transitions a future to Done, accounts its resident result,
// and settles its dependents.
func (s *Scheduler) finish(f *Future, ref remit.Ref) {
	mutate(f, func(f *Future) {
		f.state = Done
		f.ref = ref
	})
	if w := s.byid[ref.Origin]; w != nil {
		w.Add(ref)
		s.Stats.AddResident(w.id, ref.Size)
	}
	f.Log.Debugf("done: %s", ref)
	s.settle(f)
}

// fail transitions a future to Errored and settles its dependents,
// propagating the error along dependency edges.
func (s *Scheduler) fail(f *Future, err error) {
	if f.state.Terminal() {
		return
	}
	if f.index >= 0 {
		heap.Remove(&s.queue, f.index)
	}
	mutate(f, func(f *Future) {
		f.state = Errored
		f.err = err
	})
	f.Log.Errorf("failed: %v", err)
	s.settle(f)
}

// cancel transitions a live future to Canceled. A queued future is
// removed from the ready queue; a running future's exec proceeds but
// its result is discarded when it returns.
func (s *Scheduler) cancel(f *Future) {
	if f.state.Terminal() {
		return
	}
	if f.index >= 0 {
		heap.Remove(&s.queue, f.index)
	}
	mutate(f, func(f *Future) {
		f.state = Canceled
		f.err = errors.E("cancel", string(f.Key), errors.Canceled)
	})
	s.settle(f)
}

// settle performs the one-time terminal processing of a future:
// streams are notified, dependents are unblocked or failed, and the
// references the future held on its dependencies are dropped. settle
// must be called exactly once per future, at its first transition to
// a terminal state.
func (s *Scheduler) settle(f *Future) {
	for _, t := range f.watchers {
		t.deliver(f)
	}
	f.watchers = nil
	for _, g := range f.dependents {
		if g.state.Terminal() {
			continue
		}
		if f.state == Done {
			g.deps[f.Key] = f.ref
			if g.ndeps--; g.ndeps == 0 && g.state == Pending {
				s.enqueue(g)
			}
		} else {
			s.fail(g, errors.E("dep", string(f.Key), f.err))
		}
	}
	f.dependents = nil
	for _, key := range f.Call.Deps() {
		d := s.tasks[key]
		if d == nil {
			continue
		}
		if d.dropref() {
			s.forget(d)
		}
	}
	if f.status != nil {
		f.status.Print(f.state.String())
		f.status.Done()
	}
}

// forget retires a future whose last reference was dropped: it
// leaves the task table, its key is freed for reuse, and its
// worker-resident result, if any, is queued for release.
func (s *Scheduler) forget(f *Future) {
	if f.state == Released {
		return
	}
	switch f.state {
	case Pending:
		// Unreferenced before completion: nothing can observe a
		// result, so the task is abandoned.
		if f.index >= 0 {
			heap.Remove(&s.queue, f.index)
		}
		mutate(f, func(f *Future) {
			f.state = Released
		})
		s.settle(f)
	case Running:
		// A transient retry may have returned the future to the
		// ready queue while it remains Running.
		if f.index >= 0 {
			heap.Remove(&s.queue, f.index)
		}
		mutate(f, func(f *Future) {
			f.state = Released
		})
		s.settle(f)
	case Done:
		if w := s.byid[f.ref.Origin]; w != nil {
			size := w.Drop(f.Key)
			s.Stats.DropResident(w.id, size)
		}
		s.retire(f.ref.Origin, f.Key)
		mutate(f, func(f *Future) {
			f.state = Released
		})
	default:
		mutate(f, func(f *Future) {
			f.state = Released
		})
	}
	delete(s.tasks, f.Key)
	s.Stats.RemoveTask(f)
	f.Log.Debugf("released")
}

// retire queues a worker-resident value for targeted release on its
// origin worker.
func (s *Scheduler) retire(origin string, keys ...remit.Key) {
	if origin == "" {
		return
	}
	s.dead[origin] = append(s.dead[origin], keys...)
	s.ndead += len(keys)
}

// sweep reclaims retired results. Targeted releases are always
// issued; a full sweep additionally ships a liveset of every key in
// the task table to each worker, reclaiming anything the targeted
// path missed. Full sweeps are rate limited. The releases themselves
// proceed off the scheduler loop.
func (s *Scheduler) sweep(ctx context.Context, full bool) {
	dead := s.dead
	ndead := s.ndead
	s.dead = make(map[string][]remit.Key)
	s.ndead = 0
	var filter *bloom.BloomFilter
	if full && s.sweepLim.Allow() {
		if n := len(s.tasks); n > 0 {
			filter = bloom.NewWithEstimates(uint(n), collectErrRate)
		} else {
			filter = bloom.New(64, 1)
		}
		var buf bytes.Buffer
		for key := range s.tasks {
			buf.Reset()
			if _, err := digest.WriteDigest(&buf, key.Digest()); err != nil {
				panic("failed to write digest " + key.Digest().String() + ": " + err.Error())
			}
			filter.Add(buf.Bytes())
		}
	}
	if ndead == 0 && filter == nil {
		return
	}
	workers := append([]*worker{}, s.workers...)
	go func() {
		ctx, endTrace := trace.Start(ctx, trace.Collect, remit.Digester.Rand(nil), "collect")
		defer endTrace()
		trace.Note(ctx, "retired", ndead)
		_ = traverse.Each(len(workers), func(i int) error {
			w := workers[i]
			if keys := dead[w.id]; len(keys) > 0 {
				if err := w.Release(ctx, keys...); err != nil {
					s.Log.Errorf("release %s: %v", w.id, err)
				}
			}
			if filter != nil {
				if err := w.Collect(ctx, bloomlive.New(filter)); err != nil {
					s.Log.Errorf("collect %s: %v", w.id, err)
				}
			}
			return nil
		})
	}()
}

// fetch retrieves a result value from the worker holding it. Fetch
// concurrency is capped by FetchLimit, and transient errors are
// retried.
func (s *Scheduler) fetch(ctx context.Context, ref remit.Ref) (values.T, error) {
	w := s.byid[ref.Origin]
	if w == nil {
		return nil, errors.E("fetch", string(ref.Key), errors.NotExist,
			errors.Errorf("unknown worker %s", ref.Origin))
	}
	if err := s.fetchLim.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.fetchLim.Release(1)
	ctx, endTrace := trace.Start(ctx, trace.Fetch, ref.Key.Digest(), "fetch "+string(ref.Key))
	defer endTrace()
	for retries := 0; ; retries++ {
		v, err := w.Fetch(ctx, ref.Key)
		if err == nil || !errors.Transient(err) {
			return v, err
		}
		s.Log.Debugf("fetch %s: %v (retry %d)", ref.Key, err, retries)
		if err := retry.Wait(ctx, fetchRetrier, retries); err != nil {
			return nil, err
		}
	}
}

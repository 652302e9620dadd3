// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sched

import (
	"context"
	"io"
	"sync"

	"github.com/grailbio/base/sync/ctxsync"
	"github.com/grailbio/remit"
)

// A Stream yields a set of futures in the order they complete.
// Futures may be added while iteration is in progress; each tracked
// future is yielded exactly once, when it reaches a terminal state.
// Streams are safe for concurrent use, but each future is yielded to
// only one Next call.
type Stream struct {
	sched *Scheduler

	mu       sync.Mutex
	cond     *ctxsync.Cond
	queue    []*Future
	seen     map[remit.Key]bool
	npending int
}

// Stream returns a stream that yields the provided futures in
// completion order. More futures may be added with Add.
func (s *Scheduler) Stream(futures ...*Future) *Stream {
	t := &Stream{
		sched: s,
		seen:  make(map[remit.Key]bool),
	}
	t.cond = ctxsync.NewCond(&t.mu)
	t.Add(futures...)
	return t
}

// Add adds futures to the stream. Futures the stream already tracks
// are ignored, so a future cannot be yielded twice. Futures already
// in a terminal state are yielded in registration order. If the
// scheduler has stopped, Add yields settled futures directly and
// drops the rest.
func (t *Stream) Add(futures ...*Future) {
	var fresh []*Future
	t.mu.Lock()
	for _, f := range futures {
		if t.seen[f.Key] {
			continue
		}
		t.seen[f.Key] = true
		t.npending++
		fresh = append(fresh, f)
	}
	t.mu.Unlock()
	if len(fresh) == 0 {
		return
	}
	select {
	case t.sched.trackc <- &trackReq{stream: t, futures: fresh}:
	case <-t.sched.done:
		for _, f := range fresh {
			if f.State().Terminal() {
				t.deliver(f)
			} else {
				t.drop()
			}
		}
	}
}

// Next returns the next future to complete. When every tracked
// future has been yielded, Next returns io.EOF. If the context is
// canceled while waiting, its error is returned.
func (t *Stream) Next(ctx context.Context) (*Future, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for len(t.queue) == 0 && t.npending > 0 {
		if err := t.cond.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if len(t.queue) == 0 {
		return nil, io.EOF
	}
	f := t.queue[0]
	t.queue = t.queue[1:]
	return f, nil
}

// deliver appends a settled future to the stream's yield queue and
// wakes waiting Next calls.
func (t *Stream) deliver(f *Future) {
	t.mu.Lock()
	t.npending--
	t.queue = append(t.queue, f)
	t.cond.Broadcast()
	t.mu.Unlock()
}

// drop removes a tracked future that will never be delivered.
func (t *Stream) drop() {
	t.mu.Lock()
	t.npending--
	t.cond.Broadcast()
	t.mu.Unlock()
}

// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sched

import (
	"fmt"

	"github.com/grailbio/base/data"
	"github.com/grailbio/remit"
)

// worker wraps a remit.Worker with the scheduler's bookkeeping: its
// outstanding assignments and the accounted size of results resident
// on it. worker's fields are owned by the scheduler loop.
type worker struct {
	remit.Worker

	id    string
	procs int

	assigned map[*Future]bool
	resident map[remit.Key]data.Size
}

func newWorker(w remit.Worker) *worker {
	return &worker{
		Worker:   w,
		id:       w.ID(),
		procs:    w.Procs(),
		assigned: make(map[*Future]bool),
		resident: make(map[remit.Key]data.Size),
	}
}

// Idle tells whether the worker has capacity for another exec.
func (w *worker) Idle() bool {
	return len(w.assigned) < w.procs
}

// Assign associates the future with this worker.
func (w *worker) Assign(f *Future) {
	w.assigned[f] = true
	f.worker = w
}

// Unassign disassociates the future from this worker.
func (w *worker) Unassign(f *Future) {
	delete(w.assigned, f)
	f.worker = nil
}

// Add accounts a resident result on the worker.
func (w *worker) Add(ref remit.Ref) {
	w.resident[ref.Key] = ref.Size
}

// Drop unaccounts a resident result, returning its size.
func (w *worker) Drop(key remit.Key) data.Size {
	size := w.resident[key]
	delete(w.resident, key)
	return size
}

// ResidentSize returns the accounted size of results resident on the
// worker.
func (w *worker) ResidentSize() data.Size {
	var size data.Size
	for _, s := range w.resident {
		size += s
	}
	return size
}

func (w *worker) String() string {
	return fmt.Sprintf("worker %s (%d/%d)", w.id, len(w.assigned), w.procs)
}

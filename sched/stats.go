// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sched

import (
	"expvar"
	"fmt"
	"sync"

	"github.com/grailbio/base/data"
)

// expVarScheduler is the prefix of the scheduler stats exported name.
const expVarScheduler = "scheduler"

// OverallStats is the overall scheduler stats.
type OverallStats struct {
	// TotalWorkers is the number of workers in the pool.
	TotalWorkers int64
	// TotalTasks is the total number of tasks (pending, running or completed).
	TotalTasks int64
	// QueueDepth is the number of ready tasks awaiting dispatch.
	QueueDepth int64
	// ResidentBytes is the accounted size of worker-resident results.
	ResidentBytes int64
	// ResidentObjects is the number of worker-resident results.
	ResidentObjects int64
}

// WorkerStatsData is the per worker stats snapshot.
type WorkerStatsData struct {
	// Procs is the worker's concurrent execution capacity.
	Procs int
	// Pending is the number of execs outstanding on the worker.
	Pending int
	// TaskKeys is the set of keys currently executing on the worker.
	TaskKeys map[string]int
	// ResidentBytes is the accounted size of results resident on the
	// worker.
	ResidentBytes int64
}

// WorkerStats is the per worker stats used to update stats.
type WorkerStats struct {
	sync.Mutex `json:"-"`
	WorkerStatsData
}

// AssignTask makes a worker<->task association.
func (w *WorkerStats) AssignTask(f *Future) {
	w.Mutex.Lock()
	defer w.Mutex.Unlock()
	w.Pending++
	w.TaskKeys[string(f.Key)] = 1
}

// ReturnTask removes the worker<->task association.
func (w *WorkerStats) ReturnTask(f *Future) {
	w.Mutex.Lock()
	defer w.Mutex.Unlock()
	w.Pending--
	delete(w.TaskKeys, string(f.Key))
}

// AddResident accounts size bytes of resident results on the worker.
func (w *WorkerStats) AddResident(size data.Size) {
	w.Mutex.Lock()
	defer w.Mutex.Unlock()
	w.ResidentBytes += int64(size)
}

// DropResident unaccounts size bytes of resident results on the worker.
func (w *WorkerStats) DropResident(size data.Size) {
	w.Mutex.Lock()
	defer w.Mutex.Unlock()
	w.ResidentBytes -= int64(size)
}

// Copy returns an immutable snapshot of WorkerStats.
func (w *WorkerStats) Copy() WorkerStatsData {
	var copy WorkerStatsData
	w.Mutex.Lock()
	defer w.Mutex.Unlock()
	copy.Procs = w.Procs
	copy.Pending = w.Pending
	copy.ResidentBytes = w.ResidentBytes
	copy.TaskKeys = make(map[string]int, len(w.TaskKeys))
	for k, v := range w.TaskKeys {
		copy.TaskKeys[k] = v
	}
	return copy
}

// TaskStatsData is a snapshot of the task stats.
type TaskStatsData struct {
	// Ident is the function identifier of this task's call.
	Ident string
	// State is the current state of the task.
	State State
	// Error, if not nil, is the task error.
	Error error
	// Worker is the ID of the worker the task last ran on.
	Worker string
}

// TaskStats is the per task info and stats used to update stats.
type TaskStats struct {
	// Mutex protects TaskStatsData.
	sync.Mutex `json:"-"`
	// TaskStatsData are the task stats.
	TaskStatsData
}

// Update updates task state and error, if any. The caller must hold
// the future's lock.
func (t *TaskStats) Update(f *Future) {
	t.Mutex.Lock()
	defer t.Mutex.Unlock()
	t.State = f.state
	if f.err != nil {
		t.Error = f.err
	}
}

// SetWorker records the worker the task was assigned to.
func (t *TaskStats) SetWorker(id string) {
	t.Mutex.Lock()
	defer t.Mutex.Unlock()
	t.Worker = id
}

// Copy returns an immutable snapshot of TaskStats.
func (t *TaskStats) Copy() TaskStatsData {
	t.Mutex.Lock()
	defer t.Mutex.Unlock()
	return t.TaskStatsData
}

// newStats returns a new Stats object.
func newStats() *Stats {
	return &Stats{
		Workers: make(map[string]*WorkerStats),
		Tasks:   make(map[string]*TaskStats),
	}
}

// StatsData is an immutable snapshot of Stats, usually obtained by
// calling Stats.GetStats().
type StatsData struct {
	// OverallStats has the overall scheduler stats.
	OverallStats
	// Workers has all the worker stats.
	Workers map[string]WorkerStatsData
	// Tasks has the state and stats of every live task. Released
	// tasks are removed.
	Tasks map[string]TaskStatsData
}

// Stats has all the scheduler stats, including worker/task states.
// It is thread safe and can be used to update stats.
type Stats struct {
	// Mutex protects all the data members.
	sync.Mutex `json:"-"`
	// OverallStats has the overall scheduler stats.
	OverallStats
	// Workers has all the worker stats.
	Workers map[string]*WorkerStats
	// Tasks has the state and stats of every live task. Released
	// tasks are removed.
	Tasks map[string]*TaskStats
}

var (
	schedulerStatExportedNames []string
	mu                         sync.Mutex
	exportNameCounter          int
)

// GetSchedulerStatExportedNames returns the names under which
// scheduler stats have been exported.
func GetSchedulerStatExportedNames() []string {
	mu.Lock()
	names := make([]string, 0, len(schedulerStatExportedNames))
	for _, name := range schedulerStatExportedNames {
		names = append(names, name)
	}
	mu.Unlock()
	return names
}

// Publish publishes the stats as a go expvar.
func (s *Stats) Publish() {
	mu.Lock()
	val := exportNameCounter
	exportNameCounter++
	name := expVarScheduler + fmt.Sprintf("-%d", val)
	schedulerStatExportedNames = append(schedulerStatExportedNames, name)
	mu.Unlock()
	expvar.Publish(name, expvar.Func(func() interface{} { return s.GetStats() }))
}

// AddTasks adds the futures to the stats.
func (s *Stats) AddTasks(futures []*Future) {
	s.Mutex.Lock()
	defer s.Mutex.Unlock()
	s.TotalTasks += int64(len(futures))
	for _, f := range futures {
		s.Tasks[string(f.Key)] = &TaskStats{TaskStatsData: TaskStatsData{Ident: f.Call.Ident}}
		f.stats = s.Tasks[string(f.Key)]
	}
}

// ReturnTask removes a task from the stats before returning it.
func (s *Stats) ReturnTask(f *Future, w *worker) {
	s.Mutex.Lock()
	defer s.Mutex.Unlock()
	// The task may have been removed already if it was released while
	// its exec was in flight.
	if t, ok := s.Tasks[string(f.Key)]; ok {
		t.Update(f)
	}
	s.Workers[w.id].ReturnTask(f)
}

// AssignTask assigns a task to a worker.
func (s *Stats) AssignTask(f *Future, w *worker) {
	s.Mutex.Lock()
	defer s.Mutex.Unlock()
	t := s.Tasks[string(f.Key)]
	t.SetWorker(w.id)
	s.Workers[w.id].AssignTask(f)
}

// RemoveTask removes a retired task from the stats. Snapshots taken
// afterwards no longer contain the task's key.
func (s *Stats) RemoveTask(f *Future) {
	s.Mutex.Lock()
	defer s.Mutex.Unlock()
	delete(s.Tasks, string(f.Key))
}

// AddWorker adds a worker to the stats.
func (s *Stats) AddWorker(w *worker) {
	s.Mutex.Lock()
	defer s.Mutex.Unlock()
	s.TotalWorkers++
	s.Workers[w.id] = &WorkerStats{WorkerStatsData: WorkerStatsData{
		Procs:    w.procs,
		TaskKeys: make(map[string]int),
	}}
}

// SetQueueDepth records the current ready-queue depth.
func (s *Stats) SetQueueDepth(n int) {
	s.Mutex.Lock()
	defer s.Mutex.Unlock()
	s.QueueDepth = int64(n)
}

// AddResident accounts a result of the given size resident on the
// named worker.
func (s *Stats) AddResident(id string, size data.Size) {
	s.Mutex.Lock()
	defer s.Mutex.Unlock()
	s.ResidentBytes += int64(size)
	s.ResidentObjects++
	if w, ok := s.Workers[id]; ok {
		w.AddResident(size)
	}
}

// DropResident unaccounts a result of the given size from the named
// worker.
func (s *Stats) DropResident(id string, size data.Size) {
	s.Mutex.Lock()
	defer s.Mutex.Unlock()
	s.ResidentBytes -= int64(size)
	s.ResidentObjects--
	if w, ok := s.Workers[id]; ok {
		w.DropResident(size)
	}
}

// GetStats returns a snapshot of the scheduler stats.
func (s *Stats) GetStats() StatsData {
	var copy StatsData
	s.Mutex.Lock()
	copy.OverallStats = s.OverallStats
	copy.Workers = make(map[string]WorkerStatsData)
	for k, v := range s.Workers {
		copy.Workers[k] = v.Copy()
	}
	copy.Tasks = make(map[string]TaskStatsData)
	for k, v := range s.Tasks {
		copy.Tasks[k] = v.Copy()
	}
	s.Mutex.Unlock()
	return copy
}

// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package remit implements the core data structures and protocols for
// remit, a system for distributed function execution.
//
// A remit program submits calls to a scheduler. Each call names a
// registered function together with a set of arguments; arguments are
// either literal values or references to the results of other calls,
// so that a set of calls forms a dependency graph. The scheduler
// dispatches ready calls to a pool of workers, placing each call where
// its dependency data already resides, and hands the caller a future
// for each submitted call.
//
// Results stay resident on the workers that computed them and are
// retrieved only on demand; futures are reference counted so that the
// cluster can reclaim a result's memory once the last holder has
// released it. See package sched for the scheduler and futures, and
// package pool for worker implementations.
package remit

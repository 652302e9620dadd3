// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sched

import (
	"context"
	"sort"

	"github.com/grailbio/base/traverse"
	"github.com/grailbio/remit"
	"github.com/grailbio/remit/errors"
	"github.com/grailbio/remit/values"
)

// Wait blocks until every future reaches a terminal state or the
// context is canceled, and partitions the futures into those that
// settled and those that did not. Input order is preserved within
// each partition.
func Wait(ctx context.Context, futures ...*Future) (done, notDone []*Future) {
	for _, f := range futures {
		if err := f.Wait(ctx, Done); err != nil {
			notDone = append(notDone, f)
		} else {
			done = append(done, f)
		}
	}
	return done, notDone
}

// Gather waits for every future to settle and returns their values
// in input order. If any future failed, Gather returns the error of
// the first failed future in input order; it does so only after the
// whole set has settled, so that the caller observes a quiesced
// batch. Values are fetched in parallel, subject to the scheduler's
// fetch limit.
func Gather(ctx context.Context, futures []*Future) ([]values.T, error) {
	for _, f := range futures {
		if err := f.Wait(ctx, Done); err != nil {
			return nil, errors.E("gather", err)
		}
	}
	for _, f := range futures {
		if err := f.Err(); err != nil {
			return nil, err
		}
	}
	vs := make([]values.T, len(futures))
	err := traverse.Each(len(futures), func(i int) error {
		var err error
		vs[i], err = futures[i].Result(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return vs, nil
}

// GatherMap gathers a map of futures, returning their values under
// the same keys. On error, the reported error is that of the first
// failed future in key order.
func GatherMap(ctx context.Context, futures map[remit.Key]*Future) (map[remit.Key]values.T, error) {
	keys := make([]remit.Key, 0, len(futures))
	for key := range futures {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	ordered := make([]*Future, len(keys))
	for i, key := range keys {
		ordered[i] = futures[key]
	}
	vs, err := Gather(ctx, ordered)
	if err != nil {
		return nil, err
	}
	m := make(map[remit.Key]values.T, len(keys))
	for i, key := range keys {
		m[key] = vs[i]
	}
	return m, nil
}

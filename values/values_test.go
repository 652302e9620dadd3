// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package values

import (
	"strings"
	"testing"

	"github.com/grailbio/base/data"
)

func TestEqual(t *testing.T) {
	for _, c := range []struct {
		v, w T
		want bool
	}{
		{1, 1, true},
		{1, 2, false},
		{"a", "a", true},
		{List{1, "x"}, List{1, "x"}, true},
		{List{1, "x"}, List{1, "y"}, false},
		{map[string]T{"k": 1}, map[string]T{"k": 1}, true},
		{nil, nil, true},
		{nil, 0, false},
	} {
		if got := Equal(c.v, c.w); got != c.want {
			t.Errorf("Equal(%v, %v): got %v, want %v", c.v, c.w, got, c.want)
		}
	}
}

func TestSize(t *testing.T) {
	for _, c := range []struct {
		v    T
		want data.Size
	}{
		{nil, 0},
		{true, 1},
		{123, 8},
		{1.5, 8},
		{"hello", 5},
		{[]byte("abc"), 3},
		{List{"ab", "cd"}, 8*2 + 4},
		{map[string]T{"key": "value"}, 3 + 5},
	} {
		if got := Size(c.v); got != c.want {
			t.Errorf("Size(%v): got %v, want %v", c.v, got, c.want)
		}
	}
}

func TestSprint(t *testing.T) {
	for _, c := range []struct {
		v    T
		want string
	}{
		{nil, "nil"},
		{42, "42"},
		{"hi", `"hi"`},
		{List{1, "two"}, `[1, "two"]`},
		{map[string]T{"b": 2, "a": 1}, "{a: 1, b: 2}"},
	} {
		if got := Sprint(c.v); got != c.want {
			t.Errorf("Sprint(%v): got %q, want %q", c.v, got, c.want)
		}
	}
	long := Sprint(strings.Repeat("x", 1000))
	if len(long) > 64 {
		t.Errorf("rendering not elided: %d bytes", len(long))
	}
	if !strings.HasSuffix(long, "...") {
		t.Errorf("got %q, want elision marker", long)
	}
}

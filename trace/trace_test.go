// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package trace_test

import (
	"bytes"
	"context"
	"crypto"
	_ "crypto/sha256"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/grailbio/base/digest"
	"github.com/grailbio/remit/trace"
)

var digester = digest.Digester(crypto.SHA256)

func id(i int) digest.Digest {
	return digester.FromString(strconv.Itoa(i))
}

func TestTrace(t *testing.T) {
	now := time.Now()
	tracer := new(trace.Local)
	ctx := trace.WithTracer(context.Background(), tracer)
	ctx1, done1 := trace.Start(ctx, trace.Run, id(1), "run1")
	trace.Note(ctx1, "hello", "world")
	ctx2, done2 := trace.Start(ctx1, trace.Exec, id(2), "task2")
	trace.Note(ctx2, "exec", "blah")
	trace.Note(ctx1, "exec", "1")
	done2()
	done1()

	expect := []trace.Event{
		{Kind: trace.StartEvent, Span: trace.Span{Kind: trace.Run, Id: id(1), Name: "run1"}},
		{Kind: trace.NoteEvent, Span: trace.Span{Kind: trace.Run, Id: id(1), Name: "run1"}, Key: "hello", Value: "world"},
		{Kind: trace.StartEvent, Span: trace.Span{Kind: trace.Exec, Parent: id(1), Id: id(2), Name: "task2"}},
		{Kind: trace.NoteEvent, Span: trace.Span{Kind: trace.Exec, Parent: id(1), Id: id(2), Name: "task2"}, Key: "exec", Value: "blah"},
		{Kind: trace.NoteEvent, Span: trace.Span{Kind: trace.Run, Id: id(1), Name: "run1"}, Key: "exec", Value: "1"},
		{Kind: trace.EndEvent, Span: trace.Span{Kind: trace.Exec, Parent: id(1), Id: id(2), Name: "task2"}},
		{Kind: trace.EndEvent, Span: trace.Span{Kind: trace.Run, Id: id(1), Name: "run1"}},
	}
	events := tracer.Events()
	if got, want := len(events), len(expect); got != want {
		t.Fatalf("got %v events, want %v", got, want)
	}
	for i, ex := range expect {
		ev := events[i]
		if ev.Time.Before(now) {
			t.Errorf("bad timestamp: got %v, expected time later or equal to %v", ev.Time, now)
		}
		now = ev.Time
		if got, want := ev.Kind, ex.Kind; got != want {
			t.Errorf("event %d: got %v, want %v", i, got, want)
		}
		if got, want := ev.Span, ex.Span; got != want {
			t.Errorf("event %d: got %v, want %v", i, got, want)
		}
		if got, want := ev.Key, ex.Key; got != want {
			t.Errorf("event %d: got %v, want %v", i, got, want)
		}
		if got, want := ev.Value, ex.Value; !reflect.DeepEqual(got, want) {
			t.Errorf("event %d: got %v, want %v", i, got, want)
		}
	}
}

func TestNoTracer(t *testing.T) {
	ctx := context.Background()
	if trace.On(ctx) {
		t.Fatal("tracer on untouched context")
	}
	// Start and Note are no-ops without a tracer.
	ctx1, done := trace.Start(ctx, trace.Fetch, id(3), "fetch")
	trace.Note(ctx1, "k", "v")
	done()
}

func TestLocalWriteTo(t *testing.T) {
	tracer := new(trace.Local)
	ctx := trace.WithTracer(context.Background(), tracer)
	_, done := trace.Start(ctx, trace.Collect, id(4), "sweep")
	done()

	var b bytes.Buffer
	if _, err := tracer.WriteTo(&b); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(b.String(), "\n"), "\n")
	if got, want := len(lines), 2; got != want {
		t.Fatalf("got %v lines, want %v", got, want)
	}
	if !strings.Contains(lines[0], "begin collect sweep") {
		t.Errorf("bad begin line %q", lines[0])
	}
	if !strings.Contains(lines[1], "end   collect sweep") {
		t.Errorf("bad end line %q", lines[1])
	}
}

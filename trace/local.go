// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package trace

import (
	"fmt"
	"io"
	"sync"
)

// Local is a Tracer that records events in memory. It is intended
// for tests and for interactive runs, where the recorded timeline
// can be dumped after the fact.
type Local struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Tracer.
func (l *Local) Emit(event Event) error {
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
	return nil
}

// Events returns a snapshot of the events recorded so far, in
// emission order.
func (l *Local) Events() []Event {
	l.mu.Lock()
	events := make([]Event, len(l.events))
	copy(events, l.events)
	l.mu.Unlock()
	return events
}

// WriteTo renders the recorded events to w, one per line. Only span
// start and end events are rendered; notes are attached to the line
// of their span's most recent event.
func (l *Local) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, event := range l.Events() {
		var (
			n   int
			err error
		)
		switch event.Kind {
		case StartEvent:
			n, err = fmt.Fprintf(w, "%s begin %s %s %s\n",
				event.Time.Format("15:04:05.000"), event.Span.Kind, event.Span.Name, event.Span.Id.Short())
		case EndEvent:
			n, err = fmt.Fprintf(w, "%s end   %s %s %s\n",
				event.Time.Format("15:04:05.000"), event.Span.Kind, event.Span.Name, event.Span.Id.Short())
		case NoteEvent:
			n, err = fmt.Fprintf(w, "%s note  %s %s=%v\n",
				event.Time.Format("15:04:05.000"), event.Span.Name, event.Key, event.Value)
		}
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

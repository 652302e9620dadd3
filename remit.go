// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package remit

import (
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/digest"
	"github.com/grailbio/remit/values"
)

// A Key names a task and, once the task has run, its result value.
// Keys are unique within a scheduler for the lifetime of their task:
// a key is retired only after the last reference to the task's future
// is dropped, and may be reused afterwards.
type Key string

// Digest returns the key's digest. Key digests name resident values
// in live sets during collection.
func (k Key) Digest() digest.Digest {
	return Digester.FromString(string(k))
}

// An Arg is a single argument slot of a Call: either a literal value
// or a reference to the result of another task, named by its key.
type Arg struct {
	// Lit is the argument's literal value. It is meaningful only
	// when Ref is empty.
	Lit values.T
	// Ref names the task whose result supplies this argument's value
	// at execution time.
	Ref Key
}

// Lit returns a literal argument carrying the value v.
func Lit(v values.T) Arg {
	return Arg{Lit: v}
}

// Dep returns a reference argument naming the task key.
func Dep(key Key) Arg {
	return Arg{Ref: key}
}

// IsRef tells whether the argument references another task's result.
func (a Arg) IsRef() bool {
	return a.Ref != ""
}

func (a Arg) String() string {
	if a.IsRef() {
		return "@" + string(a.Ref)
	}
	return values.Sprint(a.Lit)
}

// A Call describes a single schedulable unit of work: a registered
// function applied to a sequence of arguments, some of which may name
// the results of other tasks. Calls are immutable once submitted.
type Call struct {
	// Key names the call's task. If empty, the scheduler assigns a
	// fresh key at submission.
	Key Key
	// Ident identifies the registered function to apply.
	Ident string
	// Args are the call's argument slots, in positional order.
	Args []Arg
}

// Deps returns the distinct task keys referenced by the call's
// arguments, in order of first appearance.
func (c Call) Deps() []Key {
	var keys []Key
	seen := make(map[Key]bool)
	for _, arg := range c.Args {
		if !arg.IsRef() || seen[arg.Ref] {
			continue
		}
		seen[arg.Ref] = true
		keys = append(keys, arg.Ref)
	}
	return keys
}

// WriteDigest writes the digestible material of c to w: its
// identifier, and each argument rendered literally or by the key it
// references.
func (c Call) WriteDigest(w io.Writer) {
	io.WriteString(w, c.Ident)
	for _, arg := range c.Args {
		if arg.IsRef() {
			io.WriteString(w, "@")
			io.WriteString(w, string(arg.Ref))
		} else {
			io.WriteString(w, values.Sprint(arg.Lit))
		}
	}
}

// Digest returns a digest summarizing the call's function identifier
// and arguments. Two calls with the same identifier and arguments
// share a digest; submission mixes in fresh entropy when minting keys
// so that repeated calls receive distinct keys.
func (c Call) Digest() digest.Digest {
	w := Digester.NewWriter()
	c.WriteDigest(w)
	return w.Digest()
}

// String renders the call for logs and status displays, for example
//
//	sum(@x, @y, 1)
func (c Call) String() string {
	args := make([]string, len(c.Args))
	for i, arg := range c.Args {
		args[i] = arg.String()
	}
	return fmt.Sprintf("%s(%s)", c.Ident, strings.Join(args, ", "))
}

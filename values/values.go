// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package values defines the dynamic value representation passed
// between remit functions. Values are represented by values.T,
// defined as
//
//	type T = interface{}
//
// which is done to clarify code that handles remit values. Values
// that cross process boundaries are encoded as JSON, so remote pools
// are limited to JSON-representable values; in-process pools carry
// values unencoded.
package values

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/grailbio/base/data"
)

// T is the type of remit values. It is an alias for interface{},
// but is used throughout code for clarity.
type T = interface{}

// List is a list of values.
type List []T

// Equal tells whether values v and w are structurally equal.
func Equal(v, w T) bool {
	return reflect.DeepEqual(v, w)
}

// Size estimates the in-memory size of the value v. Estimates are
// used for data placement and accounting; they need not be exact.
func Size(v T) data.Size {
	switch arg := v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return 8
	case string:
		return data.Size(len(arg))
	case []byte:
		return data.Size(len(arg))
	case List:
		return sliceSize(arg)
	case []T:
		return sliceSize(arg)
	case map[string]T:
		var size data.Size
		for key, elem := range arg {
			size += data.Size(len(key)) + Size(elem)
		}
		return size
	default:
		return data.Size(reflect.TypeOf(v).Size())
	}
}

func sliceSize(list []T) data.Size {
	// Account one word per element for the slice's own storage.
	size := data.Size(8 * len(list))
	for _, elem := range list {
		size += Size(elem)
	}
	return size
}

const sprintMax = 64

// Sprint renders the value v in a compact form suitable for logs and
// status displays. Long renderings are elided.
func Sprint(v T) string {
	switch arg := v.(type) {
	case nil:
		return "nil"
	case fmt.Stringer:
		return elide(arg.String())
	case string:
		return elide(fmt.Sprintf("%q", arg))
	case List:
		return sprintSlice(arg)
	case []T:
		return sprintSlice(arg)
	case map[string]T:
		keys := make([]string, 0, len(arg))
		for key := range arg {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		elems := make([]string, len(keys))
		for i, key := range keys {
			elems[i] = fmt.Sprintf("%s: %s", key, Sprint(arg[key]))
		}
		return elide("{" + strings.Join(elems, ", ") + "}")
	default:
		return elide(fmt.Sprint(arg))
	}
}

func sprintSlice(list []T) string {
	elems := make([]string, len(list))
	for i, elem := range list {
		elems[i] = Sprint(elem)
	}
	return elide("[" + strings.Join(elems, ", ") + "]")
}

func elide(s string) string {
	if len(s) <= sprintMax {
		return s
	}
	return s[:sprintMax-3] + "..."
}

// Copyright 2026 The Allo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package allo

import (
	"fmt"
	"os"
	"path"
	"runtime"
	"strings"
	"unsafe"
)

func caller(s string, va ...interface{}) {
	if s == "" {
		s = strings.Repeat("%v ", len(va))
	}
	_, fn, fl, _ := runtime.Caller(2)
	fmt.Fprintf(os.Stderr, "# caller: %s:%d: ", path.Base(fn), fl)
	fmt.Fprintf(os.Stderr, s, va...)
	fmt.Fprintln(os.Stderr)
	os.Stderr.Sync()
}

func dbg(s string, va ...interface{}) {
	if s == "" {
		s = strings.Repeat("%v ", len(va))
	}
	_, fn, fl, _ := runtime.Caller(1)
	fmt.Fprintf(os.Stderr, "# dbg %s:%d: ", path.Base(fn), fl)
	fmt.Fprintf(os.Stderr, s, va...)
	fmt.Fprintln(os.Stderr)
	os.Stderr.Sync()
}

func use(...interface{}) {}

func init() {
	use(caller, dbg)
}

// callbackRecorder hands out a single callback value that records the int
// behind each userData it is invoked with. Registries store callback values
// in memory the collector does not scan, so tests must keep the value
// reachable; holding the recorder does that.
type callbackRecorder struct {
	order []int
	cb    DestructionCallback
}

func newCallbackRecorder() *callbackRecorder {
	r := &callbackRecorder{}
	r.cb = func(ud unsafe.Pointer) {
		if ud == nil {
			r.order = append(r.order, -1)
			return
		}
		r.order = append(r.order, *(*int)(ud))
	}
	return r
}

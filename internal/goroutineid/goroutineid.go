// Package goroutineid reports the runtime identifier of the calling goroutine.
//
// The dispatch executor uses it to recognise calls made from its own worker,
// which must never block waiting on work queued behind themselves.
package goroutineid

import (
	"runtime"
	"sync"
)

var stackBufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 64)
		return &b
	},
}

// Get returns the current goroutine ID, or 0 if it cannot be determined.
func Get() int64 {
	bp := stackBufPool.Get().(*[]byte)
	defer stackBufPool.Put(bp)

	n := runtime.Stack(*bp, false)
	return parse((*bp)[:n])
}

// parse extracts the ID from the "goroutine N [status]:" header line.
func parse(stack []byte) int64 {
	const prefix = "goroutine "
	if len(stack) <= len(prefix) || string(stack[:len(prefix)]) != prefix {
		return 0
	}

	var id int64
	for _, b := range stack[len(prefix):] {
		if b < '0' || b > '9' {
			break
		}
		id = id*10 + int64(b-'0')
	}
	return id
}

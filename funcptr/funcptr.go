// Package funcptr hands Go callbacks out as plain pointer-sized values,
// so they can travel through a native object system and come back. The
// registry is append-only per handle: a wrapped value stays pinned until
// released exactly once.
package funcptr

import (
	"context"
	"runtime/cgo"

	"github.com/xaionaro-go/objbridge/logger"
	"go.uber.org/atomic"
)

// Ptr is a pointer-sized token representing a wrapped Go value.
//
// The zero Ptr is the null value: it represents no callback at all and
// is always safe to release.
type Ptr uintptr

func (p Ptr) IsNull() bool {
	return p == 0
}

var liveCount atomic.Int64

// Wrap pins v and returns a token for it. Every Wrap must be paired
// with exactly one successful release, or the value leaks.
func Wrap(v any) Ptr {
	liveCount.Inc()
	return Ptr(cgo.NewHandle(v))
}

// Value resolves a token back to the wrapped value.
//
// Like the dereference it stands for, this is an unsafe primitive:
// resolving a null or already-released token crashes.
func Value(p Ptr) any {
	return cgo.Handle(p).Value()
}

// free is the unsafe release: p must be a live non-null token.
func free(p Ptr) {
	cgo.Handle(p).Delete()
	liveCount.Dec()
}

// SafeFree releases the wrapped value behind p. A null p is a no-op:
// callback slots are commonly empty and release sites do not need to
// check first.
//
// Releasing the same non-null token twice is still a bug (it crashes),
// same as releasing any other dangling pointer.
func SafeFree(ctx context.Context, p Ptr) {
	if p.IsNull() {
		logger.Tracef(ctx, "SafeFree: the pointer is null, nothing to do")
		return
	}
	free(p)
}

// Count reports how many wrapped values are currently alive. Diagnostic
// only, intended for leak checks.
func Count() int64 {
	return liveCount.Load()
}

// Package objsys abstracts a native refcounted object system: a type
// registry with single-inheritance subtyping, per-instance reference
// counts, the floating-reference convention for initially-unowned
// types, and boxed (plain value) allocations freed by type.
package objsys

import (
	"context"

	"github.com/xaionaro-go/objbridge/types"
)

// TypeID identifies a registered type within a System.
type TypeID uint64

// TypeInvalid is the zero TypeID; no real type ever has it.
const TypeInvalid TypeID = 0

// Props are construction parameters, interpreted by the backend.
type Props map[string]any

// System is the native side. All methods except NewObject mirror
// primitive native calls: they are cheap, do not block and are safe to
// invoke from any goroutine.
//
// Handles are opaque here: a System is the only party that may interpret
// them.
type System interface {
	// TypeOf reports the dynamic type of an instance
	// (TypeInvalid if the handle is unknown).
	TypeOf(h types.Handle) TypeID

	// TypeName resolves a type to its name ("" if unknown).
	TypeName(t TypeID) string

	// IsA reports whether the instance's dynamic type is t or a
	// subtype of t.
	IsA(h types.Handle, t TypeID) bool

	// Ref acquires one more counted reference and returns the same
	// handle.
	Ref(h types.Handle) types.Handle

	// Unref releases one counted reference; the instance is destroyed
	// when the last one goes away.
	Unref(h types.Handle)

	// RefCount reports the current reference count (0 if the handle is
	// unknown). Diagnostic only: the value is stale the moment it is
	// returned.
	RefCount(h types.Handle) uint64

	// InitiallyUnowned reports whether the instance belongs to an
	// initially-unowned type, i.e. whether it may carry a floating
	// reference after construction.
	InitiallyUnowned(h types.Handle) bool

	// RefSink converts a floating reference into a counted one, or
	// acquires a fresh counted reference if the floating one was
	// already claimed. Returns the same handle.
	RefSink(h types.Handle) types.Handle

	// NewObject constructs an instance of t. The returned handle carries
	// whatever reference convention the type prescribes (see
	// InitiallyUnowned); it is the caller's job to normalize ownership.
	NewObject(ctx context.Context, t TypeID, props Props) (types.Handle, error)

	// FreeBoxed releases a boxed value. Unlike objects, boxed values are
	// not refcounted: the type must be carried alongside the handle for
	// the destructor to be found.
	FreeBoxed(t TypeID, h types.Handle)
}

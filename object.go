package objbridge

import (
	"context"
	"fmt"

	"github.com/phuslu/goid"
	"github.com/xaionaro-go/objbridge/internal"
	"github.com/xaionaro-go/objbridge/logger"
	"github.com/xaionaro-go/objbridge/objsys"
	"github.com/xaionaro-go/objbridge/types"
	"go.uber.org/atomic"
)

// Object is a managed wrapper around one counted reference to a native
// instance. The wrapper releases its reference exactly once: explicitly
// via Release, implicitly when the wrapper is collected (unless
// auto-dispose is off), or never, if the reference is handed away via
// Disown.
type Object struct {
	bridge   *Bridge
	handle   types.Handle
	typ      objsys.TypeID
	typeName string
	released atomic.Bool
}

// Handle exposes the native pointer. The wrapper still owns the
// reference: do not release it through side channels.
func (o *Object) Handle() types.Handle {
	return o.handle
}

func (o *Object) Type() objsys.TypeID {
	return o.typ
}

func (o *Object) TypeName() string {
	return o.typeName
}

func (o *Object) String() string {
	return fmt.Sprintf("%s@%v", o.typeName, o.handle)
}

// IsA reports whether the instance is of type t (or of a subtype).
func (o *Object) IsA(ctx context.Context, t objsys.TypeID) bool {
	return o.bridge.IsInstance(ctx, o.handle, t)
}

// Release gives up the wrapper's reference. The native release is
// deferred to the serving goroutine; the wrapper is dead immediately.
//
// Releasing twice is a caller bug: the second call is refused loudly
// instead of corrupting the native refcount.
func (o *Object) Release(ctx context.Context) {
	logger.Debugf(ctx, "Release[%s]", o)
	defer func() { logger.Debugf(ctx, "/Release[%s]", o) }()

	if !o.released.CompareAndSwap(false, true) {
		logger.Errorf(ctx, "%s was already released or disowned", o)
		return
	}
	internal.ClearFinalizer(ctx, o)
	o.bridge.liveGauge(ctx, o.typeName).Dec()
	o.bridge.Unref(ctx, o.handle)
}

// Disown hands the wrapper's reference over to the caller: the native
// refcount is not touched, no deferred release will ever happen, and the
// returned handle is now the caller's to manage.
func (o *Object) Disown(ctx context.Context) types.Handle {
	logger.Debugf(ctx, "Disown[%s]", o)
	defer func() { logger.Debugf(ctx, "/Disown[%s]", o) }()

	if !o.released.CompareAndSwap(false, true) {
		logger.Errorf(ctx, "%s was already released or disowned", o)
		return o.handle
	}
	internal.ClearFinalizer(ctx, o)

	b := o.bridge
	b.dbg.Record(ctx, func(ctx context.Context) {
		b.dbg.Logf(ctx, "Disowning an object at %v [g %d]\n", o.handle, goid.Goid())
		b.dbg.Logf(ctx, "\tIt is of type %s\n", o.typeName)
		if b.dbg.Enabled() {
			b.dbg.Logf(ctx, "\tIts refcount before disowning is %d\n", b.System.RefCount(o.handle))
		}
	})
	b.counters.Disowned.Increment()
	b.liveGauge(ctx, o.typeName).Dec()
	return o.handle
}

// IsReleased reports whether the wrapper already gave up (or disowned)
// its reference.
func (o *Object) IsReleased() bool {
	return o.released.Load()
}

// finalize is the auto-dispose path, invoked by the garbage collector.
func (o *Object) finalize() {
	if !o.released.CompareAndSwap(false, true) {
		return
	}
	ctx := o.bridge.baseCtx
	logger.Tracef(ctx, "collecting %s", o)
	o.bridge.liveGauge(ctx, o.typeName).Dec()
	o.bridge.Unref(ctx, o.handle)
}

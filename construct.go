package objbridge

import (
	"context"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/phuslu/goid"
	"github.com/xaionaro-go/objbridge/internal"
	"github.com/xaionaro-go/objbridge/logger"
	"github.com/xaionaro-go/objbridge/objsys"
	"github.com/xaionaro-go/objbridge/types"
)

// NewObject constructs a native instance of t and returns a managed
// wrapper owning exactly one counted reference.
//
// Construction is safe from any goroutine. If the type is
// initially-unowned, the fresh instance's floating reference is sunk, so
// the caller ends up with a counted reference either way; for the
// (rare) initially-unowned types that sink their own floating reference
// during construction, the extra reference taken here means the native
// side may keep the instance alive after the wrapper releases it.
func (b *Bridge) NewObject(
	ctx context.Context,
	t objsys.TypeID,
	props objsys.Props,
) (_ret *Object, _err error) {
	typeName := b.System.TypeName(t)
	logger.Debugf(ctx, "NewObject[%s]", typeName)
	defer func() { logger.Debugf(ctx, "/NewObject[%s]: %v %v", typeName, _ret, _err) }()
	logger.Tracef(ctx, "NewObject[%s]: props: %s", typeName, spew.Sdump(props))

	var h types.Handle
	var err error
	b.dbg.Record(ctx, func(ctx context.Context) {
		b.dbg.Logf(ctx, "Creating a new object of type %s [g %d]\n", typeName, goid.Goid())
		h, err = b.System.NewObject(ctx, t, props)
		if err != nil {
			b.dbg.Logf(ctx, "\tconstruction failed: %v\n", err)
			return
		}
		if b.System.InitiallyUnowned(h) {
			b.System.RefSink(h)
		}
		b.dbg.Logf(ctx, "\tdone, got a pointer at %v\n", h)
	})
	if err != nil {
		return nil, fmt.Errorf("unable to construct an instance of '%s': %w", typeName, err)
	}

	obj := &Object{
		bridge:   b,
		handle:   h,
		typ:      t,
		typeName: typeName,
	}
	b.counters.Constructed.Increment()
	b.liveGauge(ctx, typeName).Inc()
	if b.autoDispose {
		internal.SetFinalizer(ctx, obj, func(obj *Object) {
			obj.finalize()
		})
	}
	return obj, nil
}

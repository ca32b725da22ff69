package objbridge

import (
	"context"

	"github.com/phuslu/goid"
	"github.com/xaionaro-go/objbridge/internal"
	"github.com/xaionaro-go/objbridge/logger"
	"github.com/xaionaro-go/objbridge/objsys"
	"github.com/xaionaro-go/objbridge/types"
)

type disposalKind int

const (
	disposalKindUndefined disposalKind = iota
	disposalKindObject
	disposalKindBoxed
)

func (k disposalKind) String() string {
	switch k {
	case disposalKindObject:
		return "object"
	case disposalKindBoxed:
		return "boxed"
	default:
		return "undefined"
	}
}

// disposalTask carries everything a deferred destruction needs. For
// boxed values the type must travel along (there is no way to ask a
// boxed pointer for its type later); objects resolve theirs at
// execution time.
type disposalTask struct {
	Kind   disposalKind
	Type   objsys.TypeID
	Handle types.Handle
}

// Unref schedules the release of one counted reference of an object.
// Safe from any goroutine (finalizers included): the actual native call
// happens later, on the serving goroutine.
func (b *Bridge) Unref(ctx context.Context, h types.Handle) {
	logger.Tracef(ctx, "Unref[%v]", h)
	if h.IsNull() {
		logger.Errorf(ctx, "asked to unref a null pointer")
		return
	}
	b.counters.Unrefs.Requested.Increment()
	b.submitDisposal(ctx, disposalTask{
		Kind:   disposalKindObject,
		Handle: h,
	})
}

// FreeBoxed schedules the destruction of a boxed value of type t. Safe
// from any goroutine.
func (b *Bridge) FreeBoxed(ctx context.Context, t objsys.TypeID, h types.Handle) {
	logger.Tracef(ctx, "FreeBoxed[%v of type %d]", h, t)
	if h.IsNull() {
		logger.Errorf(ctx, "asked to free a boxed value at a null pointer")
		return
	}
	b.counters.BoxedFrees.Requested.Increment()
	b.submitDisposal(ctx, disposalTask{
		Kind:   disposalKindBoxed,
		Type:   t,
		Handle: h,
	})
}

func (b *Bridge) submitDisposal(ctx context.Context, task disposalTask) {
	counters := b.countersFor(ctx, task.Kind)

	err := b.Submitter.SubmitIdle(ctx, func(ctx context.Context) bool {
		b.runDisposal(ctx, task)
		counters.Executed.Increment()
		return false
	})
	if err == nil {
		return
	}

	if b.syncFallback {
		logger.Warnf(ctx,
			"unable to schedule the %s disposal of %v (%v); running it synchronously",
			task.Kind, task.Handle, err,
		)
		b.runDisposal(ctx, task)
		counters.Fallback.Increment()
		return
	}

	logger.Errorf(ctx,
		"unable to schedule the %s disposal of %v: %v; the reference is leaked",
		task.Kind, task.Handle, err,
	)
	counters.Dropped.Increment()
}

func (b *Bridge) countersFor(ctx context.Context, kind disposalKind) *types.CountersSection {
	switch kind {
	case disposalKindObject:
		return &b.counters.Unrefs
	case disposalKindBoxed:
		return &b.counters.BoxedFrees
	default:
		internal.Assert(ctx, false, "unexpected disposal kind", kind)
		return nil
	}
}

func (b *Bridge) runDisposal(ctx context.Context, task disposalTask) {
	switch task.Kind {
	case disposalKindObject:
		b.runObjectUnref(ctx, task.Handle)
	case disposalKindBoxed:
		b.runBoxedFree(ctx, task.Type, task.Handle)
	default:
		internal.Assert(ctx, false, "unexpected disposal kind", task.Kind)
	}
}

func (b *Bridge) runObjectUnref(ctx context.Context, h types.Handle) {
	b.dbg.Record(ctx, func(ctx context.Context) {
		b.dbg.Logf(ctx, "Unref of %v from idle callback [g %d]\n", h, goid.Goid())
		if b.dbg.Enabled() {
			// resolved here and not at request time: the native calls
			// are only worth making when the stream is on
			b.dbg.Logf(ctx, "\tIt is of type %s\n", b.System.TypeName(b.System.TypeOf(h)))
			b.dbg.Logf(ctx, "\tIts refcount before unref is %d\n", b.System.RefCount(h))
		}
		b.System.Unref(h)
		b.dbg.Logf(ctx, "\tUnref done\n")
	})
}

func (b *Bridge) runBoxedFree(ctx context.Context, t objsys.TypeID, h types.Handle) {
	b.dbg.Record(ctx, func(ctx context.Context) {
		b.dbg.Logf(ctx, "Freeing a boxed object at %v from idle callback [g %d]\n", h, goid.Goid())
		if b.dbg.Enabled() {
			b.dbg.Logf(ctx, "\tIt is of type %s\n", b.System.TypeName(t))
		}
		b.System.FreeBoxed(t, h)
		b.dbg.Logf(ctx, "\tdone freeing %v.\n", h)
	})
}

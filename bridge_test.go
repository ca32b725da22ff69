package objbridge

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/phuslu/goid"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/objbridge/mainloop"
	"github.com/xaionaro-go/objbridge/memdbg"
	"github.com/xaionaro-go/objbridge/objsys"
	"github.com/xaionaro-go/objbridge/objsys/memsys"
	"github.com/xaionaro-go/observability"
)

type testTypes struct {
	Object objsys.TypeID
	Widget objsys.TypeID
	Button objsys.TypeID
	Window objsys.TypeID
	Model  objsys.TypeID
	Rect   objsys.TypeID
}

func newTestSystem(ctx context.Context, t *testing.T, opts ...memsys.Option) (*memsys.System, testTypes) {
	s := memsys.New(opts...)

	var tt testTypes
	var err error
	tt.Object, err = s.RegisterType(ctx, "Object")
	require.NoError(t, err)
	tt.Widget, err = s.RegisterType(ctx, "Widget",
		memsys.TypeOptionParent(tt.Object),
		memsys.TypeOptionInitiallyUnowned(true),
	)
	require.NoError(t, err)
	tt.Button, err = s.RegisterType(ctx, "Button", memsys.TypeOptionParent(tt.Widget))
	require.NoError(t, err)
	tt.Window, err = s.RegisterType(ctx, "Window",
		memsys.TypeOptionParent(tt.Widget),
		memsys.TypeOptionSinksOnConstruct(true),
	)
	require.NoError(t, err)
	tt.Model, err = s.RegisterType(ctx, "Model", memsys.TypeOptionParent(tt.Object))
	require.NoError(t, err)
	tt.Rect, err = s.RegisterType(ctx, "Rect", memsys.TypeOptionBoxed(true))
	require.NoError(t, err)
	return s, tt
}

func TestNewObjectNormalizesOwnership(t *testing.T) {
	ctx := context.Background()
	sys, tt := newTestSystem(ctx, t)
	b := New(ctx, sys)
	defer b.Close(ctx)

	// a floating instance: the bridge sinks the floating reference,
	// so the wrapper's reference is the only one
	widget, err := b.NewObject(ctx, tt.Widget, nil)
	require.NoError(t, err)
	require.False(t, sys.IsFloating(widget.Handle()))
	require.EqualValues(t, 1, sys.RefCount(widget.Handle()))

	// an ordinary owned instance: already normalized
	model, err := b.NewObject(ctx, tt.Model, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, sys.RefCount(model.Handle()))

	// a self-sinking instance: nothing floating to claim, so the
	// bridge's sink takes a fresh reference on top of the native one
	window, err := b.NewObject(ctx, tt.Window, nil)
	require.NoError(t, err)
	require.EqualValues(t, 2, sys.RefCount(window.Handle()))

	widget.Release(ctx)
	model.Release(ctx)
	window.Release(ctx)
	require.NoError(t, b.Sync(ctx))

	// widget and model died; the window is kept alive by its own side
	require.EqualValues(t, 1, sys.LiveCount())
	require.EqualValues(t, 1, sys.RefCount(window.Handle()))
	require.Empty(t, b.GetStats().Live)

	sys.Unref(window.Handle())
	require.EqualValues(t, 0, sys.LiveCount())
}

func TestDisposalRunsOnTheServingGoroutine(t *testing.T) {
	ctx := context.Background()
	sys, tt := newTestSystem(ctx, t)
	b := New(ctx, sys)
	defer b.Close(ctx)
	require.NoError(t, b.Loop().WaitForServing(ctx))
	serveGoID := b.Loop().ServeGoID()
	require.NotZero(t, serveGoID)

	obj, err := b.NewObject(ctx, tt.Model, nil)
	require.NoError(t, err)
	obj.Release(ctx)
	require.NoError(t, b.Sync(ctx))

	finalized := sys.Finalized()
	require.Len(t, finalized, 1)
	require.Equal(t, serveGoID, finalized[0].GoID)
	require.NotEqual(t, goid.Goid(), finalized[0].GoID)
}

func TestIsInstanceIsTotal(t *testing.T) {
	ctx := context.Background()
	sys, tt := newTestSystem(ctx, t)

	var buf bytes.Buffer
	dbg := memdbg.New(memdbg.OptionWriter{Writer: &buf}, memdbg.OptionEnabled(true))
	b := New(ctx, sys, OptionMemDebug{Log: dbg})
	defer b.Close(ctx)

	// a null handle is not an instance of anything, and says so on the
	// debug stream
	require.False(t, b.IsInstance(ctx, 0, tt.Widget))
	require.Contains(t, buf.String(), "Check failed: got a null pointer\n")

	button, err := b.NewObject(ctx, tt.Button, nil)
	require.NoError(t, err)
	require.True(t, button.IsA(ctx, tt.Button))
	require.True(t, button.IsA(ctx, tt.Widget))
	require.True(t, button.IsA(ctx, tt.Object))
	require.False(t, button.IsA(ctx, tt.Model))

	// a handle the system no longer knows is not an instance either
	h := button.Handle()
	button.Release(ctx)
	require.NoError(t, b.Sync(ctx))
	require.False(t, b.IsInstance(ctx, h, tt.Widget))
}

func TestConcurrentConstructAndRelease(t *testing.T) {
	ctx := context.Background()
	sys, tt := newTestSystem(ctx, t)
	b := New(ctx, sys)
	defer b.Close(ctx)

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		observability.Go(ctx, func(ctx context.Context) {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				typ := tt.Widget
				if j%2 == 0 {
					typ = tt.Model
				}
				obj, err := b.NewObject(ctx, typ, nil)
				require.NoError(t, err)
				require.EqualValues(t, 1, sys.RefCount(obj.Handle()))
				obj.Release(ctx)
			}
		})
	}
	wg.Wait()
	require.NoError(t, b.Sync(ctx))

	require.EqualValues(t, 0, sys.LiveCount())
	require.Len(t, sys.Finalized(), workers*perWorker)

	stats := b.GetStats()
	require.EqualValues(t, workers*perWorker, stats.Constructed.Count)
	require.EqualValues(t, workers*perWorker, stats.Unrefs.Requested.Count)
	require.EqualValues(t, workers*perWorker, stats.Unrefs.Executed.Count)
	require.Zero(t, stats.Unrefs.Dropped.Count)
	require.Empty(t, stats.Live)
}

func TestDoubleReleaseIsRefused(t *testing.T) {
	ctx := context.Background()
	sys, tt := newTestSystem(ctx, t)
	b := New(ctx, sys)
	defer b.Close(ctx)

	obj, err := b.NewObject(ctx, tt.Model, nil)
	require.NoError(t, err)
	obj.Release(ctx)
	obj.Release(ctx) // refused: must not reach the native side
	require.NoError(t, b.Sync(ctx))

	require.True(t, obj.IsReleased())
	require.Len(t, sys.Finalized(), 1)
	require.EqualValues(t, 1, b.GetStats().Unrefs.Requested.Count)
}

func TestDisownHandsTheReferenceOver(t *testing.T) {
	ctx := context.Background()
	sys, tt := newTestSystem(ctx, t)
	b := New(ctx, sys)
	defer b.Close(ctx)

	obj, err := b.NewObject(ctx, tt.Widget, nil)
	require.NoError(t, err)

	h := obj.Disown(ctx)
	require.Equal(t, obj.Handle(), h)
	require.NoError(t, b.Sync(ctx))

	// the instance is untouched: still alive, refcount intact
	require.EqualValues(t, 1, sys.LiveCount())
	require.EqualValues(t, 1, sys.RefCount(h))

	// a release after disowning is refused
	obj.Release(ctx)
	require.NoError(t, b.Sync(ctx))
	require.EqualValues(t, 1, sys.LiveCount())

	stats := b.GetStats()
	require.EqualValues(t, 1, stats.Disowned.Count)
	require.Zero(t, stats.Unrefs.Requested.Count)
	require.Empty(t, stats.Live)

	// the caller now manages the reference
	sys.Unref(h)
	require.EqualValues(t, 0, sys.LiveCount())
}

func TestConstructionFailurePropagates(t *testing.T) {
	ctx := context.Background()
	errInjected := errors.New("injected construction failure")
	sys, tt := newTestSystem(ctx, t, memsys.OptionConstructHook(
		func(ctx context.Context, tp objsys.TypeID, props objsys.Props) error {
			if props["fail"] == true {
				return errInjected
			}
			return nil
		},
	))
	b := New(ctx, sys)
	defer b.Close(ctx)

	obj, err := b.NewObject(ctx, tt.Model, objsys.Props{"fail": true})
	require.ErrorIs(t, err, errInjected)
	require.Nil(t, obj)

	require.EqualValues(t, 0, sys.LiveCount())
	stats := b.GetStats()
	require.Zero(t, stats.Constructed.Count)
	require.Empty(t, stats.Live)
}

func TestBoxedFreeIsDeferred(t *testing.T) {
	ctx := context.Background()
	sys, tt := newTestSystem(ctx, t)
	b := New(ctx, sys)
	defer b.Close(ctx)
	require.NoError(t, b.Loop().WaitForServing(ctx))
	serveGoID := b.Loop().ServeGoID()

	h, err := sys.NewBoxed(tt.Rect)
	require.NoError(t, err)

	b.FreeBoxed(ctx, tt.Rect, h)
	require.NoError(t, b.Sync(ctx))

	finalized := sys.Finalized()
	require.Len(t, finalized, 1)
	require.Equal(t, tt.Rect, finalized[0].Type)
	require.Equal(t, serveGoID, finalized[0].GoID)

	stats := b.GetStats()
	require.EqualValues(t, 1, stats.BoxedFrees.Requested.Count)
	require.EqualValues(t, 1, stats.BoxedFrees.Executed.Count)
}

func TestNullDisposalRequestsAreIgnored(t *testing.T) {
	ctx := context.Background()
	sys, tt := newTestSystem(ctx, t)
	b := New(ctx, sys)
	defer b.Close(ctx)

	b.Unref(ctx, 0)
	b.FreeBoxed(ctx, tt.Rect, 0)
	require.NoError(t, b.Sync(ctx))

	stats := b.GetStats()
	require.Zero(t, stats.Unrefs.Requested.Count)
	require.Zero(t, stats.BoxedFrees.Requested.Count)
}

func TestDisposalAfterCloseIsCountedAsDropped(t *testing.T) {
	ctx := context.Background()
	sys, tt := newTestSystem(ctx, t)
	b := New(ctx, sys)

	obj, err := b.NewObject(ctx, tt.Model, nil)
	require.NoError(t, err)
	require.NoError(t, b.Close(ctx))

	obj.Release(ctx)

	// the reference leaked, but loudly
	require.EqualValues(t, 1, sys.LiveCount())
	stats := b.GetStats()
	require.EqualValues(t, 1, stats.Unrefs.Requested.Count)
	require.EqualValues(t, 1, stats.Unrefs.Dropped.Count)
	require.Zero(t, stats.Unrefs.Executed.Count)
}

func TestSyncDisposalFallback(t *testing.T) {
	ctx := context.Background()
	sys, tt := newTestSystem(ctx, t)
	b := New(ctx, sys, OptionSyncDisposalFallback(true))

	obj, err := b.NewObject(ctx, tt.Model, nil)
	require.NoError(t, err)
	require.NoError(t, b.Close(ctx))

	obj.Release(ctx)

	// ran synchronously, on this very goroutine
	finalized := sys.Finalized()
	require.Len(t, finalized, 1)
	require.Equal(t, goid.Goid(), finalized[0].GoID)

	stats := b.GetStats()
	require.EqualValues(t, 1, stats.Unrefs.Fallback.Count)
	require.Zero(t, stats.Unrefs.Dropped.Count)
}

func TestAutoDisposeOnCollection(t *testing.T) {
	ctx := context.Background()
	sys, tt := newTestSystem(ctx, t)
	b := New(ctx, sys)
	defer b.Close(ctx)

	func() {
		obj, err := b.NewObject(ctx, tt.Model, nil)
		require.NoError(t, err)
		require.EqualValues(t, 1, sys.RefCount(obj.Handle()))
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return sys.LiveCount() == 0
	}, 10*time.Second, 10*time.Millisecond)
}

func TestAutoDisposeDisabled(t *testing.T) {
	ctx := context.Background()
	sys, tt := newTestSystem(ctx, t)
	b := New(ctx, sys, OptionAutoDispose(false))
	defer b.Close(ctx)

	func() {
		obj, err := b.NewObject(ctx, tt.Model, nil)
		require.NoError(t, err)
		_ = obj
	}()

	// without auto-dispose the wrapper's death leaks the reference
	for i := 0; i < 5; i++ {
		runtime.GC()
		time.Sleep(time.Millisecond)
	}
	require.NoError(t, b.Sync(ctx))
	require.EqualValues(t, 1, sys.LiveCount())
}

func TestExternalSubmitter(t *testing.T) {
	ctx := context.Background()
	sys, tt := newTestSystem(ctx, t)

	loop := mainloop.New()
	defer loop.Close(ctx)
	serveResult := make(chan error, 1)
	observability.Go(ctx, func(ctx context.Context) {
		serveResult <- loop.Serve(ctx)
	})
	require.NoError(t, loop.WaitForServing(ctx))

	b := New(ctx, sys, OptionSubmitter{Submitter: loop})
	require.Nil(t, b.Loop())

	obj, err := b.NewObject(ctx, tt.Widget, nil)
	require.NoError(t, err)
	obj.Release(ctx)
	require.NoError(t, b.Sync(ctx))
	require.EqualValues(t, 0, sys.LiveCount())

	// closing the bridge must not close an executor it does not own
	require.NoError(t, b.Close(ctx))
	require.False(t, loop.IsClosed())

	require.NoError(t, loop.Close(ctx))
	require.NoError(t, <-serveResult)
}

func TestDebugMemStream(t *testing.T) {
	ctx := context.Background()
	sys, tt := newTestSystem(ctx, t)

	var buf bytes.Buffer
	dbg := memdbg.New(memdbg.OptionWriter{Writer: &buf}, memdbg.OptionEnabled(true))
	b := New(ctx, sys, OptionMemDebug{Log: dbg})
	defer b.Close(ctx)

	obj, err := b.NewObject(ctx, tt.Model, nil)
	require.NoError(t, err)
	obj.Release(ctx)

	boxed, err := sys.NewBoxed(tt.Rect)
	require.NoError(t, err)
	b.FreeBoxed(ctx, tt.Rect, boxed)

	widget, err := b.NewObject(ctx, tt.Widget, nil)
	require.NoError(t, err)
	widget.Disown(ctx)

	require.NoError(t, b.Sync(ctx))

	out := buf.String()
	require.Contains(t, out, "Creating a new object of type Model [g ")
	require.Contains(t, out, "\tdone, got a pointer at ")
	require.Contains(t, out, "Unref of ")
	require.Contains(t, out, "\tIt is of type Model\n")
	require.Contains(t, out, "\tIts refcount before unref is 1\n")
	require.Contains(t, out, "\tUnref done\n")
	require.Contains(t, out, "Freeing a boxed object at ")
	require.Contains(t, out, "\tIt is of type Rect\n")
	require.Contains(t, out, "\tdone freeing ")
	require.Contains(t, out, "Disowning an object at ")
	require.Contains(t, out, "\tIt is of type Widget\n")
	require.Contains(t, out, "\tIts refcount before disowning is 1\n")
}

//go:build !windows && !ios && !android && (amd64 || arm64)

package gobject

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/objbridge"
	"github.com/xaionaro-go/objbridge/objsys"
)

var gobjectAvailable bool

func TestMain(m *testing.M) {
	if err := Load(context.Background()); err == nil {
		gobjectAvailable = true
	}
	os.Exit(m.Run())
}

func skipIfNoGObject(t *testing.T) {
	t.Helper()
	if !gobjectAvailable {
		t.Skip("libgobject-2.0 not available")
	}
}

func TestPrimitives(t *testing.T) {
	skipIfNoGObject(t)
	ctx := context.Background()

	sys, err := New(ctx)
	require.NoError(t, err)

	objectType := sys.TypeFromName("GObject")
	require.NotEqual(t, objsys.TypeInvalid, objectType)
	require.Equal(t, "GObject", sys.TypeName(objectType))

	h, err := sys.NewObject(ctx, objectType, nil)
	require.NoError(t, err)
	require.False(t, h.IsNull())
	require.EqualValues(t, 1, sys.RefCount(h))
	require.Equal(t, objectType, sys.TypeOf(h))
	require.True(t, sys.IsA(h, objectType))
	require.False(t, sys.InitiallyUnowned(h))
	require.False(t, sys.IsFloating(h))

	sys.Ref(h)
	require.EqualValues(t, 2, sys.RefCount(h))
	sys.Unref(h)
	require.EqualValues(t, 1, sys.RefCount(h))
	sys.Unref(h)
}

func TestFloatingReference(t *testing.T) {
	skipIfNoGObject(t)
	ctx := context.Background()

	sys, err := New(ctx)
	require.NoError(t, err)

	unownedType := sys.TypeFromName("GInitiallyUnowned")
	require.NotEqual(t, objsys.TypeInvalid, unownedType)

	h, err := sys.NewObject(ctx, unownedType, nil)
	require.NoError(t, err)
	require.True(t, sys.InitiallyUnowned(h))
	require.True(t, sys.IsFloating(h))

	sys.RefSink(h)
	require.False(t, sys.IsFloating(h))
	require.EqualValues(t, 1, sys.RefCount(h))
	sys.Unref(h)
}

func TestUnknownTypeName(t *testing.T) {
	skipIfNoGObject(t)
	require.Equal(t, objsys.TypeInvalid,
		(&System{}).TypeFromName("DefinitelyNotARegisteredType"))
}

func TestConstructionPropertiesRefused(t *testing.T) {
	skipIfNoGObject(t)
	ctx := context.Background()

	sys, err := New(ctx)
	require.NoError(t, err)

	_, err = sys.NewObject(ctx, sys.TypeFromName("GObject"), objsys.Props{"k": "v"})
	require.ErrorIs(t, err, ErrPropsUnsupported{})
}

func TestBridgeOverGObject(t *testing.T) {
	skipIfNoGObject(t)
	ctx := context.Background()

	sys, err := New(ctx)
	require.NoError(t, err)

	b := objbridge.New(ctx, sys)
	defer b.Close(ctx)

	require.False(t, b.IsInstance(ctx, 0, sys.TypeFromName("GObject")))

	obj, err := b.NewObject(ctx, sys.TypeFromName("GInitiallyUnowned"), nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, sys.RefCount(obj.Handle()))
	require.False(t, sys.IsFloating(obj.Handle()))
	require.True(t, obj.IsA(ctx, sys.TypeFromName("GObject")))

	obj.Release(ctx)
	require.NoError(t, b.Sync(ctx))
}

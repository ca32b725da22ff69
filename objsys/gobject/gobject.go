//go:build !windows && !ios && !android && (amd64 || arm64)

package gobject

import (
	"context"
	"os"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/xaionaro-go/objbridge/logger"
	"github.com/xaionaro-go/objbridge/objsys"
	"github.com/xaionaro-go/objbridge/types"
)

// EnvLibraryPath overrides the libgobject-2.0 location.
const EnvLibraryPath = "OBJBRIDGE_GOBJECT_LIB"

var (
	libGObject uintptr

	loaded   bool
	loadOnce sync.Once
	loadErr  error
)

// Function bindings
var (
	gObjectRef               func(uintptr) uintptr
	gObjectUnref             func(uintptr)
	gObjectRefSink           func(uintptr) uintptr
	gObjectIsFloating        func(uintptr) int32
	gObjectNewWithProperties func(uintptr, uint32, uintptr, uintptr) uintptr
	gBoxedFree               func(uintptr, uintptr)
	gTypeName                func(uintptr) string
	gTypeFromName            func(string) uintptr
	gTypeNameFromInstance    func(uintptr) string
	gTypeCheckInstanceIsA    func(uintptr, uintptr) int32
	gInitiallyUnownedGetType func() uintptr

	typeInitiallyUnowned uintptr
)

// IsLoaded returns true if libgobject-2.0 has been successfully loaded.
func IsLoaded() bool {
	return loaded
}

// Load loads libgobject-2.0 and registers the function bindings. It is
// safe to call multiple times; subsequent calls are no-ops.
func Load(ctx context.Context) error {
	loadOnce.Do(func() {
		loadErr = doLoad(ctx)
		if loadErr == nil {
			loaded = true
		}
	})
	return loadErr
}

func doLoad(ctx context.Context) error {
	candidates := libraryCandidates()
	var err error
	for _, candidate := range candidates {
		libGObject, err = purego.Dlopen(candidate, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			logger.Debugf(ctx, "loaded the GObject library from '%s'", candidate)
			break
		}
		logger.Tracef(ctx, "unable to load '%s': %v", candidate, err)
	}
	if libGObject == 0 {
		return ErrLibraryNotFound{Candidates: candidates}
	}

	purego.RegisterLibFunc(&gObjectRef, libGObject, "g_object_ref")
	purego.RegisterLibFunc(&gObjectUnref, libGObject, "g_object_unref")
	purego.RegisterLibFunc(&gObjectRefSink, libGObject, "g_object_ref_sink")
	purego.RegisterLibFunc(&gObjectIsFloating, libGObject, "g_object_is_floating")
	purego.RegisterLibFunc(&gObjectNewWithProperties, libGObject, "g_object_new_with_properties")
	purego.RegisterLibFunc(&gBoxedFree, libGObject, "g_boxed_free")
	purego.RegisterLibFunc(&gTypeName, libGObject, "g_type_name")
	purego.RegisterLibFunc(&gTypeFromName, libGObject, "g_type_from_name")
	purego.RegisterLibFunc(&gTypeNameFromInstance, libGObject, "g_type_name_from_instance")
	purego.RegisterLibFunc(&gTypeCheckInstanceIsA, libGObject, "g_type_check_instance_is_a")
	purego.RegisterLibFunc(&gInitiallyUnownedGetType, libGObject, "g_initially_unowned_get_type")

	typeInitiallyUnowned = gInitiallyUnownedGetType()
	return nil
}

// libraryCandidates returns the library names to try, most specific
// first. Bare sonames are resolved through the system's own search
// path.
func libraryCandidates() []string {
	if path := os.Getenv(EnvLibraryPath); path != "" {
		return []string{path}
	}
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"libgobject-2.0.0.dylib",
			"libgobject-2.0.dylib",
			"/opt/homebrew/lib/libgobject-2.0.0.dylib",
			"/usr/local/lib/libgobject-2.0.0.dylib",
		}
	default:
		return []string{
			"libgobject-2.0.so.0",
			"libgobject-2.0.so",
		}
	}
}

// System is the GObject-backed objsys.System. Construct it with New;
// the zero value calls into an unloaded library.
type System struct{}

var _ objsys.System = (*System)(nil)

// New loads the library (if not already loaded) and returns the
// backend.
func New(ctx context.Context) (*System, error) {
	if err := Load(ctx); err != nil {
		return nil, err
	}
	return &System{}, nil
}

// TypeFromName resolves a registered GType by name (TypeInvalid if the
// native side does not know it).
func (s *System) TypeFromName(name string) objsys.TypeID {
	if !loaded {
		return objsys.TypeInvalid
	}
	return objsys.TypeID(gTypeFromName(name))
}

func (s *System) TypeOf(h types.Handle) objsys.TypeID {
	if h.IsNull() {
		return objsys.TypeInvalid
	}
	return objsys.TypeID(gTypeFromName(gTypeNameFromInstance(uintptr(h))))
}

func (s *System) TypeName(t objsys.TypeID) string {
	if t == objsys.TypeInvalid {
		return ""
	}
	return gTypeName(uintptr(t))
}

func (s *System) IsA(h types.Handle, t objsys.TypeID) bool {
	if h.IsNull() {
		return false
	}
	return gTypeCheckInstanceIsA(uintptr(h), uintptr(t)) != 0
}

func (s *System) Ref(h types.Handle) types.Handle {
	return types.Handle(gObjectRef(uintptr(h)))
}

func (s *System) Unref(h types.Handle) {
	gObjectUnref(uintptr(h))
}

// RefCount reads the ref_count field of the public GObject layout: a
// guint right after the GTypeInstance pointer.
func (s *System) RefCount(h types.Handle) uint64 {
	if h.IsNull() {
		return 0
	}
	return uint64(*(*uint32)(unsafe.Pointer(uintptr(h) + unsafe.Sizeof(uintptr(0)))))
}

func (s *System) InitiallyUnowned(h types.Handle) bool {
	if h.IsNull() {
		return false
	}
	return gTypeCheckInstanceIsA(uintptr(h), typeInitiallyUnowned) != 0
}

func (s *System) IsFloating(h types.Handle) bool {
	if h.IsNull() {
		return false
	}
	return gObjectIsFloating(uintptr(h)) != 0
}

func (s *System) RefSink(h types.Handle) types.Handle {
	return types.Handle(gObjectRefSink(uintptr(h)))
}

func (s *System) NewObject(
	ctx context.Context,
	t objsys.TypeID,
	props objsys.Props,
) (types.Handle, error) {
	if !loaded {
		return types.HandleNull, ErrNotLoaded{}
	}
	if len(props) != 0 {
		return types.HandleNull, ErrPropsUnsupported{}
	}
	h := types.Handle(gObjectNewWithProperties(uintptr(t), 0, 0, 0))
	if h.IsNull() {
		return types.HandleNull, ErrConstructFailed{Type: s.TypeName(t)}
	}
	return h, nil
}

func (s *System) FreeBoxed(t objsys.TypeID, h types.Handle) {
	gBoxedFree(uintptr(t), uintptr(h))
}

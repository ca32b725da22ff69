// Package memsys is an in-memory objsys.System: a pure-Go stand-in for
// a native refcounted object system. It implements the same conventions
// (single-inheritance types, floating references on initially-unowned
// types, boxed values freed by type) and loudly detects misuse like
// double frees, which makes it the backend of choice for tests and for
// leak probing.
package memsys

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-ng/xatomic"
	"github.com/phuslu/goid"
	"github.com/xaionaro-go/objbridge/objsys"
	"github.com/xaionaro-go/objbridge/types"
	"github.com/xaionaro-go/xsync"
)

type typeInfo struct {
	ID     objsys.TypeID
	Name   string
	Parent objsys.TypeID

	// effective (inherited) flag
	InitiallyUnowned bool

	// an initially-unowned type that nevertheless claims its own
	// floating reference during construction (some toolkit types do
	// this, e.g. top-level windows that register themselves)
	SinksOnConstruct bool

	Boxed bool
}

type typeTable struct {
	byID   map[objsys.TypeID]*typeInfo
	byName map[string]objsys.TypeID
}

type instance struct {
	Handle   types.Handle
	Type     objsys.TypeID
	Boxed    bool
	Props    objsys.Props
	RefCount atomic.Int64
	Floating atomic.Bool
}

// Finalization is one destroyed instance, in destruction order.
type Finalization struct {
	Handle types.Handle
	Type   objsys.TypeID

	// GoID is the goroutine that ran the destroying call.
	GoID int64
}

type System struct {
	registryLocker xsync.Mutex
	typeTable      *typeTable
	nextTypeID     atomic.Uint64

	instances  xsync.Map[types.Handle, *instance]
	liveCount  atomic.Int64
	nextHandle atomic.Uint64

	strict        bool
	misuses       atomic.Uint64
	constructHook func(ctx context.Context, t objsys.TypeID, props objsys.Props) error

	// the System primitives are ctx-less (they mirror a native ABI), so
	// this one cannot be an xsync locker
	finalizedLocker sync.Mutex
	finalized       []Finalization
}

var _ objsys.System = (*System)(nil)

func New(opts ...Option) *System {
	cfg := Options(opts).config()
	return &System{
		typeTable: &typeTable{
			byID:   map[objsys.TypeID]*typeInfo{},
			byName: map[string]objsys.TypeID{},
		},
		strict:        cfg.Strict,
		constructHook: cfg.ConstructHook,
	}
}

// RegisterType adds a type to the registry and returns its TypeID.
func (s *System) RegisterType(
	ctx context.Context,
	name string,
	opts ...TypeOption,
) (objsys.TypeID, error) {
	tCfg := TypeOptions(opts).config()
	return xsync.DoR2(ctx, &s.registryLocker, func() (objsys.TypeID, error) {
		old := s.table()
		if _, ok := old.byName[name]; ok {
			return objsys.TypeInvalid, ErrTypeNameTaken{Name: name}
		}

		info := &typeInfo{
			ID:               objsys.TypeID(s.nextTypeID.Add(1)),
			Name:             name,
			Parent:           tCfg.Parent,
			InitiallyUnowned: tCfg.InitiallyUnowned,
			SinksOnConstruct: tCfg.SinksOnConstruct,
			Boxed:            tCfg.Boxed,
		}
		if info.Parent != objsys.TypeInvalid {
			parent, ok := old.byID[info.Parent]
			if !ok {
				return objsys.TypeInvalid, ErrUnknownType{Type: info.Parent}
			}
			if parent.Boxed != info.Boxed {
				return objsys.TypeInvalid, ErrBoxedMismatch{Parent: parent.Name, Name: name}
			}
			info.InitiallyUnowned = info.InitiallyUnowned || parent.InitiallyUnowned
		}

		// the table is immutable: readers load it atomically and never
		// see a half-built registry
		next := &typeTable{
			byID:   make(map[objsys.TypeID]*typeInfo, len(old.byID)+1),
			byName: make(map[string]objsys.TypeID, len(old.byName)+1),
		}
		for id, ti := range old.byID {
			next.byID[id] = ti
		}
		for n, id := range old.byName {
			next.byName[n] = id
		}
		next.byID[info.ID] = info
		next.byName[name] = info.ID
		xatomic.SwapPointer(&s.typeTable, next)
		return info.ID, nil
	})
}

func (s *System) table() *typeTable {
	return xatomic.LoadPointer(&s.typeTable)
}

// TypeByName resolves a registered type by its name.
func (s *System) TypeByName(name string) objsys.TypeID {
	if id, ok := s.table().byName[name]; ok {
		return id
	}
	return objsys.TypeInvalid
}

func (s *System) TypeOf(h types.Handle) objsys.TypeID {
	ins, ok := s.instances.Load(h)
	if !ok {
		return objsys.TypeInvalid
	}
	return ins.Type
}

func (s *System) TypeName(t objsys.TypeID) string {
	if info, ok := s.table().byID[t]; ok {
		return info.Name
	}
	return ""
}

func (s *System) IsA(h types.Handle, t objsys.TypeID) bool {
	ins, ok := s.instances.Load(h)
	if !ok {
		return false
	}
	table := s.table()
	for id := ins.Type; id != objsys.TypeInvalid; {
		if id == t {
			return true
		}
		info, ok := table.byID[id]
		if !ok {
			return false
		}
		id = info.Parent
	}
	return false
}

func (s *System) Ref(h types.Handle) types.Handle {
	ins, ok := s.instances.Load(h)
	if !ok {
		s.misuse("ref of an unknown handle %v", h)
		return h
	}
	ins.RefCount.Add(1)
	return h
}

func (s *System) Unref(h types.Handle) {
	ins, ok := s.instances.Load(h)
	if !ok {
		s.misuse("unref of an unknown handle %v (double free?)", h)
		return
	}
	switch n := ins.RefCount.Add(-1); {
	case n == 0:
		s.destroy(ins)
	case n < 0:
		s.misuse("reference count of %v went negative", h)
	}
}

func (s *System) RefCount(h types.Handle) uint64 {
	ins, ok := s.instances.Load(h)
	if !ok {
		return 0
	}
	n := ins.RefCount.Load()
	if n < 0 {
		return 0
	}
	return uint64(n)
}

func (s *System) InitiallyUnowned(h types.Handle) bool {
	ins, ok := s.instances.Load(h)
	if !ok {
		return false
	}
	info, ok := s.table().byID[ins.Type]
	return ok && info.InitiallyUnowned
}

func (s *System) RefSink(h types.Handle) types.Handle {
	ins, ok := s.instances.Load(h)
	if !ok {
		s.misuse("ref_sink of an unknown handle %v", h)
		return h
	}
	// claiming the floating reference does not change the count;
	// if somebody already claimed it, this is a plain ref
	if !ins.Floating.CompareAndSwap(true, false) {
		ins.RefCount.Add(1)
	}
	return h
}

// IsFloating reports whether the instance still carries its floating
// reference. Not part of objsys.System; exposed for tests and probes.
func (s *System) IsFloating(h types.Handle) bool {
	ins, ok := s.instances.Load(h)
	if !ok {
		return false
	}
	return ins.Floating.Load()
}

func (s *System) NewObject(
	ctx context.Context,
	t objsys.TypeID,
	props objsys.Props,
) (types.Handle, error) {
	info, ok := s.table().byID[t]
	if !ok {
		return types.HandleNull, ErrUnknownType{Type: t}
	}
	if info.Boxed {
		return types.HandleNull, ErrNotConstructible{Type: t, Name: info.Name}
	}
	if s.constructHook != nil {
		if err := s.constructHook(ctx, t, props); err != nil {
			return types.HandleNull, err
		}
	}

	ins := &instance{
		Handle: types.Handle(s.nextHandle.Add(1)),
		Type:   t,
		Props:  props,
	}
	ins.RefCount.Store(1)
	ins.Floating.Store(info.InitiallyUnowned && !info.SinksOnConstruct)
	s.instances.Store(ins.Handle, ins)
	s.liveCount.Add(1)
	return ins.Handle, nil
}

// NewBoxed allocates a boxed value of type t. Boxed values are not
// refcounted: they live until FreeBoxed.
func (s *System) NewBoxed(t objsys.TypeID) (types.Handle, error) {
	info, ok := s.table().byID[t]
	if !ok {
		return types.HandleNull, ErrUnknownType{Type: t}
	}
	if !info.Boxed {
		return types.HandleNull, ErrNotBoxed{Type: t, Name: info.Name}
	}

	ins := &instance{
		Handle: types.Handle(s.nextHandle.Add(1)),
		Type:   t,
		Boxed:  true,
	}
	ins.RefCount.Store(1)
	s.instances.Store(ins.Handle, ins)
	s.liveCount.Add(1)
	return ins.Handle, nil
}

func (s *System) FreeBoxed(t objsys.TypeID, h types.Handle) {
	ins, ok := s.instances.Load(h)
	if !ok {
		s.misuse("boxed free of an unknown handle %v (double free?)", h)
		return
	}
	if !ins.Boxed {
		s.misuse("boxed free of a non-boxed instance %v", h)
		return
	}
	if ins.Type != t {
		s.misuse("boxed free of %v with a wrong type %d (actual: %d)", h, t, ins.Type)
		return
	}
	switch n := ins.RefCount.Add(-1); {
	case n == 0:
		s.destroy(ins)
	case n < 0:
		s.misuse("boxed value %v freed twice", h)
	}
}

// Props returns the construction parameters the instance was created
// with. Not part of objsys.System; exposed for tests.
func (s *System) Props(h types.Handle) objsys.Props {
	ins, ok := s.instances.Load(h)
	if !ok {
		return nil
	}
	return ins.Props
}

func (s *System) destroy(ins *instance) {
	s.instances.Delete(ins.Handle)
	s.liveCount.Add(-1)

	s.finalizedLocker.Lock()
	defer s.finalizedLocker.Unlock()
	s.finalized = append(s.finalized, Finalization{
		Handle: ins.Handle,
		Type:   ins.Type,
		GoID:   goid.Goid(),
	})
}

// Finalized returns a copy of the finalization log, in destruction order.
func (s *System) Finalized() []Finalization {
	s.finalizedLocker.Lock()
	defer s.finalizedLocker.Unlock()
	result := make([]Finalization, len(s.finalized))
	copy(result, s.finalized)
	return result
}

// LiveCount reports how many instances (objects and boxed values) are
// still alive.
func (s *System) LiveCount() int64 {
	return s.liveCount.Load()
}

// MisuseCount reports how many invalid operations were observed. It is
// only ever non-zero in non-strict mode: in strict mode the first
// misuse panics.
func (s *System) MisuseCount() uint64 {
	return s.misuses.Load()
}

func (s *System) misuse(format string, args ...any) {
	if s.strict {
		panic(fmt.Sprintf(format, args...))
	}
	s.misuses.Add(1)
}

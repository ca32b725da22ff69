// option.go defines functional options for the System and for type
// registration.

package memsys

import (
	"context"

	"github.com/xaionaro-go/objbridge/objsys"
)

type config struct {
	Strict        bool
	ConstructHook func(ctx context.Context, t objsys.TypeID, props objsys.Props) error
}

type Option interface {
	apply(*config)
}

type Options []Option

func (s Options) apply(cfg *config) {
	for _, opt := range s {
		opt.apply(cfg)
	}
}

func (s Options) config() config {
	cfg := config{
		Strict: true,
	}
	s.apply(&cfg)
	return cfg
}

// OptionStrict controls misuse handling: in strict mode (the default)
// a double free or an unknown handle panics, like the native side would
// crash; otherwise misuses are only counted.
type OptionStrict bool

func (opt OptionStrict) apply(cfg *config) {
	cfg.Strict = bool(opt)
}

// OptionConstructHook installs a hook that runs before every NewObject;
// a returned error fails the construction. Intended for failure
// injection in tests.
type OptionConstructHook func(ctx context.Context, t objsys.TypeID, props objsys.Props) error

func (opt OptionConstructHook) apply(cfg *config) {
	cfg.ConstructHook = opt
}

type typeConfig struct {
	Parent           objsys.TypeID
	InitiallyUnowned bool
	SinksOnConstruct bool
	Boxed            bool
}

type TypeOption interface {
	apply(*typeConfig)
}

type TypeOptions []TypeOption

func (s TypeOptions) apply(cfg *typeConfig) {
	for _, opt := range s {
		opt.apply(cfg)
	}
}

func (s TypeOptions) config() typeConfig {
	cfg := typeConfig{}
	s.apply(&cfg)
	return cfg
}

// TypeOptionParent declares the supertype. Inheritance is single:
// a type has at most one parent.
type TypeOptionParent objsys.TypeID

func (opt TypeOptionParent) apply(cfg *typeConfig) {
	cfg.Parent = objsys.TypeID(opt)
}

// TypeOptionInitiallyUnowned marks instances as starting with a
// floating reference. Inherited by subtypes.
type TypeOptionInitiallyUnowned bool

func (opt TypeOptionInitiallyUnowned) apply(cfg *typeConfig) {
	cfg.InitiallyUnowned = bool(opt)
}

// TypeOptionSinksOnConstruct marks an initially-unowned type whose
// constructor claims the floating reference itself, so fresh instances
// come out non-floating.
type TypeOptionSinksOnConstruct bool

func (opt TypeOptionSinksOnConstruct) apply(cfg *typeConfig) {
	cfg.SinksOnConstruct = bool(opt)
}

// TypeOptionBoxed marks a plain (non-refcounted) value type, allocated
// with NewBoxed and released with FreeBoxed.
type TypeOptionBoxed bool

func (opt TypeOptionBoxed) apply(cfg *typeConfig) {
	cfg.Boxed = bool(opt)
}

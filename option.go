// option.go defines functional options for configuring the Bridge.

package objbridge

import (
	"github.com/xaionaro-go/objbridge/mainloop"
	"github.com/xaionaro-go/objbridge/memdbg"
)

type config struct {
	Submitter    mainloop.Submitter
	QueueSize    uint
	MemDebug     *memdbg.Log
	AutoDispose  bool
	SyncFallback bool
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
		QueueSize:   1024,
		AutoDispose: true,
	}
	s.apply(&cfg)
	return cfg
}

// OptionSubmitter makes the Bridge schedule disposals onto an external
// executor instead of owning a loop. The caller is then responsible for
// serving it and for its lifetime.
type OptionSubmitter struct{ Submitter mainloop.Submitter }

func (opt OptionSubmitter) apply(cfg *config) {
	cfg.Submitter = opt.Submitter
}

// OptionQueueSize sets the owned loop's queue capacity. Ignored when an
// external Submitter is used.
type OptionQueueSize uint

func (opt OptionQueueSize) apply(cfg *config) {
	cfg.QueueSize = uint(opt)
}

// OptionMemDebug overrides the memory-debugging stream (the process-wide
// memdbg.Default() otherwise).
type OptionMemDebug struct{ Log *memdbg.Log }

func (opt OptionMemDebug) apply(cfg *config) {
	cfg.MemDebug = opt.Log
}

// OptionAutoDispose controls whether constructed wrappers get a
// finalizer that releases the native reference when the wrapper is
// collected. Enabled by default; disable it if every release is done
// explicitly.
type OptionAutoDispose bool

func (opt OptionAutoDispose) apply(cfg *config) {
	cfg.AutoDispose = bool(opt)
}

// OptionSyncDisposalFallback makes a disposal whose scheduling failed
// (the loop is closed or gone) run synchronously on the requesting
// goroutine, instead of being counted as dropped. Only safe when the
// object system tolerates destruction on arbitrary threads.
type OptionSyncDisposalFallback bool

func (opt OptionSyncDisposalFallback) apply(cfg *config) {
	cfg.SyncFallback = bool(opt)
}

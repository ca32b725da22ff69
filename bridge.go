// Package objbridge bridges a garbage-collected Go heap and a native
// refcounted object system. Construction may happen on any goroutine,
// but destruction is deferred: release requests are queued as idle tasks
// and executed on a single serving goroutine, because native object
// systems commonly allow destructors (and their user-installed hooks) on
// the main loop thread only.
package objbridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt"
	"github.com/xaionaro-go/objbridge/logger"
	"github.com/xaionaro-go/objbridge/mainloop"
	"github.com/xaionaro-go/objbridge/memdbg"
	"github.com/xaionaro-go/objbridge/objsys"
	"github.com/xaionaro-go/objbridge/types"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"
)

type Bridge struct {
	System    objsys.System
	Submitter mainloop.Submitter

	dbg      *memdbg.Log
	counters *types.Counters

	liveLocker xsync.Mutex
	liveByType xsync.Map[string, *atomic.Int64]

	autoDispose  bool
	syncFallback bool

	// baseCtx carries the observability tooling into finalizers and
	// into the owned loop; it is detached from the caller's cancellation
	baseCtx context.Context

	ownedLoop *mainloop.Loop
	serveWG   sync.WaitGroup
	serveErr  atomic.Error
	closeOnce sync.Once
	closer    *astikit.Closer
}

var (
	_ types.Closer = (*Bridge)(nil)
	_ types.Syncer = (*Bridge)(nil)
)

// New wires a Bridge over the given object system.
//
// Unless OptionSubmitter provides an external executor, the Bridge owns
// a mainloop.Loop of its own, served on a background goroutine and torn
// down by Close.
func New(ctx context.Context, system objsys.System, opts ...Option) *Bridge {
	cfg := Options(opts).config()
	ctx = belt.WithField(ctx, "module", "objbridge")

	b := &Bridge{
		System:       system,
		dbg:          cfg.MemDebug,
		counters:     types.NewCounters(),
		autoDispose:  cfg.AutoDispose,
		syncFallback: cfg.SyncFallback,
		baseCtx:      xcontext.DetachDone(ctx),
		closer:       astikit.NewCloser(),
	}
	if b.dbg == nil {
		b.dbg = memdbg.Default()
	}

	if cfg.Submitter != nil {
		b.Submitter = cfg.Submitter
		return b
	}

	loop := mainloop.New(mainloop.OptionQueueSize(cfg.QueueSize))
	b.ownedLoop = loop
	b.Submitter = loop
	serveCtx := b.baseCtx
	b.serveWG.Add(1)
	observability.Go(serveCtx, func(ctx context.Context) {
		defer b.serveWG.Done()
		if err := loop.Serve(ctx); err != nil {
			b.serveErr.Store(err)
			logger.Errorf(ctx, "the disposal loop returned an error: %v", err)
		}
	})
	b.closer.Add(func() {
		loop.Close(serveCtx)
		b.serveWG.Wait()
	})
	return b
}

func (b *Bridge) String() string {
	return fmt.Sprintf("Bridge(%T)", b.System)
}

// Loop returns the owned disposal loop, or nil when an external
// Submitter is used.
func (b *Bridge) Loop() *mainloop.Loop {
	return b.ownedLoop
}

// MemDebug returns the memory-debugging stream the Bridge reports to.
func (b *Bridge) MemDebug() *memdbg.Log {
	return b.dbg
}

// Sync waits until every disposal accepted so far has been executed.
func (b *Bridge) Sync(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Sync")
	defer func() { logger.Debugf(ctx, "/Sync: %v", _err) }()

	if b.ownedLoop != nil {
		return b.ownedLoop.Sync(ctx)
	}
	if syncer, ok := b.Submitter.(types.Syncer); ok {
		return syncer.Sync(ctx)
	}
	return ErrNotSyncable{}
}

// Close tears down the owned loop (draining the accepted disposals
// first). Disposal requests arriving afterwards are not silently lost:
// they either fall back to synchronous execution (see
// OptionSyncDisposalFallback) or get loudly counted as dropped.
//
// With an external Submitter there is nothing to tear down.
func (b *Bridge) Close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close: %v", _err) }()

	var err error
	b.closeOnce.Do(func() {
		err = b.closer.Close()
		if err == nil {
			err = b.serveErr.Load()
		}
	})
	return err
}

// liveGauge returns the live-wrapper gauge for a type, creating it on
// first use.
func (b *Bridge) liveGauge(ctx context.Context, typeName string) *atomic.Int64 {
	if gauge, ok := b.liveByType.Load(typeName); ok {
		return gauge
	}
	return xsync.DoR1(ctx, &b.liveLocker, func() *atomic.Int64 {
		if gauge, ok := b.liveByType.Load(typeName); ok {
			return gauge
		}
		gauge := atomic.NewInt64(0)
		b.liveByType.Store(typeName, gauge)
		return gauge
	})
}

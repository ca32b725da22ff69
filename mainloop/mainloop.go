// Package mainloop provides a loop-affine task executor: tasks may be
// submitted from any goroutine, but they all run on the single goroutine
// that called Serve. It exists for native object systems that demand
// main-loop affinity for destruction and other non-thread-safe entry
// points.
package mainloop

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt"
	"github.com/facebookincubator/go-belt/tool/experimental/errmon"
	"github.com/go-ng/xatomic"
	"github.com/phuslu/goid"
	"github.com/xaionaro-go/objbridge/logger"
	"github.com/xaionaro-go/objbridge/types"
	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xsync"
	"go.uber.org/atomic"
)

// Func is one submitted task. It runs on the serving goroutine; when it
// returns true it is scheduled to run again (on a later pass), mirroring
// how idle sources keep themselves alive by returning a continue flag.
type Func func(ctx context.Context) (again bool)

// Submitter accepts tasks for deferred execution on a serving goroutine.
type Submitter interface {
	// SubmitIdle enqueues fn. A nil error means the task was accepted
	// and will be executed exactly once (or repeatedly, if it keeps
	// returning true), even if the loop is closed right afterwards.
	SubmitIdle(ctx context.Context, fn Func) error
}

type Loop struct {
	queue chan Func

	closeOnce  sync.Once
	closedChan chan struct{}

	locker              xsync.Mutex
	isServingValue      bool
	changeChanIsServing *chan struct{}

	serveGoID atomic.Int64

	// submitters mid-flight between their closed-check and the actual
	// send; the drain phase must not finish while this is non-zero
	inFlightSubmits atomic.Int64

	countersStorage *Counters
}

var (
	_ Submitter    = (*Loop)(nil)
	_ types.Closer = (*Loop)(nil)
	_ types.Syncer = (*Loop)(nil)
)

func New(opts ...Option) *Loop {
	cfg := Options(opts).config()
	return &Loop{
		queue:               make(chan Func, cfg.QueueSize),
		closedChan:          make(chan struct{}),
		changeChanIsServing: ptr(make(chan struct{})),
		countersStorage:     NewCounters(),
	}
}

func (l *Loop) String() string {
	return fmt.Sprintf("MainLoop(%p)", l)
}

// SubmitIdle implements Submitter.
//
// It blocks while the queue is full, until ctx is cancelled or the loop
// is closed.
func (l *Loop) SubmitIdle(ctx context.Context, fn Func) (_err error) {
	logger.Tracef(ctx, "SubmitIdle")
	defer func() { logger.Tracef(ctx, "/SubmitIdle: %v", _err) }()

	if fn == nil {
		return ErrNilFunc{}
	}

	l.inFlightSubmits.Inc()
	defer l.inFlightSubmits.Dec()
	if l.IsClosed() {
		return ErrClosed{}
	}

	select {
	case l.queue <- fn:
		l.countersStorage.Submitted.Inc()
		l.countersStorage.LastSubmitAt.Store(time.Now())
		return nil
	case <-l.closedChan:
		return ErrClosed{}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Serve runs the loop on the calling goroutine until the loop is closed
// or ctx is cancelled. Either way the already accepted tasks are drained
// before returning.
func (l *Loop) Serve(ctx context.Context) (_err error) {
	ctx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()
	ctx = belt.WithField(ctx, "main_loop", fmt.Sprintf("%p", l))
	logger.Debugf(ctx, "Serve")
	defer func() { logger.Debugf(ctx, "/Serve: %v", _err) }()
	logger.Tracef(ctx, "Serve: %s", debug.Stack())
	defer func() { errmon.ObserveRecoverCtx(ctx, recover()) }()

	if err := xsync.DoR1(ctx, &l.locker, func() error {
		if l.isServingValue {
			return ErrAlreadyServing{}
		}
		l.isServingValue = true
		l.serveGoID.Store(goid.Goid())
		close(*xatomic.SwapPointer(&l.changeChanIsServing, ptr(make(chan struct{}))))
		return nil
	}); err != nil {
		return err
	}
	defer l.locker.Do(ctx, func() {
		l.isServingValue = false
		l.serveGoID.Store(0)
		close(*xatomic.SwapPointer(&l.changeChanIsServing, ptr(make(chan struct{}))))
	})

	var pending []Func
	for {
		if len(pending) > 0 {
			select {
			case fn := <-l.queue:
				pending = l.runTask(ctx, fn, pending)
			case <-l.closedChan:
				l.drain(ctx, pending)
				return nil
			case <-ctx.Done():
				l.Close(ctx)
				l.drain(ctx, pending)
				return ctx.Err()
			default:
				pending = l.runPendingPass(ctx, pending)
			}
			continue
		}

		select {
		case fn := <-l.queue:
			pending = l.runTask(ctx, fn, pending)
		case <-l.closedChan:
			l.drain(ctx, pending)
			return nil
		case <-ctx.Done():
			l.Close(ctx)
			l.drain(ctx, pending)
			return ctx.Err()
		}
	}
}

// runTask executes one task, containing its panic, and returns the
// updated repeat list.
func (l *Loop) runTask(ctx context.Context, fn Func, pending []Func) []Func {
	if l.runTaskOnce(ctx, fn) {
		l.countersStorage.Requeued.Inc()
		pending = append(pending, fn)
	}
	return pending
}

func (l *Loop) runTaskOnce(ctx context.Context, fn Func) (again bool) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		l.countersStorage.Panicked.Inc()
		l.countersStorage.LastPanic.Store(fmt.Errorf("%v", r))
		logger.Errorf(ctx, "a task panicked: %v:\n%s\n", r, debug.Stack())
		again = false
	}()
	again = fn(ctx)
	l.countersStorage.Executed.Inc()
	l.countersStorage.LastExecuteAt.Store(time.Now())
	return
}

// runPendingPass runs every repeating task once and keeps the ones that
// still want to continue.
func (l *Loop) runPendingPass(ctx context.Context, pending []Func) []Func {
	keep := pending[:0]
	for _, fn := range pending {
		if l.runTaskOnce(ctx, fn) {
			l.countersStorage.Requeued.Inc()
			keep = append(keep, fn)
		}
	}
	return keep
}

// drain runs everything that was accepted before (or while) the loop was
// being closed. Repeating tasks get their current pass but are not
// rescheduled; Discarded counts the ones whose final pass still asked
// to continue.
func (l *Loop) drain(ctx context.Context, pending []Func) {
	// accepted tasks run even if the serve ctx is already cancelled
	ctx = xcontext.DetachDone(ctx)
	logger.Debugf(ctx, "drain")
	defer logger.Debugf(ctx, "/drain")

	for {
		select {
		case fn := <-l.queue:
			if l.runTaskOnce(ctx, fn) {
				l.countersStorage.Discarded.Inc()
			}
			continue
		default:
		}

		// a submitter might have already decided to enqueue, but not
		// have reached the channel yet
		if l.inFlightSubmits.Load() != 0 {
			runtime.Gosched()
			continue
		}

		select {
		case fn := <-l.queue:
			if l.runTaskOnce(ctx, fn) {
				l.countersStorage.Discarded.Inc()
			}
			continue
		default:
		}
		break
	}

	for _, fn := range pending {
		if l.runTaskOnce(ctx, fn) {
			l.countersStorage.Discarded.Inc()
		}
	}
}

// Sync submits a barrier task and waits until it executes, which means
// everything submitted before it has been executed as well.
func (l *Loop) Sync(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Sync")
	defer func() { logger.Debugf(ctx, "/Sync: %v", _err) }()

	done := make(chan struct{})
	if err := l.SubmitIdle(ctx, func(ctx context.Context) bool {
		close(done)
		return false
	}); err != nil {
		return fmt.Errorf("unable to submit the barrier task: %w", err)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new tasks. The serving goroutine (if any) drains
// the accepted ones and returns. Close never waits for that to happen.
func (l *Loop) Close(ctx context.Context) error {
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close") }()
	l.closeOnce.Do(func() {
		close(l.closedChan)
	})
	return nil
}

func (l *Loop) CloseChan() <-chan struct{} {
	return l.closedChan
}

func (l *Loop) IsClosed() bool {
	select {
	case <-l.closedChan:
		return true
	default:
		return false
	}
}

func (l *Loop) IsServing() bool {
	return xsync.DoR1(context.TODO(), &l.locker, func() bool {
		return l.isServingValue
	})
}

// ServingChangeChan returns a channel that gets closed when the serving
// state flips (in either direction). Grab the channel, re-check
// IsServing, then wait.
func (l *Loop) ServingChangeChan() <-chan struct{} {
	return *xatomic.LoadPointer(&l.changeChanIsServing)
}

// ServeGoID reports the goroutine running Serve (0 when not serving).
// Diagnostic only.
func (l *Loop) ServeGoID() int64 {
	return l.serveGoID.Load()
}

// WaitForServing blocks until some goroutine is serving the loop.
func (l *Loop) WaitForServing(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "WaitForServing")
	defer func() { logger.Tracef(ctx, "/WaitForServing: %v", _err) }()

	for {
		ch := l.ServingChangeChan()
		if l.IsServing() {
			return nil
		}
		if l.IsClosed() {
			return ErrClosed{}
		}
		select {
		case <-ch:
		case <-l.closedChan:
			return ErrClosed{}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Loop) GetCountersPtr() *Counters {
	return l.countersStorage
}

func (l *Loop) GetStats() *Statistics {
	return l.countersStorage.ToStats()
}

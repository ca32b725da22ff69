// Package memdbg implements the memory-debugging stream: a process-wide
// raw log of native object lifecycle events (construction, unref, boxed
// free, disown), enabled via an environment variable.
//
// It is intentionally not routed through the structured logger: the
// stream mirrors the native side's own allocation tracing, so lines are
// written verbatim and multi-line records are kept contiguous even when
// multiple goroutines trace concurrently.
package memdbg

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/xaionaro-go/typing"
	"github.com/xaionaro-go/xsync"
)

// EnvVarDefault is the environment variable consulted by Default().
//
// The variable being present enables the stream, even if its value
// is empty.
const EnvVarDefault = "OBJBRIDGE_DEBUG_MEM"

type Log struct {
	writer io.Writer
	envVar string

	enabledOnce     sync.Once
	enabledValue    bool
	enabledOverride typing.Optional[bool]

	// reentrant on purpose: a Record may Logf (or Record) again from
	// the same goroutine without deadlocking
	locker xsync.Gorex
}

var (
	defaultLog     *Log
	defaultLogOnce sync.Once
)

// Default returns the process-wide instance, configured from the
// environment (see EnvVarDefault).
func Default() *Log {
	defaultLogOnce.Do(func() {
		defaultLog = New()
	})
	return defaultLog
}

func New(opts ...Option) *Log {
	cfg := Options(opts).config()
	return &Log{
		writer:          cfg.Writer,
		envVar:          cfg.EnvVar,
		enabledOverride: cfg.Enabled,
	}
}

// Enabled reports whether the stream is active.
//
// The answer is computed on the first call and never changes afterwards,
// so flipping the environment variable mid-process has no effect.
func (l *Log) Enabled() bool {
	l.enabledOnce.Do(func() {
		if l.enabledOverride.IsSet() {
			l.enabledValue = l.enabledOverride.Get()
			return
		}
		_, l.enabledValue = os.LookupEnv(l.envVar)
	})
	return l.enabledValue
}

// Logf appends one formatted message to the stream. No newline is added:
// the stream is raw, callers terminate their own lines.
//
// When the stream is disabled this is a no-op.
func (l *Log) Logf(ctx context.Context, format string, args ...any) {
	if !l.Enabled() {
		return
	}
	l.locker.Lock()
	defer l.locker.Unlock()
	fmt.Fprintf(l.writer, format, args...)
}

// Write appends raw bytes to the stream (no formatting, no newline).
//
// When the stream is disabled this is a no-op.
func (l *Log) Write(ctx context.Context, b []byte) {
	if !l.Enabled() {
		return
	}
	l.locker.Lock()
	defer l.locker.Unlock()
	l.writer.Write(b)
}

// Record runs fn while holding the stream lock, so that every line fn
// logs forms one contiguous record. The lock is reentrant, hence fn may
// log (or record) freely; but it also means fn must not hand the
// goroutine over to code that blocks on another recording goroutine.
//
// When the stream is disabled fn runs directly, without touching the
// lock at all.
func (l *Log) Record(ctx context.Context, fn func(ctx context.Context)) {
	if !l.Enabled() {
		fn(ctx)
		return
	}
	l.locker.Lock()
	defer l.locker.Unlock()
	fn(ctx)
}

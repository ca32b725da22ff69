package mainloop

import (
	"time"

	"go.uber.org/atomic"
)

type Statistics struct {
	Submitted     uint64 `json:",omitempty"`
	Executed      uint64 `json:",omitempty"`
	Requeued      uint64 `json:",omitempty"`
	Panicked      uint64 `json:",omitempty"`
	Discarded     uint64 `json:",omitempty"`
	LastSubmitAt  time.Time
	LastExecuteAt time.Time
	LastPanic     string `json:",omitempty"`
}

type Counters struct {
	Submitted atomic.Uint64

	// Executed counts completed runs; a repeating task counts once per
	// pass. Panicked runs are counted separately.
	Executed  atomic.Uint64
	Requeued  atomic.Uint64
	Panicked  atomic.Uint64
	Discarded atomic.Uint64

	LastSubmitAt  atomic.Time
	LastExecuteAt atomic.Time
	LastPanic     atomic.Error
}

func NewCounters() *Counters {
	return &Counters{}
}

func (c *Counters) ToStats() *Statistics {
	stats := &Statistics{
		Submitted:     c.Submitted.Load(),
		Executed:      c.Executed.Load(),
		Requeued:      c.Requeued.Load(),
		Panicked:      c.Panicked.Load(),
		Discarded:     c.Discarded.Load(),
		LastSubmitAt:  c.LastSubmitAt.Load(),
		LastExecuteAt: c.LastExecuteAt.Load(),
	}
	if err := c.LastPanic.Load(); err != nil {
		stats.LastPanic = err.Error()
	}
	return stats
}

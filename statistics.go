package objbridge

import (
	"github.com/xaionaro-go/objbridge/types"
	"go.uber.org/atomic"
)

type Statistics struct {
	types.Statistics

	// Live counts the managed wrappers per type that did not release
	// their reference yet (constructed minus released/disowned/collected).
	// Zero entries are elided, so an empty map means nothing leaked.
	Live map[string]int64 `json:",omitempty"`
}

func (b *Bridge) GetStats() *Statistics {
	stats := &Statistics{
		Statistics: *b.counters.ToStats(),
	}
	b.liveByType.Range(func(typeName string, gauge *atomic.Int64) bool {
		v := gauge.Load()
		if v == 0 {
			return true
		}
		if stats.Live == nil {
			stats.Live = map[string]int64{}
		}
		stats.Live[typeName] = v
		return true
	})
	return stats
}

func (b *Bridge) GetCountersPtr() *types.Counters {
	return b.counters
}

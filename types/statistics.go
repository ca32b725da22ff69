package types

import (
	"sync/atomic"
)

type StatisticsItem struct {
	Count uint64 `json:",omitempty"`
}

func (c StatisticsItem) ToCounters() *CountersItem {
	result := CountersItem{}
	result.Count.Store(c.Count)
	return &result
}

type StatisticsSection struct {
	Requested StatisticsItem `json:",omitempty"`
	Executed  StatisticsItem `json:",omitempty"`
	Fallback  StatisticsItem `json:",omitempty"`
	Dropped   StatisticsItem `json:",omitempty"`
}

type Statistics struct {
	Constructed StatisticsItem `json:",omitempty"`
	Disowned    StatisticsItem `json:",omitempty"`
	Unrefs      StatisticsSection
	BoxedFrees  StatisticsSection
}

type CountersItem struct {
	Count atomic.Uint64
}

func NewCountersItem() *CountersItem {
	return &CountersItem{}
}

func (c *CountersItem) Increment() {
	c.Count.Add(1)
}

func (c *CountersItem) ToStats() StatisticsItem {
	return StatisticsItem{
		Count: c.Count.Load(),
	}
}

type CountersSection struct {
	Requested *CountersItem
	Executed  *CountersItem
	Fallback  *CountersItem
	Dropped   *CountersItem
}

func NewCountersSection() CountersSection {
	return CountersSection{
		Requested: NewCountersItem(),
		Executed:  NewCountersItem(),
		Fallback:  NewCountersItem(),
		Dropped:   NewCountersItem(),
	}
}

func (s *CountersSection) ToStats() StatisticsSection {
	return StatisticsSection{
		Requested: s.Requested.ToStats(),
		Executed:  s.Executed.ToStats(),
		Fallback:  s.Fallback.ToStats(),
		Dropped:   s.Dropped.ToStats(),
	}
}

// Pending reports how many disposals were accepted but did not run yet.
func (s *CountersSection) Pending() uint64 {
	requested := s.Requested.Count.Load()
	finished := s.Executed.Count.Load() + s.Fallback.Count.Load() + s.Dropped.Count.Load()
	if finished > requested {
		return 0
	}
	return requested - finished
}

type Counters struct {
	Constructed *CountersItem
	Disowned    *CountersItem
	Unrefs      CountersSection
	BoxedFrees  CountersSection
}

func NewCounters() *Counters {
	return &Counters{
		Constructed: NewCountersItem(),
		Disowned:    NewCountersItem(),
		Unrefs:      NewCountersSection(),
		BoxedFrees:  NewCountersSection(),
	}
}

func (c *Counters) ToStats() *Statistics {
	return &Statistics{
		Constructed: c.Constructed.ToStats(),
		Disowned:    c.Disowned.ToStats(),
		Unrefs:      c.Unrefs.ToStats(),
		BoxedFrees:  c.BoxedFrees.ToStats(),
	}
}

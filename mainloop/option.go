// option.go defines functional options for configuring the loop.

package mainloop

type config struct {
	QueueSize uint
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
		QueueSize: 1024,
	}
	s.apply(&cfg)
	return cfg
}

// OptionQueueSize sets the task queue capacity. Submitters block (with
// their ctx) once the queue is full.
type OptionQueueSize uint

func (opt OptionQueueSize) apply(cfg *config) {
	cfg.QueueSize = uint(opt)
}

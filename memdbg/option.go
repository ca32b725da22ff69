// option.go defines functional options for configuring the debug stream.

package memdbg

import (
	"io"
	"os"

	"github.com/xaionaro-go/typing"
)

type config struct {
	Writer  io.Writer
	EnvVar  string
	Enabled typing.Optional[bool]
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
		Writer: os.Stderr,
		EnvVar: EnvVarDefault,
	}
	s.apply(&cfg)
	return cfg
}

// OptionWriter redirects the stream (stderr is the default).
type OptionWriter struct{ Writer io.Writer }

func (opt OptionWriter) apply(cfg *config) {
	cfg.Writer = opt.Writer
}

// OptionEnvVar overrides which environment variable gates the stream.
type OptionEnvVar string

func (opt OptionEnvVar) apply(cfg *config) {
	cfg.EnvVar = string(opt)
}

// OptionEnabled forces the stream on or off, bypassing the environment.
type OptionEnabled bool

func (opt OptionEnabled) apply(cfg *config) {
	cfg.Enabled = typing.Opt(bool(opt))
}

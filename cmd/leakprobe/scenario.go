package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Scenario is the soak profile: how many workers hammer the bridge and
// what mix of allocations each of them does.
type Scenario struct {
	Workers          int `toml:"workers"`
	ObjectsPerWorker int `toml:"objects_per_worker"`
	BoxedPerWorker   int `toml:"boxed_per_worker"`

	// DisownPercent is the share of constructed objects (0..100) whose
	// ownership is handed over to a simulated native consumer instead
	// of being released through the bridge.
	DisownPercent int `toml:"disown_percent"`
}

func defaultScenario() Scenario {
	return Scenario{
		Workers:          8,
		ObjectsPerWorker: 10000,
		BoxedPerWorker:   2000,
		DisownPercent:    10,
	}
}

// loadScenario overlays a TOML file over the defaults.
func loadScenario(path string) (Scenario, error) {
	scenario := defaultScenario()
	if _, err := toml.DecodeFile(path, &scenario); err != nil {
		return Scenario{}, fmt.Errorf("unable to load the scenario from '%s': %w", path, err)
	}
	if err := scenario.Validate(); err != nil {
		return Scenario{}, err
	}
	return scenario, nil
}

func (s Scenario) Validate() error {
	if s.Workers <= 0 {
		return fmt.Errorf("'workers' must be positive, got %d", s.Workers)
	}
	if s.ObjectsPerWorker < 0 {
		return fmt.Errorf("'objects_per_worker' must not be negative, got %d", s.ObjectsPerWorker)
	}
	if s.BoxedPerWorker < 0 {
		return fmt.Errorf("'boxed_per_worker' must not be negative, got %d", s.BoxedPerWorker)
	}
	if s.DisownPercent < 0 || s.DisownPercent > 100 {
		return fmt.Errorf("'disown_percent' must be within 0..100, got %d", s.DisownPercent)
	}
	return nil
}

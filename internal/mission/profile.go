package mission

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Flight mode labels used by the built-in profiles.
const (
	ModeStabilize = "STABILIZE"
	ModeGuided    = "GUIDED"
	ModeLoiter    = "LOITER"
	ModeRTL       = "RTL"
)

// Profile is a canned mission: an ordered flight-mode schedule keyed on the
// sample index.
type Profile struct {
	Name        string  `yaml:"name,omitempty"`
	Description string  `yaml:"description,omitempty"`
	Cycle       uint64  `yaml:"cycle,omitempty"`
	Phases      []Phase `yaml:"phases"`
}

// Phase reports Mode for every index below Until. The last phase has no
// upper bound and its Until is ignored.
type Phase struct {
	Mode  string `yaml:"mode"`
	Until uint64 `yaml:"until,omitempty"`
}

// Load reads a YAML profile definition from disk.
func Load(path string) (*Profile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates a YAML profile.
func Parse(b []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks that phases are non-empty and strictly increasing.
func (p *Profile) Validate() error {
	if len(p.Phases) == 0 {
		return fmt.Errorf("profile %q: no phases", p.Name)
	}
	var prev uint64
	for i, ph := range p.Phases {
		if ph.Mode == "" {
			return fmt.Errorf("profile %q: phase %d has no mode", p.Name, i)
		}
		if i == len(p.Phases)-1 {
			break
		}
		if ph.Until <= prev {
			return fmt.Errorf("profile %q: phase %d ends at %d, not after %d", p.Name, i, ph.Until, prev)
		}
		prev = ph.Until
	}
	if p.Cycle > 0 && p.Cycle <= prev {
		return fmt.Errorf("profile %q: cycle %d shorter than schedule", p.Name, p.Cycle)
	}
	return nil
}

// ModeAt returns the flight mode reported at sample index n.
func (p *Profile) ModeAt(n uint64) string {
	if p.Cycle > 0 {
		n %= p.Cycle
	}
	last := len(p.Phases) - 1
	for i, ph := range p.Phases {
		if i == last || n < ph.Until {
			return ph.Mode
		}
	}
	return ""
}

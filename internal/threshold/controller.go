// Package threshold implements the adaptive retrieval threshold.
//
// Every answered question moves the threshold by a fixed step: down when the
// answer cited at least two distinct sources, up otherwise. The value never
// leaves [Min, Max].
package threshold

import (
	"fmt"
	"math"
	"sync"
)

// MinDistinctSources is the number of distinct source URLs that makes an answer a success.
const MinDistinctSources = 2

// Config bounds and paces the controller.
type Config struct {
	Min     float64 `yaml:"min" json:"min"`
	Max     float64 `yaml:"max" json:"max"`
	Step    float64 `yaml:"step" json:"step"`
	Initial float64 `yaml:"initial" json:"initial"`
}

// DefaultConfig returns bounds [0.05, 0.5], step 0.02 and initial value 0.1.
func DefaultConfig() Config {
	return Config{Min: 0.05, Max: 0.5, Step: 0.02, Initial: 0.1}
}

// Validate checks that the bounds are ordered and the step is non-negative.
func (c Config) Validate() error {
	if math.IsNaN(c.Min) || math.IsNaN(c.Max) || c.Min > c.Max {
		return fmt.Errorf("threshold bounds [%v, %v] are not ordered", c.Min, c.Max)
	}
	if c.Step < 0 {
		return fmt.Errorf("threshold step %v is negative", c.Step)
	}
	return nil
}

// Outcome describes one controller transition.
type Outcome struct {
	Success bool    `json:"success"`
	Before  float64 `json:"before"`
	After   float64 `json:"after"`
}

// Controller holds the process-wide threshold. It is safe for concurrent use.
type Controller struct {
	cfg   Config
	mu    sync.Mutex
	value float64
}

// New creates a controller at cfg.Initial, clamped to the bounds.
func New(cfg Config) *Controller {
	c := &Controller{cfg: cfg}
	c.value = c.clamp(cfg.Initial)
	return c
}

// Value returns the current threshold.
func (c *Controller) Value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Config returns the controller configuration.
func (c *Controller) Config() Config { return c.cfg }

// Observe applies the transition for an answer citing sources.
func (c *Controller) Observe(sources []string) Outcome {
	return c.Record(IsSuccess(sources))
}

// Record applies the transition for a known success signal.
func (c *Controller) Record(success bool) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	before := c.value
	if success {
		c.value = c.clamp(c.value - c.cfg.Step)
	} else {
		c.value = c.clamp(c.value + c.cfg.Step)
	}
	return Outcome{Success: success, Before: before, After: c.value}
}

// Restore sets the threshold from a previously recorded value, clamped.
func (c *Controller) Restore(v float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if math.IsNaN(v) {
		return c.value
	}
	c.value = c.clamp(v)
	return c.value
}

// Nudge shifts the threshold by delta, clamped, and returns the outcome.
func (c *Controller) Nudge(delta float64) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	before := c.value
	c.value = c.clamp(c.value + delta)
	return Outcome{Success: delta <= 0, Before: before, After: c.value}
}

func (c *Controller) clamp(v float64) float64 {
	return math.Max(c.cfg.Min, math.Min(c.cfg.Max, v))
}

// IsSuccess reports whether sources hold at least MinDistinctSources distinct non-empty URLs.
func IsSuccess(sources []string) bool {
	return len(Distinct(sources)) >= MinDistinctSources
}

// Distinct returns the non-empty entries of sources in first-seen order.
func Distinct(sources []string) []string {
	seen := make(map[string]struct{}, len(sources))
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

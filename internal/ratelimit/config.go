// Package ratelimit caps how many bridge messages of each type the host
// accepts per time window.
package ratelimit

import "time"

// Limit is the rate limit for one message type.
// Zero values mean no limit.
type Limit struct {
	MaxRequests int           `yaml:"max_requests" json:"max_requests"`
	Window      time.Duration `yaml:"window" json:"window"`
}

// Config maps message types to their limits. The key "*" applies to
// types without their own entry.
type Config map[string]*Limit

// HasLimits returns true if any category has a configured limit.
func (c Config) HasLimits() bool {
	for _, l := range c {
		if l.active() {
			return true
		}
	}
	return false
}

func (c Config) limitFor(category string) *Limit {
	if l := c[category]; l != nil {
		return l
	}
	return c["*"]
}

func (l *Limit) active() bool {
	return l != nil && l.MaxRequests > 0 && l.Window > 0
}

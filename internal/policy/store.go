package policy

import (
	"sync/atomic"
)

// Store holds the active policy config and its hash. Readers always see a
// complete config; Swap replaces it atomically.
type Store struct {
	current atomic.Pointer[snapshot]
}

type snapshot struct {
	cfg  *PolicyConfig
	hash string
}

// NewStore returns a store holding cfg. A nil cfg stores the defaults.
func NewStore(cfg *PolicyConfig, hash string) *Store {
	s := &Store{}
	s.Swap(cfg, hash)
	return s
}

// Config returns the active config. Callers must not mutate it.
func (s *Store) Config() *PolicyConfig {
	return s.current.Load().cfg
}

// Hash returns the hash of the active config as returned by LoadConfigWithHash.
func (s *Store) Hash() string {
	return s.current.Load().hash
}

// Thresholds resolves the active thresholds for mode.
func (s *Store) Thresholds(mode Mode) Thresholds {
	return s.Config().ThresholdsFor(mode)
}

// Swap installs a new config.
func (s *Store) Swap(cfg *PolicyConfig, hash string) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s.current.Store(&snapshot{cfg: cfg, hash: hash})
}

// Reload loads path and installs it. On error the active config is kept.
func (s *Store) Reload(path string) error {
	cfg, hash, err := LoadConfigWithHash(path)
	if err != nil {
		return err
	}
	s.Swap(cfg, hash)
	return nil
}

package config

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNoActiveConfig is returned when a caller needs the active configuration
// and none exists. Surfaced, never swallowed.
var ErrNoActiveConfig = errors.New("no active detection configuration")

// ErrConfigNotFound is returned for lookups of unknown configuration IDs.
var ErrConfigNotFound = errors.New("detection configuration not found")

// Store is an in-memory configuration registry holding the single-active
// invariant: Activate atomically deactivates every other configuration.
type Store struct {
	mu      sync.RWMutex
	nextID  int
	configs map[int]*DetectionConfig
}

// NewStore creates an empty configuration store.
func NewStore() *Store {
	return &Store{
		nextID:  1,
		configs: make(map[int]*DetectionConfig),
	}
}

// NewSeededStore creates a store populated with the preset configurations.
// The "Default Combined" preset starts active.
func NewSeededStore() *Store {
	s := NewStore()
	for _, cfg := range Presets() {
		s.mustCreate(cfg)
	}
	return s
}

func (s *Store) mustCreate(cfg *DetectionConfig) {
	if _, err := s.Create(cfg); err != nil {
		panic(fmt.Sprintf("seeding preset config %q: %v", cfg.Name, err))
	}
}

// Create validates and stores a configuration, assigning its ID. If the new
// configuration is marked active, all others are deactivated.
func (s *Store) Create(cfg *DetectionConfig) (int, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *cfg
	clone.ID = s.nextID
	s.nextID++

	if clone.Active {
		for _, other := range s.configs {
			other.Active = false
		}
	}

	s.configs[clone.ID] = &clone
	return clone.ID, nil
}

// Get returns a copy of the configuration with the given ID.
func (s *Store) Get(id int) (*DetectionConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[id]
	if !ok {
		return nil, ErrConfigNotFound
	}

	clone := *cfg
	return &clone, nil
}

// List returns copies of all configurations.
func (s *Store) List() []*DetectionConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*DetectionConfig, 0, len(s.configs))
	for _, cfg := range s.configs {
		clone := *cfg
		out = append(out, &clone)
	}
	return out
}

// Update replaces the configuration with the given ID after validation.
// The active flag is managed through Activate and is preserved here.
func (s *Store) Update(id int, cfg *DetectionConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.configs[id]
	if !ok {
		return ErrConfigNotFound
	}

	clone := *cfg
	clone.ID = id
	clone.Active = existing.Active
	s.configs[id] = &clone
	return nil
}

// Delete removes a configuration. Deleting the active configuration leaves
// the store with no active entry; callers see ErrNoActiveConfig until
// another is activated.
func (s *Store) Delete(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.configs[id]; !ok {
		return ErrConfigNotFound
	}

	delete(s.configs, id)
	return nil
}

// Activate marks one configuration active and every other inactive, in a
// single critical section.
func (s *Store) Activate(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.configs[id]
	if !ok {
		return ErrConfigNotFound
	}

	for _, cfg := range s.configs {
		cfg.Active = false
	}
	target.Active = true
	return nil
}

// Active returns a copy of the currently active configuration.
func (s *Store) Active() (*DetectionConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, cfg := range s.configs {
		if cfg.Active {
			clone := *cfg
			return &clone, nil
		}
	}

	return nil, ErrNoActiveConfig
}

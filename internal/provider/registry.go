package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Settings is the user-supplied part of a provider configuration: everything
// a preset cannot know ahead of time.
type Settings struct {
	ID               string // defaults to the preset name
	ClientID         string
	ClientSecret     string
	Scopes           []string // empty = preset default
	Checks           []Check  // empty = preset default
	RedirectProxyURL string
}

// Preset builds a full provider Config from user settings.
type Preset func(s Settings) (*Config, error)

// Registry manages provider presets and built configs.
type Registry struct {
	mu      sync.RWMutex
	presets map[string]Preset
	configs map[string]*Config // key: provider id
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		presets: make(map[string]Preset),
		configs: make(map[string]*Config),
	}
}

// RegisterPreset registers a preset under a name.
// Called at startup for each supported provider.
func (r *Registry) RegisterPreset(name string, p Preset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presets[name] = p
}

// Add validates and stores a fully-built provider config.
func (r *Registry) Add(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.configs[cfg.ID]; dup {
		return fmt.Errorf("provider already registered: %s", cfg.ID)
	}
	r.configs[cfg.ID] = cfg
	return nil
}

// AddFromPreset builds a config via a registered preset and stores it.
func (r *Registry) AddFromPreset(preset string, s Settings) error {
	r.mu.RLock()
	p, ok := r.presets[preset]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("preset not registered: %s", preset)
	}
	cfg, err := p(s)
	if err != nil {
		return fmt.Errorf("preset %s: %w", preset, err)
	}
	return r.Add(cfg)
}

// Get returns the config for a provider id.
func (r *Registry) Get(id string) (*Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[id]
	return cfg, ok
}

// IDs returns the registered provider ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.configs))
	for id := range r.configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

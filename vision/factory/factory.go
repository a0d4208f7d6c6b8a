// Package factory maps provider names to constructors and caches provider
// instances per distinct configuration. The factory is built explicitly at
// startup and injected where needed; there is no package-level registry.
package factory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/adaptflow/vision"
)

// Constructor builds a provider from its configuration.
type Constructor func(cfg vision.ProviderConfig, logger *zap.Logger) (vision.Provider, error)

// Factory caches one provider instance per (name, config hash). Identical
// configuration always reuses the same instance; a changed configuration
// produces a new instance without invalidating the old one. The leak is
// bounded by the small number of distinct configurations actually seen.
type Factory struct {
	mu           sync.Mutex
	constructors map[string]Constructor
	instances    map[string]vision.Provider
	logger       *zap.Logger
}

// New creates an empty Factory.
func New(logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		constructors: make(map[string]Constructor),
		instances:    make(map[string]vision.Provider),
		logger:       logger.With(zap.String("component", "provider_factory")),
	}
}

// Register adds a constructor for the named provider. Called once per
// provider variant at startup; re-registering replaces the constructor but
// leaves cached instances alone.
func (f *Factory) Register(name string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[name] = ctor
}

// Known returns the sorted names of all registered provider types.
func (f *Factory) Known() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.constructors))
	for name := range f.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetOrCreate returns the cached instance for the configuration, building
// it under the lock so concurrent callers never construct duplicates.
func (f *Factory) GetOrCreate(name string, cfg vision.ProviderConfig) (vision.Provider, error) {
	key := name + ":" + configHash(cfg)

	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.instances[key]; ok {
		return p, nil
	}

	ctor, ok := f.constructors[name]
	if !ok {
		available := make([]string, 0, len(f.constructors))
		for n := range f.constructors {
			available = append(available, n)
		}
		sort.Strings(available)
		return nil, vision.NewError(vision.ErrProvider, fmt.Sprintf(
			"unsupported provider type %q, available: %s", name, strings.Join(available, ", ")))
	}

	p, err := ctor(cfg, f.logger)
	if err != nil {
		return nil, err
	}
	f.instances[key] = p
	f.logger.Debug("provider instance created",
		zap.String("provider", name),
		zap.Int("cached_instances", len(f.instances)))
	return p, nil
}

// configHash normalizes the fields that distinguish provider instances.
func configHash(cfg vision.ProviderConfig) string {
	canonical := fmt.Sprintf("key=%s|model=%s|base=%s|rpm=%d|timeout=%s",
		cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.RequestsPerMinute, cfg.Timeout)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:8])
}

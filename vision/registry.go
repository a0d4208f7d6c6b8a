package vision

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ProviderConfig holds the runtime configuration for one provider.
type ProviderConfig struct {
	Name              string        `json:"name" yaml:"name"`
	APIKey            string        `json:"api_key" yaml:"api_key"`
	Model             string        `json:"model,omitempty" yaml:"model,omitempty"`
	BaseURL           string        `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	RequestsPerMinute int           `json:"requests_per_minute" yaml:"requests_per_minute"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout"`
	Enabled           bool          `json:"enabled" yaml:"enabled"`
	// Priority orders failover: lower is tried first. Ties keep registration order.
	Priority int `json:"priority" yaml:"priority"`
}

// Registry holds one ProviderConfig per provider and exposes the
// priority-ordered and enabled-only views the orchestrator works from.
// Updates at runtime do not retroactively affect provider instances already
// built by the factory; callers must re-resolve.
type Registry struct {
	mu      sync.RWMutex
	order   []string // registration order, the priority tiebreak
	configs map[string]*ProviderConfig
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{configs: make(map[string]*ProviderConfig)}
}

// NewRegistryFromEnv loads provider configs from process environment.
// A provider whose credential is absent is skipped entirely, which keeps it
// out of the enabled set. Defaults follow the production tuning: gemini is
// the primary (priority 1, enabled), openai and claude ship disabled.
func NewRegistryFromEnv(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := NewRegistry()

	type seed struct {
		name     string
		model    string
		rpm      int
		enabled  bool
		priority int
	}
	for _, s := range []seed{
		{name: "openai", model: "gpt-4.1", rpm: 60, enabled: false, priority: 2},
		// Lower default rate for the primary provider, for reliability.
		{name: "gemini", model: "gemini-2.5-flash", rpm: 15, enabled: true, priority: 1},
		{name: "claude", model: "claude-3-vision", rpm: 60, enabled: false, priority: 3},
	} {
		prefix := envPrefix(s.name)
		key := os.Getenv(prefix + "_API_KEY")
		if key == "" {
			logger.Debug("provider credential absent, skipping",
				zap.String("provider", s.name))
			continue
		}
		r.Add(&ProviderConfig{
			Name:              s.name,
			APIKey:            key,
			Model:             envString(prefix+"_MODEL", s.model),
			RequestsPerMinute: envInt(prefix+"_RPM", s.rpm),
			Timeout:           time.Duration(envInt(prefix+"_TIMEOUT", 60)) * time.Second,
			Enabled:           envBool(prefix+"_ENABLED", s.enabled),
			Priority:          envInt(prefix+"_PRIORITY", s.priority),
		})
		logger.Info("provider configured",
			zap.String("provider", s.name),
			zap.Bool("enabled", envBool(prefix+"_ENABLED", s.enabled)))
	}
	return r
}

func envPrefix(name string) string {
	return strings.ToUpper(name)
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Add registers or replaces a provider configuration.
func (r *Registry) Add(cfg *ProviderConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.configs[cfg.Name]; !exists {
		r.order = append(r.order, cfg.Name)
	}
	c := *cfg
	r.configs[cfg.Name] = &c
}

// Get returns a copy of the named configuration.
func (r *Registry) Get(name string) (ProviderConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[name]
	if !ok {
		return ProviderConfig{}, false
	}
	return *cfg, true
}

// Remove drops a provider configuration.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.configs[name]; !ok {
		return
	}
	delete(r.configs, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Update mutates fields of an existing configuration in place. The change
// only affects providers resolved through the factory afterwards.
func (r *Registry) Update(name string, fn func(*ProviderConfig)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.configs[name]
	if !ok {
		return false
	}
	fn(cfg)
	return true
}

// Enabled returns the names of enabled providers in registration order.
func (r *Registry) Enabled() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, name := range r.order {
		if r.configs[name].Enabled {
			out = append(out, name)
		}
	}
	return out
}

// ByPriority returns enabled provider names ordered by ascending priority.
// Equal priorities keep registration order (stable sort).
func (r *Registry) ByPriority() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, name := range r.order {
		if r.configs[name].Enabled {
			out = append(out, name)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return r.configs[out[i]].Priority < r.configs[out[j]].Priority
	})
	return out
}

// Default returns the highest-priority enabled provider, if any.
func (r *Registry) Default() (string, bool) {
	names := r.ByPriority()
	if len(names) == 0 {
		return "", false
	}
	return names[0], true
}

// Names returns all registered provider names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Package manager orchestrates vision providers: it resolves instances
// through the factory, rate-limits and retries each attempt, fails over
// across the enabled providers in priority order, and tracks per-provider
// health counters.
package manager

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/adaptflow/internal/metrics"
	"github.com/BaSui01/adaptflow/vision"
	"github.com/BaSui01/adaptflow/vision/cache"
	"github.com/BaSui01/adaptflow/vision/factory"
	"github.com/BaSui01/adaptflow/vision/retry"
)

// providerStats are the per-provider health counters. Both counters are
// monotonic; error rate is derived at read time.
type providerStats struct {
	requests atomic.Int64
	errors   atomic.Int64
}

// ProviderStats is the read-only snapshot returned by Stats.
type ProviderStats struct {
	Requests  int64   `json:"requests"`
	Errors    int64   `json:"errors"`
	ErrorRate float64 `json:"error_rate"`
}

// Manager is the provider orchestrator.
type Manager struct {
	registry *vision.Registry
	factory  *factory.Factory
	retry    *retry.Handler
	logger   *zap.Logger
	tracer   trace.Tracer

	collector *metrics.Collector
	analyses  *cache.AnalysisCache

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	stats    map[string]*providerStats
}

// Option configures optional manager features.
type Option func(*Manager)

// WithMetrics attaches a Prometheus collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.collector = c }
}

// WithAnalysisCache attaches a result cache for AnalyzeImage.
func WithAnalysisCache(ac *cache.AnalysisCache) Option {
	return func(m *Manager) { m.analyses = ac }
}

// WithRetryHandler replaces the default retry policy.
func WithRetryHandler(h *retry.Handler) Option {
	return func(m *Manager) { m.retry = h }
}

// New creates a Manager over the given registry and factory.
func New(registry *vision.Registry, fac *factory.Factory, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		registry: registry,
		factory:  fac,
		retry:    retry.DefaultHandler(logger),
		logger:   logger.With(zap.String("component", "provider_manager")),
		tracer:   otel.Tracer("adaptflow/vision/manager"),
		limiters: make(map[string]*rate.Limiter),
		stats:    make(map[string]*providerStats),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AnalyzeImage runs full analysis, serving from the cache when one is
// attached. providerName pins a provider; empty selects by priority with
// failover.
func (m *Manager) AnalyzeImage(ctx context.Context, imagePath, providerName string) (*vision.ImageAnalysis, error) {
	return failover(ctx, m, "analyze_image", providerName,
		func(ctx context.Context, p vision.Provider) (*vision.ImageAnalysis, error) {
			if m.analyses != nil {
				key, err := m.analyses.Key(imagePath, p.Name())
				if err == nil {
					if hit, err := m.analyses.Get(ctx, key); err == nil && hit != nil {
						if m.collector != nil {
							m.collector.RecordCacheHit()
						}
						m.logger.Debug("analysis served from cache",
							zap.String("provider", p.Name()), zap.String("image", imagePath))
						return hit, nil
					}
					if m.collector != nil {
						m.collector.RecordCacheMiss()
					}
					analysis, err := p.AnalyzeImage(ctx, imagePath)
					if err != nil {
						return nil, err
					}
					if err := m.analyses.Set(ctx, key, analysis); err != nil {
						m.logger.Warn("failed to cache analysis", zap.Error(err))
					}
					return analysis, nil
				}
			}
			return p.AnalyzeImage(ctx, imagePath)
		})
}

// DetectElements locates visual elements in the image.
func (m *Manager) DetectElements(ctx context.Context, imagePath, providerName string) ([]vision.DetectedElement, error) {
	return failover(ctx, m, "detect_elements", providerName,
		func(ctx context.Context, p vision.Provider) ([]vision.DetectedElement, error) {
			return p.DetectElements(ctx, imagePath)
		})
}

// ModerateContent classifies the image for content safety.
func (m *Manager) ModerateContent(ctx context.Context, imagePath, providerName string) (*vision.ModerationResult, error) {
	return failover(ctx, m, "moderate_content", providerName,
		func(ctx context.Context, p vision.Provider) (*vision.ModerationResult, error) {
			return p.ModerateContent(ctx, imagePath)
		})
}

// ApplyAdaptation produces a new image per the strategy and returns its path.
func (m *Manager) ApplyAdaptation(ctx context.Context, imagePath string, strategy *vision.AdaptationStrategy, providerName string) (string, error) {
	return failover(ctx, m, "apply_adaptation", providerName,
		func(ctx context.Context, p vision.Provider) (string, error) {
			return p.ApplyAdaptation(ctx, imagePath, strategy)
		})
}

// failover drives one logical operation. Pinned mode resolves exactly that
// provider and never falls over. Unpinned mode walks the enabled providers
// in priority order, skipping none and re-trying none; an invalid-image
// error short-circuits the walk since no provider can succeed on it.
func failover[T any](ctx context.Context, m *Manager, operation, pinned string, call func(context.Context, vision.Provider) (T, error)) (T, error) {
	var zero T

	if pinned != "" {
		p, err := m.provider(pinned)
		if err != nil {
			return zero, err
		}
		return attempt(ctx, m, p, operation, call)
	}

	names := m.registry.ByPriority()
	if len(names) == 0 {
		return zero, vision.NewError(vision.ErrServiceUnavailable, "no enabled providers configured")
	}

	var (
		tried   []string
		lastErr error
	)
	for _, name := range names {
		p, err := m.provider(name)
		if err != nil {
			m.logger.Warn("provider unavailable, skipping",
				zap.String("provider", name), zap.Error(err))
			tried = append(tried, name)
			lastErr = err
			continue
		}

		result, err := attempt(ctx, m, p, operation, call)
		if err == nil {
			return result, nil
		}
		if vision.IsCode(err, vision.ErrInvalidImage) {
			return zero, err
		}
		tried = append(tried, name)
		lastErr = err
		if m.collector != nil {
			m.collector.RecordFailover(name)
		}
		m.logger.Warn("provider failed, trying next",
			zap.String("provider", name),
			zap.String("operation", operation),
			zap.Error(err))
	}

	return zero, vision.NewError(vision.ErrProvider,
		fmt.Sprintf("all providers failed for %s: tried [%s]; last error: %v",
			operation, strings.Join(tried, ", "), lastErr)).WithCause(lastErr)
}

// attempt runs one provider through the rate limiter and retry policy,
// recording health counters and metrics for the outcome. An invalid-image
// result does not count against the provider; the input was at fault.
func attempt[T any](ctx context.Context, m *Manager, p vision.Provider, operation string, call func(context.Context, vision.Provider) (T, error)) (T, error) {
	var zero T
	name := p.Name()

	if lim := m.limiter(name); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return zero, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	ctx, span := m.tracer.Start(ctx, "provider."+operation,
		trace.WithAttributes(attribute.String("provider", name)))
	defer span.End()

	st := m.statsFor(name)
	st.requests.Add(1)
	start := time.Now()

	result, err := retry.DoWithResult(m.retry, ctx, func() (T, error) {
		return call(ctx, p)
	})
	elapsed := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
		if !vision.IsCode(err, vision.ErrInvalidImage) {
			st.errors.Add(1)
		}
		span.RecordError(err)
	}
	if m.collector != nil {
		m.collector.RecordProviderRequest(name, operation, status, elapsed)
	}
	if err != nil {
		return zero, err
	}
	return result, nil
}

// provider resolves a registered, enabled provider instance.
func (m *Manager) provider(name string) (vision.Provider, error) {
	cfg, ok := m.registry.Get(name)
	if !ok {
		return nil, vision.NewError(vision.ErrProvider,
			fmt.Sprintf("provider %q is not configured", name))
	}
	if !cfg.Enabled {
		return nil, vision.NewError(vision.ErrProvider,
			fmt.Sprintf("provider %q is disabled", name))
	}
	return m.factory.GetOrCreate(name, cfg)
}

// limiter returns the per-provider rate limiter, creating it on first use.
// Providers without a requests-per-minute budget are unlimited.
func (m *Manager) limiter(name string) *rate.Limiter {
	cfg, ok := m.registry.Get(name)
	if !ok || cfg.RequestsPerMinute <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if lim, ok := m.limiters[name]; ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.RequestsPerMinute)
	m.limiters[name] = lim
	return lim
}

func (m *Manager) statsFor(name string) *providerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stats[name]
	if !ok {
		st = &providerStats{}
		m.stats[name] = st
	}
	return st
}

// Stats returns a snapshot of the health counters for every provider that
// has served at least one request.
func (m *Manager) Stats() map[string]ProviderStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]ProviderStats, len(m.stats))
	for name, st := range m.stats {
		reqs := st.requests.Load()
		errs := st.errors.Load()
		s := ProviderStats{Requests: reqs, Errors: errs}
		if reqs > 0 {
			s.ErrorRate = float64(errs) / float64(reqs)
		}
		out[name] = s
	}
	return out
}

// HealthiestProvider returns the enabled provider with the lowest error
// rate. Providers that have served no requests count as rate zero. Ties go
// to the earlier provider in priority order.
func (m *Manager) HealthiestProvider() (string, bool) {
	names := m.registry.ByPriority()
	if len(names) == 0 {
		return "", false
	}
	stats := m.Stats()
	best := names[0]
	bestRate := errorRate(stats, best)
	for _, name := range names[1:] {
		if r := errorRate(stats, name); r < bestRate {
			best, bestRate = name, r
		}
	}
	return best, true
}

func errorRate(stats map[string]ProviderStats, name string) float64 {
	s, ok := stats[name]
	if !ok || s.Requests == 0 {
		return 0
	}
	return s.ErrorRate
}

// HealthCheck reports, per enabled provider, whether an instance can be
// resolved from its current configuration.
func (m *Manager) HealthCheck() map[string]bool {
	out := make(map[string]bool)
	for _, name := range m.registry.Enabled() {
		_, err := m.provider(name)
		out[name] = err == nil
	}
	return out
}

package taskengine

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/deepnoodle-ai/taskengine/provider"
)

// ProviderCache holds resolved providers for the process lifetime, keyed by
// agent identity. It is an explicit dependency injected into the resolver so
// tests can use a fresh one, rather than a hidden package-level singleton.
type ProviderCache struct {
	mutex     sync.Mutex
	providers map[string]provider.Provider
}

// NewProviderCache returns an empty ProviderCache.
func NewProviderCache() *ProviderCache {
	return &ProviderCache{providers: map[string]provider.Provider{}}
}

func (c *ProviderCache) get(agentID string) (provider.Provider, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	p, ok := c.providers[agentID]
	return p, ok
}

func (c *ProviderCache) set(agentID string, p provider.Provider) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.providers[agentID] = p
}

func (c *ProviderCache) evict(agentID string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.providers, agentID)
}

// ResolverOptions configures a ProviderResolver.
type ResolverOptions struct {
	Cache  *ProviderCache
	Logger *slog.Logger

	// Factory instantiates a provider from a config. Defaults to
	// provider.New. Tests inject fakes here.
	Factory func(cfg provider.Config) (provider.Provider, error)
}

// ProviderResolver picks a provider for an agent from a ranked candidate
// list: first enabled config, in ascending priority order, that instantiates
// and passes its health probe. Resolved providers are cached by agent
// identity for the process lifetime.
type ProviderResolver struct {
	cache   *ProviderCache
	logger  *slog.Logger
	factory func(cfg provider.Config) (provider.Provider, error)
}

// NewProviderResolver creates a resolver, defaulting any unset options.
func NewProviderResolver(opts ResolverOptions) *ProviderResolver {
	if opts.Cache == nil {
		opts.Cache = NewProviderCache()
	}
	if opts.Logger == nil {
		opts.Logger = NewDiscardLogger()
	}
	if opts.Factory == nil {
		opts.Factory = provider.New
	}
	return &ProviderResolver{
		cache:   opts.Cache,
		logger:  opts.Logger,
		factory: opts.Factory,
	}
}

// Resolve returns a provider for the agent. A cached provider that still
// passes its health probe wins immediately; otherwise the stale entry is
// evicted and the candidates are tried in priority order. Construction
// errors (bad credential) are treated as unavailable and the next candidate
// is tried. If every candidate fails, a NO_PROVIDER_AVAILABLE error is
// returned; the caller may substitute a mock provider to keep the
// surrounding workflow non-fatal.
func (r *ProviderResolver) Resolve(ctx context.Context, agentID string, configs []provider.Config) (provider.Provider, error) {
	if cached, ok := r.cache.get(agentID); ok {
		if cached.IsAvailable(ctx) {
			return cached, nil
		}
		r.logger.Warn("cached provider unavailable, re-resolving",
			"agent_id", agentID, "provider", cached.Name())
		r.cache.evict(agentID)
	}

	candidates := make([]provider.Config, 0, len(configs))
	for _, cfg := range configs {
		if cfg.Enabled {
			candidates = append(candidates, cfg)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority < candidates[j].Priority
	})

	for _, cfg := range candidates {
		p, err := r.factory(cfg)
		if err != nil {
			r.logger.Warn("provider construction failed, trying next",
				"agent_id", agentID, "provider", cfg.Name, "error", err)
			continue
		}
		if !p.IsAvailable(ctx) {
			r.logger.Warn("provider unavailable, trying next",
				"agent_id", agentID, "provider", p.Name())
			continue
		}
		r.cache.set(agentID, p)
		r.logger.Info("resolved provider",
			"agent_id", agentID, "provider", p.Name(), "priority", cfg.Priority)
		return p, nil
	}

	return nil, NewExecutionError(CodeNoProviderAvailable,
		"no enabled provider is currently available", true)
}

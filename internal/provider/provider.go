// Package provider binds configured providers to batch engines: one engine
// per provider endpoint, each sending through its own HTTP source wrapped in
// the provider's rate limit and cache.
package provider

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"marketfeed/internal/batch"
	"marketfeed/internal/config"
	"marketfeed/internal/normalize"
	"marketfeed/internal/provider/cache"
	"marketfeed/internal/provider/ratelimit"
	"marketfeed/internal/provider/source"
)

// Registry holds the engines of every enabled provider endpoint.
type Registry struct {
	engines map[string]*batch.Engine // key: provider/endpoint
}

// Build creates a Registry from cfg. Every provider shares hc.
func Build(cfg config.Config, hc source.HTTPClient, logger zerolog.Logger) (*Registry, error) {
	r := &Registry{engines: make(map[string]*batch.Engine)}
	for _, name := range cfg.ProviderNames() {
		p := cfg.Providers[name]
		if p.APIKey == "" && p.APIKeyParam != "" {
			logger.Warn().Str("provider", name).Msg("api key not set")
		}
		norm := normalize.New(p.Aliases)

		for epName, ep := range p.Endpoints {
			engine, err := newEngine(name, p, ep, norm, hc, logger)
			if err != nil {
				return nil, fmt.Errorf("provider %s, endpoint %s: %w", name, epName, err)
			}
			r.engines[key(name, epName)] = engine
			logger.Info().
				Str("provider", name).
				Str("endpoint", epName).
				Str("mode", ep.Mode).
				Int("max_batch_size", ep.MaxBatchSize).
				Msg("endpoint registered")
		}
	}
	return r, nil
}

func newEngine(name string, p config.Provider, ep config.Endpoint, norm *normalize.Normalizer, hc source.HTTPClient, logger zerolog.Logger) (*batch.Engine, error) {
	mode, err := batch.ParseMode(ep.Mode)
	if err != nil {
		return nil, err
	}
	shape, err := ep.ShapeConfig().BuildFor(mode)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	for k, v := range p.Headers {
		header.Set(k, v)
	}
	label := p.Name
	if label == "" {
		label = name
	}
	client, err := source.New(label,
		source.WithHTTPClient(hc),
		source.WithBaseURL(p.URL()),
		source.WithHeader(header),
		source.WithQuery(ep.Query),
		source.WithAPIKey(p.APIKeyParam, p.APIKey),
		source.WithParams(ep.PrimaryParams, ep.SecondaryParams),
		source.WithPairParams(ep.PairParams),
		source.WithUpperCase(ep.UpperCase),
	)
	if err != nil {
		return nil, err
	}

	// cache outside the limiter: hits never consume a token
	var sender batch.Sender = client
	sender = ratelimit.Wrap(sender, p.MaxRequestsPerMinute, p.Burst, time.Duration(p.MinRequestIntervalSec)*time.Second)
	sender = cache.Wrap(sender, time.Duration(p.CacheTTLSeconds)*time.Second, p.CacheMaxItems)

	zero := batch.ZeroIsMissing
	if ep.ZeroIsValue {
		zero = batch.ZeroIsValue
	}
	return batch.NewEngine(batch.EngineConfig{
		Name:           label,
		Path:           ep.Path,
		Mode:           mode,
		MaxBatchSize:   ep.MaxBatchSize,
		MaxConcurrency: p.MaxConcurrency,
		Shape:          shape,
		Zero:           zero,
		Normalizer:     norm,
	}, sender, batch.WithLogger(logger)), nil
}

// Lookup returns the engine serving provider/endpoint.
func (r *Registry) Lookup(provider, endpoint string) (*batch.Engine, bool) {
	e, ok := r.engines[key(provider, endpoint)]
	return e, ok
}

// Names lists the registered provider/endpoint keys in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.engines))
	for k := range r.engines {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func key(provider, endpoint string) string { return provider + "/" + endpoint }

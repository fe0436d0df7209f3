package batch

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"marketfeed/internal/normalize"
)

// EngineConfig describes one provider endpoint.
type EngineConfig struct {
	// Name labels logs and prefixes failure messages, e.g. "Coingecko".
	Name         string
	Path         string
	Mode         Mode
	MaxBatchSize int
	// MaxConcurrency bounds in-flight descriptor calls; <= 0 means unbounded.
	MaxConcurrency int
	Shape          Shape
	Zero           ZeroPolicy
	Normalizer     *normalize.Normalizer
}

// Engine runs a batch of requests against one provider endpoint.
type Engine struct {
	name           string
	coalescer      Coalescer
	resolver       Resolver
	shape          Shape
	sender         Sender
	maxConcurrency int
	logger         zerolog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger used for per-descriptor diagnostics.
func WithLogger(l zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine builds an Engine that sends through sender.
func NewEngine(cfg EngineConfig, sender Sender, opts ...EngineOption) *Engine {
	shape := cfg.Shape
	if shape == nil {
		shape = FlatShape{}
	}
	e := &Engine{
		name: cfg.Name,
		coalescer: Coalescer{
			Path:         cfg.Path,
			Mode:         cfg.Mode,
			MaxBatchSize: cfg.MaxBatchSize,
			Normalizer:   cfg.Normalizer,
		},
		resolver: Resolver{
			Normalizer: cfg.Normalizer,
			Provider:   cfg.Name,
			Zero:       cfg.Zero,
		},
		shape:          shape,
		sender:         sender,
		maxConcurrency: cfg.MaxConcurrency,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With().Str("component", "batch").Str("provider", cfg.Name).Logger()
	return e
}

// Name returns the configured provider name.
func (e *Engine) Name() string { return e.name }

// Run returns exactly one outcome per request, in input order. It never
// fails as a whole: transport and provider errors fail only the requests of
// the affected descriptor.
func (e *Engine) Run(ctx context.Context, params []Params) []Outcome {
	out := make([]Outcome, len(params))
	for i, p := range params {
		if e.coalescer.key(p) == "" {
			out[i] = Failure(p, http.StatusBadRequest, "missing base or coinid")
		}
	}

	descs := e.coalescer.Coalesce(params)
	e.logger.Debug().Int("params", len(params)).Int("requests", len(descs)).Msg("coalesced batch")

	// Plain group: one failing descriptor must not cancel its siblings.
	var g errgroup.Group
	if e.maxConcurrency > 0 {
		g.SetLimit(e.maxConcurrency)
	}
	for _, d := range descs {
		g.Go(func() error {
			e.dispatch(ctx, d, params, out)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// dispatch writes the outcomes of the requests covered by d. Covers are
// disjoint across descriptors, so concurrent dispatches never share a slot.
func (e *Engine) dispatch(ctx context.Context, d Descriptor, params []Params, out []Outcome) {
	log := e.logger.With().Strs("ids", d.Primary).Strs("quotes", d.Secondary).Logger()

	body, err := e.sender.Send(ctx, d)
	var idx *Index
	if err == nil {
		idx, err = e.shape.Index(body, d)
	}
	if err != nil {
		status, msg := failureOf(err)
		log.Warn().Err(err).Int("status", status).Int("covers", len(d.Covers)).Msg("provider request failed")
		for _, i := range d.Covers {
			out[i] = Failure(params[i], status, msg)
		}
		return
	}

	for _, i := range d.Covers {
		o := e.resolver.Resolve(params[i], idx)
		if !o.OK() {
			log.Warn().Msg(o.Message)
		}
		out[i] = o
	}
	log.Debug().Int("covers", len(d.Covers)).Int("indexed", idx.Len()).Msg("request resolved")
}

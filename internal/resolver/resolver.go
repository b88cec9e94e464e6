// Package resolver maps a surface token to a canonical display name.
//
// Lookup order is static mappings, learned mappings, the optional shared
// cache, then every external service in parallel. The highest-confidence
// external answer wins (ties go to the earliest configured service) and is
// promoted into the learned table, which is persisted in the background.
package resolver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/dayuer/charbot-go/internal/config"
	"github.com/dayuer/charbot-go/internal/mappings"
	"github.com/dayuer/charbot-go/internal/metrics"
	"github.com/dayuer/charbot-go/internal/textnorm"
)

// Options tune external lookups.
type Options struct {
	MinSpacing  time.Duration // minimum gap between two calls to the same service
	MaxAttempts int           // attempts per service when rate limited
	Backoff     time.Duration // first retry delay, doubled each attempt
	Timeout     time.Duration // budget for the whole fan-out
}

// DefaultOptions mirrors the config defaults.
func DefaultOptions() Options {
	return Options{
		MinSpacing:  350 * time.Millisecond,
		MaxAttempts: 3,
		Backoff:     500 * time.Millisecond,
		Timeout:     8 * time.Second,
	}
}

// OptionsFromConfig converts the resolver config section.
func OptionsFromConfig(c config.ResolverConfig) Options {
	return Options{
		MinSpacing:  time.Duration(c.MinSpacingMs) * time.Millisecond,
		MaxAttempts: c.MaxAttempts,
		Backoff:     time.Duration(c.BackoffMs) * time.Millisecond,
		Timeout:     time.Duration(c.TimeoutMs) * time.Millisecond,
	}
}

type remote struct {
	svc     Service
	limiter *rate.Limiter
}

// Resolver answers name lookups. It is safe for concurrent use.
type Resolver struct {
	store   *mappings.Store
	remotes []remote
	opts    Options
	cache   Cache
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// Option configures optional collaborators.
type Option func(*Resolver)

// WithCache sets the shared result cache.
func WithCache(c Cache) Option { return func(r *Resolver) { r.cache = c } }

// WithMetrics records lookup outcomes.
func WithMetrics(m *metrics.Metrics) Option { return func(r *Resolver) { r.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(r *Resolver) { r.logger = l } }

// New creates a resolver over store and the given services, in priority order.
func New(store *mappings.Store, services []Service, opts Options, options ...Option) *Resolver {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	r := &Resolver{store: store, opts: opts, logger: zap.NewNop()}
	for _, o := range options {
		o(r)
	}
	r.logger = r.logger.Named("resolver")

	limit := rate.Inf
	if opts.MinSpacing > 0 {
		limit = rate.Every(opts.MinSpacing)
	}
	for _, s := range services {
		r.remotes = append(r.remotes, remote{svc: s, limiter: rate.NewLimiter(limit, 1)})
	}
	return r
}

// FromSpecs builds HTTP services for every declared spec.
func FromSpecs(specs []config.ServiceSpec, client *http.Client) []Service {
	out := make([]Service, 0, len(specs))
	for _, s := range specs {
		out = append(out, NewHTTPService(s, client))
	}
	return out
}

// Services returns the configured service names in priority order.
func (r *Resolver) Services() []string {
	names := make([]string, len(r.remotes))
	for i, rm := range r.remotes {
		names[i] = rm.svc.Name()
	}
	return names
}

// Resolve returns the display name for surface. Failures along the way are
// logged and treated as misses.
func (r *Resolver) Resolve(ctx context.Context, surface string) (mappings.Entry, bool) {
	key := textnorm.Normalize(surface)
	if key == "" {
		return mappings.Entry{}, false
	}

	if e, ok := r.store.Lookup(key); ok {
		r.metrics.Lookup(string(e.Source), "hit")
		return e, true
	}

	if r.cache != nil {
		if e, ok := r.cache.Get(ctx, key); ok {
			r.metrics.Lookup("cache", "hit")
			r.promote(key, e)
			return e, true
		}
	}

	if len(r.remotes) == 0 {
		r.metrics.Lookup("none", "miss")
		return mappings.Entry{}, false
	}

	best, ok := r.fanOut(ctx, surface)
	if !ok {
		r.metrics.Lookup(string(mappings.SourceExternal), "miss")
		return mappings.Entry{}, false
	}
	r.metrics.Lookup(string(mappings.SourceExternal), "hit")

	if r.cache != nil {
		r.cache.Set(ctx, key, best)
	}
	r.promote(key, best)
	return best, true
}

func (r *Resolver) promote(key string, e mappings.Entry) {
	if r.store.Learn(key, e) {
		r.logger.Info("learned mapping", zap.String("token", key), zap.String("name", e.DisplayName))
		r.store.SaveAsync()
	}
}

// fanOut queries every service concurrently and picks the best answer.
func (r *Resolver) fanOut(ctx context.Context, token string) (mappings.Entry, bool) {
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	results := make([]*Match, len(r.remotes))
	var g errgroup.Group
	for i, rm := range r.remotes {
		g.Go(func() error {
			m, err := r.query(ctx, rm, token)
			if err != nil {
				r.logger.Warn("lookup failed", zap.String("service", rm.svc.Name()), zap.String("token", token), zap.Error(err))
				return nil
			}
			results[i] = m
			return nil
		})
	}
	g.Wait()

	var best *Match
	for _, m := range results {
		if m == nil {
			continue
		}
		if best == nil || m.Confidence > best.Confidence {
			best = m
		}
	}
	if best == nil {
		return mappings.Entry{}, false
	}
	return mappings.Entry{DisplayName: best.DisplayName, Confidence: best.Confidence, Source: mappings.SourceExternal}, true
}

// query calls one service, honouring its spacing and retrying only on 429.
func (r *Resolver) query(ctx context.Context, rm remote, token string) (*Match, error) {
	backoff := r.opts.Backoff
	var err error
	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		if werr := rm.limiter.Wait(ctx); werr != nil {
			return nil, werr
		}
		var m *Match
		m, err = rm.svc.Lookup(ctx, token)
		if err == nil {
			return m, nil
		}
		if !errors.Is(err, ErrRateLimited) || attempt == r.opts.MaxAttempts {
			break
		}
		r.logger.Debug("rate limited, backing off",
			zap.String("service", rm.svc.Name()), zap.Int("attempt", attempt), zap.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, err
}

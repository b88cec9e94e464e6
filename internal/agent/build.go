package agent

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dayuer/charbot-go/internal/classify"
	"github.com/dayuer/charbot-go/internal/config"
	"github.com/dayuer/charbot-go/internal/extract"
	"github.com/dayuer/charbot-go/internal/humanize"
	"github.com/dayuer/charbot-go/internal/lane"
	"github.com/dayuer/charbot-go/internal/mappings"
	"github.com/dayuer/charbot-go/internal/metrics"
	"github.com/dayuer/charbot-go/internal/redis"
	"github.com/dayuer/charbot-go/internal/resolver"
	"github.com/dayuer/charbot-go/internal/session"
)

// Deps are the long-lived collaborators shared by every engine generation.
type Deps struct {
	Store      *mappings.Store
	Sender     Sender
	Lister     GroupLister
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	HTTPClient *http.Client
}

// Build assembles an Engine from configuration.
func Build(cfg config.Config, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	mode, err := lane.ParseMode(cfg.Pipeline.ReplyMode)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sessOpts := session.OptionsFromConfig(cfg.Session)
	sessOpts.Logger = logger

	opts := Options{
		Machine:          session.NewMachine(sessOpts),
		Extractor:        extract.New(cfg.Pipeline.Marker),
		Classifier:       classify.New(cfg.Pipeline.StrictClassifier),
		Humanizer:        NewHumanizer(cfg.Humanize),
		Sender:           deps.Sender,
		Lister:           deps.Lister,
		Metrics:          deps.Metrics,
		Logger:           logger,
		GuardCorrections: cfg.Humanize.GuardCorrections,
		ReplyMode:        mode,
	}

	if cfg.Pipeline.ResolveNames {
		if deps.Store == nil {
			return nil, fmt.Errorf("name resolution needs a mappings store")
		}
		specs, err := config.LoadServices(cfg.Resolver.ServicesFile)
		if err != nil {
			return nil, err
		}
		ropts := []resolver.Option{resolver.WithMetrics(deps.Metrics), resolver.WithLogger(logger)}
		if redis.IsAvailable() {
			ropts = append(ropts, resolver.WithCache(resolver.RedisCache{TTL: time.Duration(cfg.Redis.TTLMinutes) * time.Minute}))
		}
		opts.Resolver = resolver.New(deps.Store, resolver.FromSpecs(specs, deps.HTTPClient), resolver.OptionsFromConfig(cfg.Resolver), ropts...)
	}

	return NewEngine(opts), nil
}

// NewHumanizer converts the humanize config section. A zero seed draws a
// random one.
func NewHumanizer(c config.HumanizeConfig) *humanize.Engine {
	hc := humanize.DefaultConfig()
	hc.MistakeRate = c.MistakeRate
	hc.TypoRate = c.TypoRate
	hc.CorrectionRate = c.CorrectionRate
	hc.CorrectionMin = time.Duration(c.CorrectionMinMs) * time.Millisecond
	hc.CorrectionMax = time.Duration(c.CorrectionMaxMs) * time.Millisecond
	hc.Timing = humanize.Timing{
		Base:         time.Duration(c.BaseDelayMs) * time.Millisecond,
		PerToken:     time.Duration(c.PerTokenMs) * time.Millisecond,
		VariationMax: time.Duration(c.VariationMs) * time.Millisecond,
	}
	if c.Seed != 0 {
		return humanize.NewSeeded(hc, c.Seed)
	}
	return humanize.NewEngine(hc, nil)
}

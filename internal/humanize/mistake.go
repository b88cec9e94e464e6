// Package humanize makes replies look typed by a person: it perturbs the
// response with occasional mistakes, schedules self-corrections and computes
// a plausible typing delay.
package humanize

import (
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Kind is the category of a deliberate mistake.
type Kind string

const (
	KindNone    Kind = "none"
	KindTypo    Kind = "typo"
	KindPartial Kind = "partial"
	KindReorder Kind = "reorder"
	KindDelayed Kind = "delayed"
)

// Plan is the response computed for one message.
type Plan struct {
	Text       string   `json:"text"`
	Tokens     []string `json:"tokens"`
	Original   []string `json:"original"`
	TokenCount int      `json:"tokenCount"`
	IsMistake  bool     `json:"isMistake"`
	Kind       Kind     `json:"kind"`

	// Correct is set when a follow-up correction should be sent after
	// CorrectionDelay.
	Correct         bool          `json:"correct"`
	CorrectionDelay time.Duration `json:"correctionDelay,omitempty"`
}

// CorrectionText is the ground-truth reply, used by the follow-up message.
func (p Plan) CorrectionText() string {
	return strings.Join(p.Original, " ")
}

// Config tunes the mistake engine.
type Config struct {
	MistakeRate    float64
	TypoRate       float64
	CorrectionRate float64
	PartialKeep    float64
	CorrectionMin  time.Duration
	CorrectionMax  time.Duration
	Timing         Timing
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		MistakeRate:    0.3,
		TypoRate:       0.7,
		CorrectionRate: 0.5,
		PartialKeep:    0.7,
		CorrectionMin:  2000 * time.Millisecond,
		CorrectionMax:  3000 * time.Millisecond,
		Timing:         DefaultTiming(),
	}
}

// typoRunes is the substitution set for typo mistakes.
var typoRunes = []rune{'َ', 'ُ', 'ِ', 'ّ', 'ا', 'ي', 'و', 'ه'}

// Engine plans responses. It is safe for concurrent use.
type Engine struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine creates an engine drawing from rng. A nil rng is seeded from
// the runtime source.
func NewEngine(cfg Config, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if cfg.PartialKeep <= 0 {
		cfg.PartialKeep = 0.7
	}
	if cfg.CorrectionMax < cfg.CorrectionMin {
		cfg.CorrectionMax = cfg.CorrectionMin
	}
	return &Engine{cfg: cfg, rng: rng}
}

// NewSeeded creates an engine with a deterministic source.
func NewSeeded(cfg Config, seed uint64) *Engine {
	return NewEngine(cfg, rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// Config returns the engine tuning.
func (e *Engine) Config() Config { return e.cfg }

// Plan builds the response for tokens. The input slice is never modified.
func (e *Engine) Plan(tokens []string) Plan {
	e.mu.Lock()
	defer e.mu.Unlock()

	original := append([]string(nil), tokens...)
	plan := Plan{
		Tokens:   append([]string(nil), tokens...),
		Original: original,
		Kind:     KindNone,
	}

	if len(tokens) > 0 && e.rng.Float64() < e.cfg.MistakeRate {
		e.perturb(&plan)
	}
	if plan.IsMistake && e.rng.Float64() < e.cfg.CorrectionRate {
		plan.Correct = true
		plan.CorrectionDelay = e.correctionDelayLocked()
	}

	plan.TokenCount = len(plan.Tokens)
	plan.Text = strings.Join(plan.Tokens, " ")
	return plan
}

// perturb applies one mistake. A typo roll with no token long enough to
// mutate falls through to the other kinds, so the mistake rate holds for
// short tokens.
func (e *Engine) perturb(plan *Plan) {
	if e.rng.Float64() < e.cfg.TypoRate && e.typo(plan.Tokens) {
		plan.IsMistake = true
		plan.Kind = KindTypo
		return
	}

	plan.IsMistake = true
	switch e.rng.IntN(3) {
	case 0:
		plan.Kind = KindPartial
		plan.Tokens = e.partial(plan.Tokens)
	case 1:
		plan.Kind = KindReorder
		e.shuffle(plan.Tokens)
	default:
		plan.Kind = KindDelayed
	}
}

// typo replaces one rune of one token longer than two runes. It reports
// false when no token is eligible.
func (e *Engine) typo(tokens []string) bool {
	var eligible []int
	for i, tok := range tokens {
		if utf8.RuneCountInString(tok) > 2 {
			eligible = append(eligible, i)
		}
	}
	if len(eligible) == 0 {
		return false
	}

	idx := eligible[e.rng.IntN(len(eligible))]
	runes := []rune(tokens[idx])
	pos := e.rng.IntN(len(runes))

	candidates := make([]rune, 0, len(typoRunes))
	for _, r := range typoRunes {
		if r != runes[pos] {
			candidates = append(candidates, r)
		}
	}
	runes[pos] = candidates[e.rng.IntN(len(candidates))]
	tokens[idx] = string(runes)
	return true
}

// partial keeps floor(PartialKeep*n) tokens (at least one) picked by
// shuffling and taking a prefix.
func (e *Engine) partial(tokens []string) []string {
	keep := int(math.Floor(e.cfg.PartialKeep * float64(len(tokens))))
	if keep < 1 {
		keep = 1
	}
	shuffled := append([]string(nil), tokens...)
	e.shuffle(shuffled)
	return shuffled[:keep]
}

func (e *Engine) shuffle(tokens []string) {
	e.rng.Shuffle(len(tokens), func(i, j int) {
		tokens[i], tokens[j] = tokens[j], tokens[i]
	})
}

// CorrectionDelay draws a delay uniformly in [CorrectionMin, CorrectionMax).
func (e *Engine) CorrectionDelay() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.correctionDelayLocked()
}

func (e *Engine) correctionDelayLocked() time.Duration {
	span := e.cfg.CorrectionMax - e.cfg.CorrectionMin
	if span <= 0 {
		return e.cfg.CorrectionMin
	}
	return e.cfg.CorrectionMin + time.Duration(e.rng.Int64N(int64(span)))
}

// Delay returns the typing delay for plan, drawing the random variation
// from the engine source.
func (e *Engine) Delay(plan Plan) time.Duration {
	e.mu.Lock()
	var variation time.Duration
	if vmax := e.cfg.Timing.VariationMax; vmax > 0 {
		variation = time.Duration(e.rng.Int64N(int64(vmax)))
	}
	e.mu.Unlock()
	return e.cfg.Timing.Compute(plan.TokenCount, plan.IsMistake, plan.Kind, variation)
}

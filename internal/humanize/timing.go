package humanize

import "time"

// delayedFactor stretches the whole delay of a "delayed" mistake.
const delayedFactor = 3

// Timing holds the typing-speed constants.
type Timing struct {
	Base         time.Duration `json:"base"`
	PerToken     time.Duration `json:"perToken"`
	VariationMax time.Duration `json:"variationMax"`
}

// DefaultTiming returns the production typing speed.
func DefaultTiming() Timing {
	return Timing{
		Base:         700 * time.Millisecond,
		PerToken:     700 * time.Millisecond,
		VariationMax: 450 * time.Millisecond,
	}
}

// Compute returns base + (tokenCount-1)*perToken + variation, tripled for a
// delayed mistake. tokenCount below one counts as one.
func (t Timing) Compute(tokenCount int, isMistake bool, kind Kind, variation time.Duration) time.Duration {
	if tokenCount < 1 {
		tokenCount = 1
	}
	d := t.Base + time.Duration(tokenCount-1)*t.PerToken + variation
	if isMistake && kind == KindDelayed {
		d *= delayedFactor
	}
	return d
}

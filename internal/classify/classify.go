// Package classify decides whether an extracted token looks like a character
// name. Two policies are available: Permissive (the production default, which
// accepts every token) and Heuristic (an additive scoring model).
package classify

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dayuer/charbot-go/internal/textnorm"
)

// Threshold is the confidence a token must exceed to be a candidate.
const Threshold = 0.6

// Result is the classification of one token.
type Result struct {
	IsCandidate bool    `json:"isCandidate"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason,omitempty"`
}

// Classifier scores tokens.
type Classifier interface {
	Classify(token string) Result
}

// New returns the heuristic policy when strict is set, otherwise the
// permissive one.
func New(strict bool) Classifier {
	if strict {
		return NewHeuristic()
	}
	return Permissive{}
}

// Permissive treats every token as a certain candidate.
type Permissive struct{}

func (Permissive) Classify(string) Result {
	return Result{IsCandidate: true, Confidence: 1.0}
}

// Weights of the heuristic model.
const (
	weightNameSuffix   = 0.7
	weightShape        = 0.5
	weightFinalLetter  = 0.6
	weightIdealLength  = 0.5
	weightVowelBalance = 0.4
	penaltyTriple      = -0.5
	penaltyStopSubstr  = -0.8
	bonusShape         = 0.3

	minLen, maxLen     = 4, 10
	idealMin, idealMax = 4, 8
	ratioMin, ratioMax = 0.4, 0.7
)

// Heuristic is the additive scoring policy. The word lists are normalized at
// construction time so lookups share the textnorm key space.
type Heuristic struct {
	stopWords    map[string]bool
	nameSuffixes []string
	finalLetters string
	vowels       string
}

// NewHeuristic builds the scorer with the built-in word lists.
func NewHeuristic() *Heuristic {
	h := &Heuristic{
		stopWords:    make(map[string]bool, len(defaultStopWords)),
		finalLetters: "ايوهن",
		vowels:       "اوي",
	}
	for _, w := range defaultStopWords {
		h.stopWords[textnorm.Normalize(w)] = true
	}
	for _, s := range defaultNameSuffixes {
		h.nameSuffixes = append(h.nameSuffixes, textnorm.Normalize(s))
	}
	return h
}

// Classify applies the rejection rules, then the score.
func (h *Heuristic) Classify(token string) Result {
	norm := textnorm.Normalize(token)
	if reason := h.reject(norm); reason != "" {
		return Result{Reason: reason}
	}
	score := h.Score(norm)
	return Result{IsCandidate: score > Threshold, Confidence: score}
}

func (h *Heuristic) reject(norm string) string {
	if norm == "" {
		return "empty"
	}
	if isDigits(norm) {
		return "digits"
	}
	for _, r := range norm {
		if !unicode.Is(unicode.Arabic, r) || !unicode.IsLetter(r) {
			return "non-arabic"
		}
	}
	if h.stopWords[norm] {
		return "stop-word"
	}
	if n := utf8.RuneCountInString(norm); n < minLen || n > maxLen {
		return "length"
	}
	return ""
}

// Score returns the clamped additive score of an already-normalized token.
// It is deterministic and always within [0, 1].
func (h *Heuristic) Score(norm string) float64 {
	runes := []rune(norm)
	n := len(runes)
	shape := n >= idealMin && n <= idealMax && allArabicLetters(runes)
	stop := h.stopWords[norm]

	var score float64
	for _, suf := range h.nameSuffixes {
		if strings.HasSuffix(norm, suf) && norm != suf {
			score += weightNameSuffix
			break
		}
	}
	if shape {
		score += weightShape
	}
	if n > 0 && strings.ContainsRune(h.finalLetters, runes[n-1]) {
		score += weightFinalLetter
	}
	if n >= idealMin && n <= idealMax {
		score += weightIdealLength
	}
	if n > 0 {
		ratio := float64(h.consonants(runes)) / float64(n)
		if ratio >= ratioMin && ratio <= ratioMax {
			score += weightVowelBalance
		}
	}
	if hasTripleRun(runes) {
		score += penaltyTriple
	}
	if h.containsStopWord(norm) {
		score += penaltyStopSubstr
	}
	if shape && !stop {
		score += bonusShape
	}
	return clamp(score)
}

func (h *Heuristic) consonants(runes []rune) int {
	c := 0
	for _, r := range runes {
		if !strings.ContainsRune(h.vowels, r) {
			c++
		}
	}
	return c
}

func (h *Heuristic) containsStopWord(norm string) bool {
	for w := range h.stopWords {
		if utf8.RuneCountInString(w) >= 3 && strings.Contains(norm, w) {
			return true
		}
	}
	return false
}

func hasTripleRun(runes []rune) bool {
	for i := 2; i < len(runes); i++ {
		if runes[i] == runes[i-1] && runes[i] == runes[i-2] {
			return true
		}
	}
	return false
}

func allArabicLetters(runes []rune) bool {
	for _, r := range runes {
		if !unicode.Is(unicode.Arabic, r) || !unicode.IsLetter(r) {
			return false
		}
	}
	return len(runes) > 0
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Package textnorm canonicalizes Arabic letterforms so that orthographic
// variants of the same word collapse to one key.
//
// The pipeline is total and deterministic:
//
//  1. NFKD decomposition (presentation forms and hamza carriers split apart)
//  2. Remove combining marks (tashkeel, hamza above/below, madda) and format chars
//  3. Fold letter variants: alef-maksura/farsi yeh → yeh, teh-marbuta → heh,
//     keheh → kaf, tatweel dropped, ASCII upper → lower
//  4. NFC recomposition
//
// Normalize(Normalize(x)) == Normalize(x) for every input.
package textnorm

import (
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const tatweel = 'ـ'

// folds maps letter variants to their representative. Targets are never keys,
// which keeps the fold idempotent.
var folds = map[rune]rune{
	'ٱ': 'ا', // alef wasla
	'ٲ': 'ا',
	'ٳ': 'ا',
	'ٵ': 'ا',
	'ى': 'ي', // alef maksura
	'ی': 'ي', // farsi yeh
	'ې': 'ي',
	'ے': 'ي',
	'ة': 'ه', // teh marbuta
	'ہ': 'ه',
	'ە': 'ه',
	'ھ': 'ه',
	'ٶ': 'و',
	'ک': 'ك', // keheh
	'ڪ': 'ك',
}

func fold(r rune) rune {
	if r == tatweel {
		return -1
	}
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	if f, ok := folds[r]; ok {
		return f
	}
	return r
}

var chainPool = sync.Pool{
	New: func() any {
		return transform.Chain(
			norm.NFKD,
			runes.Remove(runes.In(unicode.Mn)),
			runes.Remove(runes.In(unicode.Cf)),
			runes.Map(fold),
			norm.NFC,
		)
	},
}

// Normalize returns the canonical form of text. It never fails; the empty
// string maps to itself.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	tr := chainPool.Get().(transform.Transformer)
	defer chainPool.Put(tr)
	tr.Reset()
	out, _, err := transform.String(tr, text)
	if err != nil {
		// transform only fails on malformed chains; fall back to the
		// rune-level fold so the function stays total.
		return foldOnly(text)
	}
	return out
}

func foldOnly(text string) string {
	buf := make([]rune, 0, len(text))
	for _, r := range text {
		if unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Cf, r) {
			continue
		}
		if f := fold(r); f >= 0 {
			buf = append(buf, f)
		}
	}
	return string(buf)
}

// Equal reports whether a and b normalize to the same key.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

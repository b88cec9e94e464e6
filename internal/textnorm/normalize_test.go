package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_HamzaVariants(t *testing.T) {
	for _, in := range []string{"أ", "إ", "آ", "ٱ", "ا"} {
		assert.Equal(t, "ا", Normalize(in), "input %q", in)
	}
}

func TestNormalize_YehTehWaw(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"موسى", "موسي"},
		{"شائع", "شايع"},
		{"فاطمة", "فاطمه"},
		{"مؤمن", "مومن"},
		{"کرة", "كره"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.input), "input %q", tt.input)
	}
}

func TestNormalize_StripsTashkeelAndTatweel(t *testing.T) {
	assert.Equal(t, "غوكو", Normalize("غُوكُو"))
	assert.Equal(t, "ناروتو", Normalize("نارـــوتو"))
}

func TestNormalize_PresentationForms(t *testing.T) {
	// lam-alef ligature and isolated forms decompose to base letters
	assert.Equal(t, "لا", Normalize("ﻻ"))
	assert.Equal(t, "ب", Normalize("ﺏ"))
}

func TestNormalize_LowercasesASCII(t *testing.T) {
	assert.Equal(t, "goku vegeta", Normalize("GoKu VEGETA"))
}

func TestNormalize_Empty(t *testing.T) {
	assert.Equal(t, "", Normalize(""))
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"Goku",
		"غوكو ضد فيجيتا",
		"إِسْتِيفَانِي",
		"آدم ومؤمن وعلى",
		"ﻻﺏﻳ",
		"ᄀ́ᅡ",
		"naïve café 🙂",
		"ﷺ ﷲ",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("إيتاتشي", "ايتاتشى"))
	assert.False(t, Equal("غوكو", "غوهان"))
}

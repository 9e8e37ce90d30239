package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean_Empty(t *testing.T) {
	assert.Equal(t, "", Clean(""))
	assert.Equal(t, "", Clean("   "))
}

func TestClean_ArabicVariants(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"yeh", "علي", "علی"},
		{"alef maksura", "موسى", "موسی"},
		{"kaf", "كرج", "کرج"},
		{"teh marbuta", "قلعة", "قلعه"},
		{"hamza alef", "أراک", "اراک"},
		{"waw hamza", "مؤمن", "مومن"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestClean_ZeroWidthNonJoinerBecomesSpace(t *testing.T) {
	assert.Equal(t, "می بد", Clean("می\u200cبد"))
}

func TestClean_InvisibleCharsRemoved(t *testing.T) {
	assert.Equal(t, "تهران", Clean("\ufeffته\u200bران\u200f"))
}

func TestClean_Punctuation(t *testing.T) {
	assert.Equal(t, "شهر ری", Clean("«شهر. ری»"))
	assert.Equal(t, "شهرری", Clean("شهر\u0640\u0640ری"))
	assert.Equal(t, "ab", Clean("a-b"))
}

func TestClean_CollapsesSpacesAndParentheses(t *testing.T) {
	assert.Equal(t, "a b", Clean("  a \t  b  "))
	assert.Equal(t, "a (b)", Clean("a (  b  )"))
	assert.Equal(t, "a b", Clean("a\u00a0\u00a0b"))
}

func TestNormalize_RemovesSpacesAndMadda(t *testing.T) {
	assert.Equal(t, "اذربایجانشرقی",
		Normalize("آذربايجان شرقي"))
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"  آذربايجان  شرقي ",
		"می\u200cبد (  مرکز )",
		"a\u00a0 ( ( b ) )\u2026",
		"كرج\t\u0640\u0640\u00bb",
		"\u0627 \u0653",
		"\u0627-\u0653",
		"\u0648.\u0654",
		"\u0627\u200c\u0654",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
		cleaned := Clean(in)
		assert.Equal(t, cleaned, Clean(cleaned), "input %q", in)
	}
}

func TestNormalize_ComposesMarksExposedByRemoval(t *testing.T) {
	assert.Equal(t, "\u0627", Normalize("\u0627 \u0653"))
	assert.Equal(t, "\u0627", Normalize("\u0627-\u0653"))
	assert.Equal(t, "\u0648", Normalize("\u0648.\u0654"))
	assert.Equal(t, "\u0622", Clean("\u0627-\u0653"), "Clean keeps alef-madda")
	assert.Equal(t, "\u0648", Clean("\u0648.\u0654"))
	assert.Equal(t, Normalize("\u0645\u0624\u0645\u0646"), Normalize("\u0645\u0648_\u0654\u0645\u0646"))
}

func TestNormalize_VariantsCompareEqual(t *testing.T) {
	// Same county written with Arabic yeh/kaf and Farsi yeh/kaf.
	a := Normalize("کرمانشاهی")
	b := Normalize("كرمانشاهي ")
	assert.Equal(t, a, b)
}

func TestNormalizeAll(t *testing.T) {
	got := NormalizeAll([]string{"a b", "آ"})
	assert.Equal(t, []string{"ab", "ا"}, got)
}

// Package textnorm canonicalizes Farsi region names so names taken from
// different survey years and sources compare equal.
package textnorm

import (
	"regexp"
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const zeroWidthNonJoiner = '\u200c'

// arabicVariants maps Arabic-script code points to their Farsi forms.
var arabicVariants = map[rune]rune{
	'\u064a': '\u06cc', // ي -> ی
	'\u0626': '\u06cc', // ئ -> ی
	'\u0649': '\u06cc', // ى -> ی
	'\u0623': '\u0627', // أ -> ا
	'\u0625': '\u0627', // إ -> ا
	'\u0624': '\u0648', // ؤ -> و
	'\u0643': '\u06a9', // ك -> ک
	'\u06c0': '\u0647', // ۀ -> ه
	'\u0629': '\u0647', // ة -> ه
}

// dropped lists invisible characters and punctuation removed outright.
var dropped = map[rune]bool{
	'\u200b': true, '\u00ad': true, '\u200f': true,
	'\u202c': true, '\u202a': true, '\ufeff': true,
	'\n': true, '\r': true, '\t': true,
	'\u2026': true, '\u0640': true, '_': true, '-': true, '\u2022': true, '*': true,
	'`': true, '"': true, '\'': true, '\u00ab': true, '\u00bb': true,
	'.': true, ',': true, ';': true, ':': true,
}

var farsiMapper = runes.Map(func(r rune) rune {
	if farsi, ok := arabicVariants[r]; ok {
		return farsi
	}
	if r == zeroWidthNonJoiner {
		return ' '
	}
	return r
})

var droppedRemover = runes.Remove(runes.Predicate(func(r rune) bool { return dropped[r] }))

// newCleaner builds a fresh chain per call; chained transformers keep
// internal buffers and must not be shared between goroutines.
func newCleaner() transform.Transformer {
	return transform.Chain(norm.NFC, farsiMapper, droppedRemover)
}

// newComposer recomposes marks left next to their base letter once the
// characters between them are gone, then maps the composed letters again.
func newComposer() transform.Transformer {
	return transform.Chain(norm.NFC, farsiMapper)
}

func apply(t transform.Transformer, s string) string {
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

var spaceRunRe = regexp.MustCompile(`[\s\p{Z}]+`)

var parenReplacer = strings.NewReplacer("( ", "(", " )", ")")

// Clean standardizes a region name for display and storage:
//  1. Arabic character variants become their Farsi equivalents
//  2. Zero-width non-joiners become spaces
//  3. Invisible characters and punctuation symbols are removed
//  4. Whitespace runs collapse to a single space
//  5. Spaces just inside parentheses are dropped and the result trimmed
//
// Combining marks that end up next to a letter after removal are composed
// and mapped, so Clean(Clean(s)) == Clean(s).
func Clean(s string) string {
	if s == "" {
		return ""
	}
	out := apply(newCleaner(), s)
	out = spaceRunRe.ReplaceAllString(out, " ")
	out = parenReplacer.Replace(out)
	return apply(newComposer(), strings.TrimSpace(out))
}

// Normalize is Clean followed by folding alef-madda into alef and removing
// every space. Two names are the same version label iff their Normalize
// forms are equal.
func Normalize(s string) string {
	s = strings.ReplaceAll(Clean(s), " ", "")
	s = apply(newComposer(), s)
	return strings.ReplaceAll(s, "\u0622", "\u0627") // آ -> ا
}

// NormalizeAll applies Normalize to every element, returning a new slice.
func NormalizeAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = Normalize(n)
	}
	return out
}

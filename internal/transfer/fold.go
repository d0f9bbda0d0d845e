package transfer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// asciiFolds maps Turkish and common Latin letters to their ASCII base after lowercasing.
var asciiFolds = map[rune]rune{
	'ç': 'c', 'ğ': 'g', 'ı': 'i', 'ö': 'o', 'ş': 's', 'ü': 'u',
	'â': 'a', 'î': 'i', 'û': 'u', 'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e',
	'á': 'a', 'à': 'a', 'ä': 'a', 'í': 'i', 'ó': 'o', 'ú': 'u', 'ñ': 'n',
}

// foldRune lowercases r and strips Turkish diacritics.
func foldRune(r rune) rune {
	r = unicode.ToLower(r)
	if f, ok := asciiFolds[r]; ok {
		return f
	}
	return r
}

// foldWord folds every rune of s. The combining dot above left behind by
// some İ decompositions is dropped.
func foldWord(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\u0307' {
			continue
		}
		b.WriteRune(foldRune(r))
	}
	return b.String()
}

// foldPhrase folds s and collapses it to single-space separated words.
func foldPhrase(s string) string {
	ws := scanWords(s)
	parts := make([]string, len(ws))
	for i, w := range ws {
		parts[i] = w.fold
	}
	return strings.Join(parts, " ")
}

// dedupeKey is the case-insensitive identity of a passenger name.
// Unicode case folding treats dotted and dotless i as distinct letters, so
// both are collapsed to plain i afterwards.
func dedupeKey(s string) string {
	folded := cases.Fold().String(strings.Join(strings.Fields(s), " "))
	folded = strings.ReplaceAll(folded, "\u0307", "")
	return strings.ReplaceAll(folded, "ı", "i")
}

// word is a run of letters and digits with its byte span in the source text.
type word struct {
	start, end int
	text       string
	fold       string
}

func (w word) isDigits() bool {
	for _, r := range w.text {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return w.text != ""
}

func (w word) letterCount() int {
	n := 0
	for _, r := range w.text {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// scanWords splits s into words. An apostrophe or hyphen between two letters
// stays inside the word, so "O'Brien" and "Ayşe-Nur" are single words.
func scanWords(s string) []word {
	var ws []word
	start := -1
	for i, r := range s {
		if start >= 0 && unicode.Is(unicode.Mn, r) {
			continue
		}
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && (r == '\'' || r == '’' || r == '-') && joinsLetters(s, i, r) {
			continue
		}
		if start >= 0 {
			ws = append(ws, newWord(s, start, i))
			start = -1
		}
	}
	if start >= 0 {
		ws = append(ws, newWord(s, start, len(s)))
	}
	return ws
}

func newWord(s string, start, end int) word {
	text := s[start:end]
	return word{start: start, end: end, text: text, fold: foldWord(text)}
}

// joinsLetters reports whether the rune at byte i sits between two letters.
func joinsLetters(s string, i int, r rune) bool {
	prev, _ := utf8.DecodeLastRuneInString(s[:i])
	next, _ := utf8.DecodeRuneInString(s[i+utf8.RuneLen(r):])
	return unicode.IsLetter(prev) && unicode.IsLetter(next)
}

// runeBefore returns the rune ending at byte i, or 0 at the start.
func runeBefore(s string, i int) rune {
	if i <= 0 {
		return 0
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return r
}

// runeAt returns the rune starting at byte i, or 0 at the end.
func runeAt(s string, i int) rune {
	if i >= len(s) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return r
}

func isASCIIDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func countLetters(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

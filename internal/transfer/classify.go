package transfer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Class is the noise classification of a cleaned line or fragment.
type Class int

const (
	Substantive Class = iota
	Empty
	Address
	StatusPhrase
	PureSeparator
	MinuteFragment
	Filtered
)

var classNames = map[Class]string{
	Substantive:    "substantive",
	Empty:          "empty",
	Address:        "address",
	StatusPhrase:   "status_phrase",
	PureSeparator:  "pure_separator",
	MinuteFragment: "minute_fragment",
	Filtered:       "filtered",
}

func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return "unknown"
}

var (
	// minuteColonRegex matches a stray ":30" left over from a split time.
	minuteColonRegex = regexp.MustCompile(`^[+\-]?:\d{2}\.?$`)

	// minuteWordRegex matches "15 dk", "+20 min", "30 dakika" on folded text.
	minuteWordRegex = regexp.MustCompile(`^[+\-]?\s*\d{1,3}\s*(?:dk|dak|dakika|min|mins|minute|minutes|')\.?$`)
)

// Address heuristics: a keyword alone is not enough, the line must also look
// like an address by length, digit count, or comma-separated segments.
const (
	addressMinRunes  = 30
	addressMinDigits = 4
	addressMinCommas = 2
)

// Classify decides whether a cleaned line is noise or substantive content.
func (e *Extractor) Classify(text string) Class {
	text = strings.TrimSpace(text)
	if text == "" {
		return Empty
	}

	folded := foldWord(text)
	if minuteColonRegex.MatchString(text) || minuteWordRegex.MatchString(folded) {
		return MinuteFragment
	}

	ws := scanWords(text)
	if e.isAddress(text, ws) {
		return Address
	}
	if e.isStatus(text, ws) {
		return StatusPhrase
	}
	if isSeparator(text) {
		return PureSeparator
	}
	return Substantive
}

func (e *Extractor) isAddress(text string, ws []word) bool {
	if !e.hasAddressKeyword(ws) {
		return false
	}
	// pickup times and flight codes on the same line do not count toward
	// the address shape
	rest := e.stripTokens(text)
	return utf8.RuneCountInString(strings.TrimSpace(rest)) >= addressMinRunes ||
		countDigits(rest) >= addressMinDigits ||
		strings.Count(rest, ",") >= addressMinCommas
}

// hasAddressKeyword reports an address keyword, or two distinct place names.
// A single place name is not enough: "Fatih Yilmaz" is a passenger.
func (e *Extractor) hasAddressKeyword(ws []word) bool {
	var place string
	for _, w := range ws {
		if e.lex.address[w.fold] {
			return true
		}
		if e.lex.places[w.fold] {
			if place != "" && place != w.fold {
				return true
			}
			place = w.fold
		}
	}
	return false
}

// isStatus reports whether the line is a status remark: every word belongs
// to a status phrase, or a token-free line opens with a multi-word phrase
// and continues in lowercase ("flight has landed at gate").
func (e *Extractor) isStatus(text string, ws []word) bool {
	if len(ws) == 0 {
		return false
	}
	if e.coveredByStatus(ws) {
		return true
	}
	n := matchPhrase(ws, 0, e.lex.status)
	if n < 2 || len(e.tokenSpans(text)) > 0 {
		return false
	}
	for _, w := range ws[n:] {
		if r, _ := utf8.DecodeRuneInString(w.text); unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

func (e *Extractor) coveredByStatus(ws []word) bool {
	for i := 0; i < len(ws); {
		n := matchPhrase(ws, i, e.lex.status)
		if n == 0 {
			return false
		}
		i += n
	}
	return true
}

// isSeparator reports whether text is only punctuation, or a bare one or
// two digit number with no letters.
func isSeparator(text string) bool {
	if countLetters(text) > 0 {
		return false
	}
	if times, _ := findTimes(text); len(times) > 0 {
		return false
	}
	return countDigits(text) <= 2
}

package transfer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

var (
	// chatBracketRegex matches a leading "[12/05 14:30]" or "[12.05.24, 14:30:11]" export stamp.
	chatBracketRegex = regexp.MustCompile(`^\s*\[\s*\d{1,2}[./]\d{1,2}(?:[./]\d{2,4})?(?:,?\s+\d{1,2}[:.]\d{2}(?::\d{2})?(?:\s*[APap]\.?[Mm]\.?)?)?\s*\]\s*`)

	// chatDashRegex matches the Android export prefix "12.05.2024, 14:30 - ".
	chatDashRegex = regexp.MustCompile(`^\s*\d{1,2}[./]\d{1,2}[./]\d{2,4},?\s+\d{1,2}:\d{2}(?::\d{2})?\s*-\s+`)

	urlRegex = regexp.MustCompile(`(?i)(?:https?://|www\.)\S+`)

	// numericDateRegex matches three-part numeric dates such as 12.05.2024 or 12/05/24.
	numericDateRegex = regexp.MustCompile(`(?:^|[^\d])(\d{1,2}[./-]\d{1,2}[./-](?:\d{4}|\d{2}))(?:[^\d]|$)`)

	spaceRegex = regexp.MustCompile(`[\s\x{00A0}]+`)
)

// invisibleRunes are stripped before any other cleanup. WhatsApp exports
// sprinkle direction marks around senders and timestamps.
var invisibleRunes = strings.NewReplacer(
	"\ufeff", "",
	"\u200b", "",
	"\u200e", "",
	"\u200f", "",
	"\u202a", "",
	"\u202c", "",
	"\u2066", "",
	"\u2069", "",
)

const leadingJunk = " \t-–—;,*•·>|_~=#"

// NormalizeLine cleans one raw input line: repairs mojibake, strips chat
// transport artifacts, and removes phone numbers, URLs, and date phrases.
// It never fails; unrecognized input is returned with only the safe
// transformations applied.
func (e *Extractor) NormalizeLine(s string) string {
	s = RepairMojibake(s)
	s = norm.NFC.String(s)
	s = invisibleRunes.Replace(s)
	s = stripChatStamp(s)
	s = e.stripSender(s)
	s = urlRegex.ReplaceAllString(s, " ")
	s = removePhones(s)
	s = e.removeDates(s)
	return tidy(s)
}

// tidy collapses whitespace and trims stray punctuation at both ends.
// A leading colon is kept when a digit follows, so ":30" survives for the
// classifier.
func tidy(s string) string {
	s = strings.TrimSpace(spaceRegex.ReplaceAllString(s, " "))
	for {
		before := s
		s = strings.TrimLeft(s, leadingJunk)
		if strings.HasPrefix(s, ":") && !isASCIIDigit(runeAt(s, 1)) {
			s = s[1:]
		}
		s = strings.TrimRight(s, " \t,;|-–—_~")
		if s == before {
			return s
		}
	}
}

func stripChatStamp(s string) string {
	if loc := chatBracketRegex.FindStringIndex(s); loc != nil {
		return s[loc[1]:]
	}
	if loc := chatDashRegex.FindStringIndex(s); loc != nil {
		return s[loc[1]:]
	}
	return s
}

// stripSender removes a leading "<sender>: " prefix. The left-hand side must
// contain letters, hold no time or flight token, and not be a field label;
// the colon must not be part of a time and must be followed by a space.
func (e *Extractor) stripSender(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] != ':' {
			continue
		}
		if isASCIIDigit(runeBefore(s, i)) && isASCIIDigit(runeAt(s, i+1)) {
			// colon inside a time such as 11:50
			continue
		}
		rest := s[i+1:]
		if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
			return s
		}
		lhs := strings.TrimSpace(s[:i])
		if !e.isSenderLabel(lhs) {
			return s
		}
		return strings.TrimSpace(rest)
	}
	return s
}

func (e *Extractor) isSenderLabel(lhs string) bool {
	if lhs == "" || countLetters(lhs) == 0 {
		return false
	}
	ws := scanWords(lhs)
	if len(ws) == 0 || len(ws) > 4 {
		return false
	}
	if e.lex.labels[foldPhrase(lhs)] {
		return false
	}
	if times, malformed := findTimes(lhs); len(times) > 0 || malformed > 0 {
		return false
	}
	if len(e.findFlights(lhs)) > 0 {
		return false
	}
	return true
}

// removePhones strips digit runs of 8 or more digits, optionally grouped by
// spaces, hyphens, or parentheses and prefixed with "+".
func removePhones(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if end, ok := phoneAt(s, i); ok {
			b.WriteByte(' ')
			i = end
			continue
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// phoneAt reports whether a phone number starts at byte i and where it ends.
func phoneAt(s string, i int) (int, bool) {
	c := s[i]
	if c != '+' && c != '(' && !isASCIIDigit(rune(c)) {
		return 0, false
	}
	prev := runeBefore(s, i)
	if unicode.IsLetter(prev) || unicode.IsDigit(prev) {
		return 0, false
	}
	if (prev == ':' || prev == '.') && isASCIIDigit(runeBefore(s, i-1)) {
		return 0, false
	}

	lastDigitEnd := -1
	prevGroupEnd := -1
scan:
	for j := i; j < len(s); j++ {
		ch := s[j]
		switch {
		case isASCIIDigit(rune(ch)):
			if lastDigitEnd != j {
				prevGroupEnd = lastDigitEnd
			}
			lastDigitEnd = j + 1
		case ch == ' ' || ch == '-' || ch == '(' || ch == ')':
		case ch == '+' && j == i:
		default:
			break scan
		}
	}
	if lastDigitEnd < 0 {
		return 0, false
	}
	end := lastDigitEnd
	// A trailing group glued to ":" or "." plus a digit is the hour of a time.
	if end < len(s) && (s[end] == ':' || s[end] == '.') && isASCIIDigit(runeAt(s, end+1)) {
		if prevGroupEnd < 0 {
			return 0, false
		}
		end = prevGroupEnd
	}
	if countDigits(s[i:end]) < 8 {
		return 0, false
	}
	return end, true
}

// removeDates removes numeric dates and "<day> <month>" phrases as whole
// units, together with an adjacent year and weekday, so no orphaned day
// number is left behind.
func (e *Extractor) removeDates(s string) string {
	s = removeNumericDates(s)

	ws := scanWords(s)
	if len(ws) < 2 {
		return s
	}

	type span struct{ start, end int }
	var spans []span
	for i := 0; i < len(ws)-1; i++ {
		first, last := -1, -1
		switch {
		case isDay(s, ws[i]) && e.lex.months[ws[i+1].fold] && dateGap(s, ws[i], ws[i+1]):
			first, last = i, i+1
		case e.lex.months[ws[i].fold] && isDay(s, ws[i+1]) && dateGap(s, ws[i], ws[i+1]):
			first, last = i, i+1
		default:
			continue
		}
		if last+1 < len(ws) && isYear(ws[last+1]) && dateGap(s, ws[last], ws[last+1]) {
			last++
		}
		if last+1 < len(ws) && e.lex.weekdays[ws[last+1].fold] && dateGap(s, ws[last], ws[last+1]) {
			last++
		}
		if first > 0 && e.lex.weekdays[ws[first-1].fold] && dateGap(s, ws[first-1], ws[first]) {
			first--
		}
		spans = append(spans, span{ws[first].start, ws[last].end})
		i = last
	}
	if len(spans) == 0 {
		return s
	}

	var b strings.Builder
	pos := 0
	for _, sp := range spans {
		if sp.start < pos {
			continue
		}
		b.WriteString(s[pos:sp.start])
		b.WriteByte(' ')
		pos = sp.end
		// swallow the punctuation glued to the phrase
		for pos < len(s) && (s[pos] == ',' || s[pos] == '.') {
			pos++
		}
	}
	b.WriteString(s[pos:])
	return b.String()
}

// isDay reports whether w is a 1-31 day number that is not half of a time token.
func isDay(s string, w word) bool {
	if !w.isDigits() || len(w.text) > 2 {
		return false
	}
	n := 0
	for _, r := range w.text {
		n = n*10 + int(r-'0')
	}
	if n < 1 || n > 31 {
		return false
	}
	after := runeAt(s, w.end)
	if (after == ':' || after == '.') && isASCIIDigit(runeAt(s, w.end+1)) {
		return false
	}
	before := runeBefore(s, w.start)
	if (before == ':' || before == '.') && isASCIIDigit(runeBefore(s, w.start-1)) {
		return false
	}
	return true
}

// removeNumericDates blanks out every three-part numeric date. Matches share
// their boundary characters, so it repeats until nothing changes.
func removeNumericDates(s string) string {
	for {
		loc := numericDateRegex.FindStringSubmatchIndex(s)
		if loc == nil {
			return s
		}
		s = s[:loc[2]] + " " + s[loc[3]:]
	}
}

func isYear(w word) bool {
	return w.isDigits() && len(w.text) == 4 && (strings.HasPrefix(w.text, "19") || strings.HasPrefix(w.text, "20"))
}

// dateGap reports whether only a short run of spaces, dots, or commas separates a and b.
func dateGap(s string, a, b word) bool {
	gap := s[a.end:b.start]
	if len(gap) > 3 {
		return false
	}
	return strings.Trim(gap, " .,") == ""
}

// RepairMojibake undoes UTF-8 text that was decoded as Windows-1252 or
// Latin-1. Only runs that re-encode to a valid UTF-8 sequence for a Latin
// letter or a typographic punctuation mark are replaced,
// and the result is kept only if it has no more mojibake markers than the
// input. Correct text is returned unchanged, and repeated calls are no-ops.
func RepairMojibake(s string) string {
	for range 3 {
		before := markerCount(s)
		if before == 0 {
			return s
		}
		repaired := repairRuns(s)
		if repaired == s || markerCount(repaired) > before {
			return s
		}
		s = repaired
	}
	return s
}

// mojibakeByte maps r back to the single byte it would have been decoded from.
func mojibakeByte(r rune) (byte, bool) {
	if r < 0x80 {
		return 0, false
	}
	if b, ok := charmap.Windows1252.EncodeRune(r); ok && b >= 0x80 {
		return b, true
	}
	if b, ok := charmap.ISO8859_1.EncodeRune(r); ok && b >= 0x80 {
		return b, true
	}
	return 0, false
}

// mojibakeLead reports whether b starts a sequence worth repairing:
// 0xC3-0xC5 cover Latin-1 Supplement and Latin Extended-A, where Turkish
// letters live; 0xE2 covers curly quotes and dashes.
func mojibakeLead(b byte) bool {
	return (b >= 0xC3 && b <= 0xC5) || b == 0xE2
}

// plausibleRepair reports whether r is a rune mojibake repair may produce.
// "KOÇ’UN" re-encodes to valid UTF-8 too, but as U+01D2, which no Turkish
// text contains.
func plausibleRepair(r rune) bool {
	switch {
	case r >= 0xC0 && r <= 0x17F:
		return unicode.IsLetter(r)
	case r >= 0x2010 && r <= 0x203A:
		return true
	}
	return false
}

// markerCount counts lead/continuation pairs that look like a split UTF-8
// sequence, plus replacement characters.
func markerCount(s string) int {
	n := strings.Count(s, string(utf8.RuneError))
	var prev byte
	havePrev := false
	for _, r := range s {
		b, ok := mojibakeByte(r)
		if ok && havePrev && mojibakeLead(prev) && b >= 0x80 && b <= 0xBF {
			n++
		}
		prev, havePrev = b, ok
	}
	return n
}

func repairRuns(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(runes); {
		j := i
		for j < len(runes) {
			if _, ok := mojibakeByte(runes[j]); !ok {
				break
			}
			j++
		}
		if j == i {
			b.WriteRune(runes[i])
			i++
			continue
		}
		b.WriteString(decodeRun(runes[i:j]))
		i = j
	}
	return b.String()
}

// decodeRun reinterprets a run of suspect runes as UTF-8 bytes, keeping the
// original rune wherever the bytes do not form a valid sequence.
func decodeRun(run []rune) string {
	bs := make([]byte, len(run))
	for k, r := range run {
		bs[k], _ = mojibakeByte(r)
	}
	var b strings.Builder
	for k := 0; k < len(bs); {
		if mojibakeLead(bs[k]) {
			r, size := utf8.DecodeRune(bs[k:])
			if r != utf8.RuneError && size > 1 && plausibleRepair(r) {
				b.WriteRune(r)
				k += size
				continue
			}
		}
		b.WriteRune(run[k])
		k++
	}
	return b.String()
}

package transfer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	// timeRegex finds H:MM / HH.MM shapes; boundaries and ranges are checked by hand.
	timeRegex = regexp.MustCompile(`(\d{1,2})([:.])(\d{2})`)

	// flightRegex finds 1-3 letters, an optional space, 2-5 digits and an optional suffix letter.
	flightRegex = regexp.MustCompile(`([A-Za-z]{1,3})( ?)(\d{2,5})([A-Za-z]?)`)
)

// TimeToken is a recognized pickup time.
type TimeToken struct {
	Hour   int
	Minute int
	Sep    byte
	Start  int
	End    int
}

// String renders the token as zero-padded HH:MM. The digits are the ones
// found in the input; only the separator and padding change.
func (t TimeToken) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// FlightToken is a recognized flight code, uppercase with no spaces.
type FlightToken struct {
	Code    string
	Start   int
	End     int
	Labeled bool
}

// findTimes returns every valid time token in s in order, and how many
// time-shaped matches were rejected for an out-of-range hour or minute.
func findTimes(s string) ([]TimeToken, int) {
	var times []TimeToken
	malformed := 0
	for _, m := range timeRegex.FindAllStringSubmatchIndex(s, -1) {
		start, end := m[0], m[1]
		if !timeBoundary(s, start, end) {
			continue
		}
		hour, _ := strconv.Atoi(s[m[2]:m[3]])
		minute, _ := strconv.Atoi(s[m[6]:m[7]])
		if hour > 23 || minute > 59 {
			malformed++
			continue
		}
		times = append(times, TimeToken{
			Hour:   hour,
			Minute: minute,
			Sep:    s[m[4]],
			Start:  start,
			End:    end,
		})
	}
	return times, malformed
}

// timeBoundary rejects matches glued to letters or digits, and matches that
// are two parts of a longer numeric date such as 12.05.2024.
func timeBoundary(s string, start, end int) bool {
	before := runeBefore(s, start)
	if unicode.IsLetter(before) || unicode.IsDigit(before) {
		return false
	}
	if (before == '.' || before == ':' || before == '/') && unicode.IsDigit(runeBefore(s, start-1)) {
		return false
	}
	after := runeAt(s, end)
	if unicode.IsDigit(after) {
		return false
	}
	if (after == '.' || after == ':' || after == '/') && unicode.IsDigit(runeAt(s, end+1)) {
		return false
	}
	return true
}

// IsPureTimeLine reports whether s holds nothing but a single time token,
// optionally introduced by a time label.
func (e *Extractor) IsPureTimeLine(s string) bool {
	times, _ := findTimes(s)
	if len(times) != 1 {
		return false
	}
	rest := s[:times[0].Start] + " " + s[times[0].End:]
	ws := scanWords(rest)
	for i := 0; i < len(ws); {
		n := matchPhrase(ws, i, e.lex.timeLabels)
		if n == 0 {
			return false
		}
		i += n
	}
	return true
}

// findFlights returns every flight code in s in order of appearance. When a
// flight label is present, the code following it comes first and may be
// written in lowercase.
func (e *Extractor) findFlights(s string) []FlightToken {
	var out []FlightToken
	if labelEnd, ok := e.flightLabelEnd(s); ok {
		for _, f := range e.flightCandidates(s[labelEnd:], true) {
			f.Start += labelEnd
			f.End += labelEnd
			f.Labeled = true
			out = append(out, f)
			break
		}
	}
	for _, f := range e.flightCandidates(s, false) {
		if len(out) > 0 && out[0].Start == f.Start {
			continue
		}
		out = append(out, f)
	}
	return out
}

// flightLabelEnd returns the byte offset just past a flight label and its
// trailing ":" or "#", if s contains one.
func (e *Extractor) flightLabelEnd(s string) (int, bool) {
	ws := scanWords(s)
	for i := range ws {
		n := matchPhrase(ws, i, e.lex.flightLabels)
		if n == 0 {
			continue
		}
		end := ws[i+n-1].end
		for end < len(s) && strings.ContainsRune(" \t:#.-", rune(s[end])) {
			end++
		}
		return end, true
	}
	return 0, false
}

func (e *Extractor) flightCandidates(s string, relaxed bool) []FlightToken {
	var out []FlightToken
	for _, m := range flightRegex.FindAllStringSubmatchIndex(s, -1) {
		start, end := m[0], m[1]
		letters := s[m[2]:m[3]]
		spaced := m[5] > m[4]
		digits := s[m[6]:m[7]]
		suffix := s[m[8]:m[9]]

		if r := runeBefore(s, start); unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		if r := runeAt(s, end); unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		if suffix == "" {
			after := runeAt(s, end)
			if (after == ':' || after == '.') && unicode.IsDigit(runeAt(s, end+1)) {
				continue
			}
		}
		if !relaxed && letters != strings.ToUpper(letters) && (spaced || len(letters) > 2) {
			continue
		}
		if e.lex.stopwords[strings.ToLower(letters)] {
			continue
		}
		out = append(out, FlightToken{
			Code:  strings.ToUpper(letters + digits + suffix),
			Start: start,
			End:   end,
		})
	}
	return out
}

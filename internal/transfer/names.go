package transfer

import (
	"regexp"
	"sort"
	"strings"
)

var (
	// bulletRegex matches list numbering and bullets at the start of a fragment.
	bulletRegex = regexp.MustCompile(`^\s*(?:\d{1,2}\s*[.)\-]\s+|[\-*•·–—>]+\s*)`)

	fragmentSplitRegex = regexp.MustCompile(`[,/;&+|]`)

	// multiplierRegex matches pax multipliers such as "x2" or "2x".
	multiplierRegex = regexp.MustCompile(`^(?:x\d{1,2}|\d{1,2}x)$`)
)

const fragmentTrim = " \t.:-–—()[]{}\"'*#!?"

type byteSpan struct{ start, end int }

// tokenSpans returns the byte spans of every time-shaped match and every
// flight code in s.
func (e *Extractor) tokenSpans(s string) []byteSpan {
	var spans []byteSpan
	for _, m := range timeRegex.FindAllStringIndex(s, -1) {
		if timeBoundary(s, m[0], m[1]) {
			spans = append(spans, byteSpan{m[0], m[1]})
		}
	}
	for _, f := range e.findFlights(s) {
		spans = append(spans, byteSpan{f.Start, f.End})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	return spans
}

// stripTokens blanks out time and flight tokens.
func (e *Extractor) stripTokens(s string) string {
	return replaceSpans(s, e.tokenSpans(s), " ")
}

func replaceSpans(s string, spans []byteSpan, with string) string {
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
		b.WriteString(with)
		pos = sp.end
	}
	b.WriteString(s[pos:])
	return b.String()
}

// Passengers extracts passenger name fragments from a cleaned line. Tokens,
// field labels, pax counts, bullets, and noise words are removed; what is
// left is split on list separators and each fragment must carry at least
// two letters and classify as substantive on its own.
func (e *Extractor) Passengers(s string) []string {
	// tokens become separators so "Funda TK1710 Ali" yields two names
	s = replaceSpans(s, e.tokenSpans(s), ",")

	var names []string
	for _, frag := range fragmentSplitRegex.Split(s, -1) {
		name := e.cleanFragment(frag)
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names
}

func (e *Extractor) cleanFragment(frag string) string {
	frag = bulletRegex.ReplaceAllString(frag, "")
	ws := scanWords(frag)

	keep := make([]string, 0, len(ws))
	for i := 0; i < len(ws); {
		if n := e.skipWords(ws, i); n > 0 {
			i += n
			continue
		}
		keep = append(keep, strings.Trim(ws[i].text, fragmentTrim))
		i++
	}

	// "Sirkeci Mah", "Bagdat Cad": a street or district, not a passenger
	if len(keep) >= 2 && e.lex.streets[foldPhrase(keep[len(keep)-1])] {
		return ""
	}

	name := strings.Join(keep, " ")
	if countLetters(name) < 2 {
		return ""
	}
	if e.Classify(name) != Substantive {
		return ""
	}
	return name
}

// skipWords reports how many words starting at i are not part of a name.
func (e *Extractor) skipWords(ws []word, i int) int {
	for _, list := range [][][]string{e.lex.nameLabels, e.lex.flightLabels, e.lex.timeLabels, e.lex.status} {
		if n := matchPhrase(ws, i, list); n > 0 {
			return n
		}
	}
	w := ws[i]
	switch {
	case w.isDigits():
		if i+1 < len(ws) && e.lex.pax[ws[i+1].fold] {
			return 2
		}
		return 1
	case multiplierRegex.MatchString(w.fold):
		return 1
	case e.lex.noise[w.fold], e.lex.pax[w.fold], e.lex.stopwords[w.fold]:
		return 1
	case w.letterCount() == 0:
		return 1
	}
	return 0
}

// nameSet is an ordered set of passenger names, unique by case-insensitive
// key, keeping the first-seen spelling.
type nameSet struct {
	names []string
	seen  map[string]bool
}

func (ns *nameSet) add(names ...string) {
	if ns.seen == nil {
		ns.seen = make(map[string]bool)
	}
	for _, n := range names {
		n = strings.Join(strings.Fields(n), " ")
		if n == "" {
			continue
		}
		k := dedupeKey(n)
		if ns.seen[k] {
			continue
		}
		ns.seen[k] = true
		ns.names = append(ns.names, n)
	}
}

func (ns *nameSet) list() []string {
	if len(ns.names) == 0 {
		return nil
	}
	out := make([]string, len(ns.names))
	copy(out, ns.names)
	return out
}

package transfer

import (
	"regexp"
	"sort"
	"strings"
)

// Line is a substantive cleaned line with its extracted tokens.
type Line struct {
	Number   int
	Raw      string
	Text     string
	Time     string
	Flight   string
	Flights  []string
	Names    []string
	PureTime bool
}

func (l Line) hasTime() bool   { return l.Time != "" }
func (l Line) hasFlight() bool { return l.Flight != "" }

// hasContent reports whether the line carries a flight or a passenger.
func (l Line) hasContent() bool {
	return l.Flight != "" || len(l.Names) > 0
}

// analyze runs the Normalizer, the Noise Classifier and the Token Extractors
// over raw input. Noise lines never reach the returned slice. A line with
// several time tokens is split so each time anchors its own segment.
func (e *Extractor) analyze(raw string, dropLines *regexp.Regexp, stats *Stats) []Line {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")
	raw = strings.TrimPrefix(raw, "\ufeff")

	rawLines := strings.Split(raw, "\n")
	stats.Lines = len(rawLines)

	var lines []Line
	for i, rawLine := range rawLines {
		if dropLines != nil && dropLines.MatchString(rawLine) {
			stats.drop(Filtered)
			continue
		}
		text := e.NormalizeLine(rawLine)
		class := e.Classify(text)
		if class != Substantive {
			stats.drop(class)
			continue
		}
		stats.Substantive++
		for _, seg := range splitAtTimes(text) {
			lines = append(lines, e.buildLine(i+1, rawLine, seg, stats))
		}
	}
	return lines
}

// splitAtTimes cuts text just before the second and later time tokens.
func splitAtTimes(text string) []string {
	times, _ := findTimes(text)
	if len(times) < 2 {
		return []string{text}
	}
	segs := make([]string, 0, len(times))
	start := 0
	for _, t := range times[1:] {
		segs = append(segs, strings.TrimSpace(text[start:t.Start]))
		start = t.Start
	}
	return append(segs, strings.TrimSpace(text[start:]))
}

func (e *Extractor) buildLine(number int, raw, text string, stats *Stats) Line {
	l := Line{Number: number, Raw: raw, Text: text}

	times, malformed := findTimes(text)
	stats.MalformedTokens += malformed
	if len(times) > 0 {
		l.Time = times[0].String()
		l.PureTime = e.IsPureTimeLine(text)
		stats.TimeTokens++
	}

	for _, f := range e.findFlights(text) {
		l.Flights = append(l.Flights, f.Code)
	}
	if len(l.Flights) > 0 {
		l.Flight = l.Flights[0]
		stats.FlightTokens += len(l.Flights)
	}

	l.Names = e.Passengers(text)
	return l
}

// segmentByTime groups lines around time anchors, one group per anchor.
//
// Layout is detected once. If content precedes the first anchor, times trail
// their blocks ("name / flight / time") and each block closes at the next
// anchor, provided nothing follows the last anchor, or every anchor is a pure
// time line and the first block already names a flight (a title line above
// leading times names none). Content after the last trailing anchor joins
// the last group.
// Otherwise times lead their blocks and each block belongs to the preceding
// anchor; stray content before the first anchor joins the first group.
func segmentByTime(lines []Line) [][]Line {
	var anchors []int
	allPure := true
	for i, l := range lines {
		if l.hasTime() {
			anchors = append(anchors, i)
			allPure = allPure && l.PureTime
		}
	}
	if len(anchors) == 0 {
		return nil
	}

	contentBefore, flightBefore := false, false
	for _, l := range lines[:anchors[0]] {
		contentBefore = contentBefore || l.hasContent()
		flightBefore = flightBefore || l.hasFlight()
	}
	contentAfter := false
	for _, l := range lines[anchors[len(anchors)-1]+1:] {
		if l.hasContent() {
			contentAfter = true
			break
		}
	}

	groups := make([][]Line, len(anchors))
	if contentBefore && (!contentAfter || (allPure && flightBefore)) {
		prev := 0
		for k, a := range anchors {
			end := a + 1
			if k == len(anchors)-1 {
				end = len(lines)
			}
			groups[k] = lines[prev:end]
			prev = a + 1
		}
		return groups
	}

	for k, a := range anchors {
		start, end := a, len(lines)
		if k == 0 {
			start = 0
		}
		if k+1 < len(anchors) {
			end = anchors[k+1]
		}
		groups[k] = lines[start:end]
	}
	return groups
}

// anchorOf returns the line in group that carries the time.
func anchorOf(group []Line) Line {
	for _, l := range group {
		if l.hasTime() {
			return l
		}
	}
	return group[0]
}

// timeAnchoredBuilders turns each anchor group into one builder. The anchor
// line's own flight wins over flights elsewhere in the block; otherwise the
// first flight seen is used.
func timeAnchoredBuilders(lines []Line) []*builder {
	groups := segmentByTime(lines)
	out := make([]*builder, 0, len(groups))
	for _, g := range groups {
		anchor := anchorOf(g)
		b := newBuilder(anchor)
		b.time = anchor.Time
		b.flight = anchor.Flight
		for _, l := range g {
			if b.flight == "" && l.Flight != "" {
				b.flight = l.Flight
			}
			b.absorb(l)
		}
		out = append(out, b)
	}
	return out
}

// fieldCompletion walks lines keeping at most one open record.
//
// Transitions:
//   - time and flight on one line: close the open record, open a new one.
//   - time only: fill the open record, or close it and open a new one if it
//     already has a time.
//   - flight only: same, for the flight field.
//   - names only: join the open record. A complete record whose last line
//     carried no names is closed first, since a fresh name block after a
//     finished job starts the next job.
//
// Closed records missing a field are returned as incomplete.
func fieldCompletion(lines []Line) (done []*builder, incomplete []*builder) {
	var open *builder
	lastHadNames := false

	closeOpen := func() {
		if open == nil {
			return
		}
		if open.complete() {
			done = append(done, open)
		} else {
			incomplete = append(incomplete, open)
		}
		open = nil
	}

	for _, l := range lines {
		switch {
		case l.hasTime() && l.hasFlight():
			closeOpen()
			open = newBuilder(l)
			open.time, open.flight = l.Time, l.Flight

		case l.hasTime():
			if open != nil && open.time != "" {
				closeOpen()
			}
			if open == nil {
				open = newBuilder(l)
			}
			open.time = l.Time

		case l.hasFlight():
			if open != nil && open.flight != "" {
				closeOpen()
			}
			if open == nil {
				open = newBuilder(l)
			}
			open.flight = l.Flight

		case len(l.Names) > 0:
			if open != nil && open.complete() && !lastHadNames {
				closeOpen()
			}
			if open == nil {
				open = newBuilder(l)
			}

		default:
			continue
		}
		open.absorb(l)
		lastHadNames = len(l.Names) > 0
	}
	closeOpen()
	return done, incomplete
}

// groupedRecords fans each anchor group out to one record per flight, merges
// records sharing a (time, flight) key, and sorts by time of day then flight.
// Without any time token the whole input becomes a single "?" time group.
func groupedRecords(lines []Line, keep func([]Line) bool) ([]Record, int) {
	groups := segmentByTime(lines)
	if len(groups) == 0 && len(lines) > 0 {
		groups = [][]Line{lines}
	}

	merged := make(map[string]*builder)
	var order []string
	dropped := 0
	for _, g := range groups {
		if !keep(g) {
			dropped++
			continue
		}
		anchor := anchorOf(g)

		var flights []string
		seen := make(map[string]bool)
		for _, l := range append([]Line{anchor}, g...) {
			for _, f := range l.Flights {
				if !seen[f] {
					seen[f] = true
					flights = append(flights, f)
				}
			}
		}

		var names nameSet
		for _, l := range g {
			names.add(l.Names...)
		}
		if anchor.Time == "" && len(flights) == 0 && len(names.names) == 0 {
			continue
		}
		if len(flights) == 0 {
			flights = []string{""}
		}

		for _, f := range flights {
			key := Record{Time: orUnknown(anchor.Time), Flight: orUnknown(f)}.Key()
			b, ok := merged[key]
			if !ok {
				b = newBuilder(anchor)
				b.time, b.flight = anchor.Time, f
				merged[key] = b
				order = append(order, key)
			}
			b.names.add(names.names...)
		}
	}

	records := make([]Record, 0, len(order))
	for _, key := range order {
		records = append(records, merged[key].record())
	}
	sort.SliceStable(records, func(i, j int) bool {
		ti, tj := timeSortKey(records[i].Time), timeSortKey(records[j].Time)
		if ti != tj {
			return ti < tj
		}
		return flightSortKey(records[i].Flight) < flightSortKey(records[j].Flight)
	})
	return records, dropped
}

// timeSortKey orders HH:MM by minute of day with "?" last.
func timeSortKey(t string) int {
	if len(t) != 5 || t[2] != ':' {
		return 24 * 60
	}
	return (int(t[0]-'0')*10+int(t[1]-'0'))*60 + int(t[3]-'0')*10 + int(t[4]-'0')
}

// flightSortKey orders flight codes lexically with "?" last.
func flightSortKey(f string) string {
	if f == Unknown {
		return "\uffff"
	}
	return f
}

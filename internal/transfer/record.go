package transfer

import (
	"fmt"
	"strings"
)

// Unknown is the sentinel for a field that was never found.
const Unknown = "?"

// Record is one transfer job: a pickup time, a flight code, and passengers.
type Record struct {
	Time       string   `json:"time"`
	Flight     string   `json:"flight"`
	Passengers []string `json:"passengers"`
}

// Key identifies a record for grouping.
func (r Record) Key() string {
	return r.Time + "|" + r.Flight
}

// Incomplete is a record that never met the field-completion condition.
type Incomplete struct {
	Line    int      `json:"line"`
	Record  Record   `json:"record"`
	Missing []string `json:"missing"`
}

func (i Incomplete) String() string {
	return fmt.Sprintf("line %d: missing %s", i.Line, strings.Join(i.Missing, ", "))
}

// Stats describes what the pipeline saw in one run.
type Stats struct {
	Lines           int            `json:"lines"`
	Substantive     int            `json:"substantive"`
	Dropped         map[string]int `json:"dropped,omitempty"`
	TimeTokens      int            `json:"time_tokens"`
	FlightTokens    int            `json:"flight_tokens"`
	MalformedTokens int            `json:"malformed_tokens"`
	DroppedRecords  int            `json:"dropped_records"`
}

func (s *Stats) drop(c Class) {
	if s.Dropped == nil {
		s.Dropped = make(map[string]int)
	}
	s.Dropped[c.String()]++
}

// Result is the outcome of one extraction run.
type Result struct {
	Records    []Record     `json:"records"`
	Incomplete []Incomplete `json:"incomplete,omitempty"`
	Stats      Stats        `json:"stats"`
}

// builder accumulates one record's fields while the state machine walks lines.
type builder struct {
	time      string
	flight    string
	names     nameSet
	firstLine int
	lines     []Line
}

func newBuilder(first Line) *builder {
	return &builder{firstLine: first.Number}
}

func (b *builder) absorb(l Line) {
	b.lines = append(b.lines, l)
	b.names.add(l.Names...)
}

func (b *builder) complete() bool {
	return b.time != "" && b.flight != "" && len(b.names.names) > 0
}

func (b *builder) missing() []string {
	var m []string
	if b.time == "" {
		m = append(m, "time")
	}
	if b.flight == "" {
		m = append(m, "flight")
	}
	if len(b.names.names) == 0 {
		m = append(m, "passengers")
	}
	return m
}

func (b *builder) record() Record {
	r := Record{
		Time:       orUnknown(b.time),
		Flight:     orUnknown(b.flight),
		Passengers: b.names.list(),
	}
	if r.Passengers == nil {
		r.Passengers = []string{}
	}
	return r
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}

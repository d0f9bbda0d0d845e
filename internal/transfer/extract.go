// Package transfer turns pasted transfer-listing chat text into structured
// transfer records and renders them as tab-separated rows.
//
// The pipeline runs in a fixed order: each line is normalized, classified as
// noise or content, scanned for time, flight and name tokens, and then fed to
// a segmentation policy that decides where one record ends and the next
// begins. Extraction is pure: the same input, policy and options always
// produce the same result.
package transfer

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Extractor runs the pipeline with a fixed vocabulary. It is safe for
// concurrent use.
type Extractor struct {
	lex *lexicon
}

// NewExtractor compiles a vocabulary. A nil vocabulary uses the defaults.
func NewExtractor(v *Vocabulary) *Extractor {
	if v == nil {
		v = DefaultVocabulary()
	}
	return &Extractor{lex: compileVocabulary(v)}
}

var defaultExtractor = sync.OnceValue(func() *Extractor {
	return NewExtractor(nil)
})

// Default returns the shared extractor built from DefaultVocabulary.
func Default() *Extractor {
	return defaultExtractor()
}

// Options tune a single run.
type Options struct {
	// DropLinesMatching removes raw lines matching this pattern before
	// normalization. Matching is case-insensitive.
	DropLinesMatching string `json:"drop_lines_matching,omitempty"`

	// DropRecordsMatching removes every record with a source line matching
	// this pattern. Matching is case-insensitive.
	DropRecordsMatching string `json:"drop_records_matching,omitempty"`
}

// compilePattern compiles a user pattern case-insensitively. A pattern that
// is not a valid regular expression is matched literally.
func compilePattern(pattern string) *regexp.Regexp {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil
	}
	if re, err := regexp.Compile("(?i)" + pattern); err == nil {
		return re
	}
	return regexp.MustCompile("(?i)" + regexp.QuoteMeta(pattern))
}

// ValidateOptions reports patterns that would only match literally.
func ValidateOptions(opts Options) error {
	patterns := []struct{ name, value string }{
		{"drop_lines_matching", opts.DropLinesMatching},
		{"drop_records_matching", opts.DropRecordsMatching},
	}
	for _, p := range patterns {
		if strings.TrimSpace(p.value) == "" {
			continue
		}
		if _, err := regexp.Compile("(?i)" + strings.TrimSpace(p.value)); err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
	}
	return nil
}

// Extract runs the full pipeline over raw text. Records is never nil; empty
// input yields an empty slice.
func (e *Extractor) Extract(raw string, policy Policy, opts Options) Result {
	if policy == "" {
		policy = DefaultPolicy
	}
	res := Result{Records: []Record{}}
	lines := e.analyze(raw, compilePattern(opts.DropLinesMatching), &res.Stats)
	if len(lines) == 0 {
		return res
	}

	dropRecords := compilePattern(opts.DropRecordsMatching)
	keep := func(group []Line) bool {
		if dropRecords == nil {
			return true
		}
		for _, l := range group {
			if dropRecords.MatchString(l.Text) || dropRecords.MatchString(l.Raw) {
				return false
			}
		}
		return true
	}

	switch policy {
	case GroupedByKey:
		records, dropped := groupedRecords(lines, keep)
		res.Records = records
		res.Stats.DroppedRecords = dropped

	case FieldCompletion:
		done, incomplete := fieldCompletion(lines)
		for _, b := range done {
			if !keep(b.lines) {
				res.Stats.DroppedRecords++
				continue
			}
			res.Records = append(res.Records, b.record())
		}
		for _, b := range incomplete {
			if !keep(b.lines) {
				res.Stats.DroppedRecords++
				continue
			}
			res.Incomplete = append(res.Incomplete, Incomplete{
				Line:    b.firstLine,
				Record:  b.record(),
				Missing: b.missing(),
			})
		}

	default:
		for _, b := range timeAnchoredBuilders(lines) {
			if !keep(b.lines) {
				res.Stats.DroppedRecords++
				continue
			}
			res.Records = append(res.Records, b.record())
		}
	}
	return res
}

// Extract runs the default extractor.
func Extract(raw string, policy Policy, opts Options) Result {
	return Default().Extract(raw, policy, opts)
}


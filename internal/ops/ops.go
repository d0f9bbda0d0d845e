package ops

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/hpungsan/transferbot/internal/config"
	"github.com/hpungsan/transferbot/internal/errors"
	"github.com/hpungsan/transferbot/internal/telemetry"
	"github.com/hpungsan/transferbot/internal/transfer"
)

// Pagination limits
const (
	DefaultListLimit    = 20
	MaxListLimit        = 100
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
	MaxSessionIDLength  = 128
)

// HintNoRecords is returned alongside an empty table.
const HintNoRecords = "no pickup time detected"

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// ValidateSessionID trims and checks a caller-supplied session id.
func ValidateSessionID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.NewInvalidRequest("session_id is required")
	}
	if len(id) > MaxSessionIDLength {
		return "", errors.NewInvalidRequest(fmt.Sprintf("session_id exceeds %d bytes", MaxSessionIDLength))
	}
	for _, r := range id {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return "", errors.NewInvalidRequest("session_id must not contain whitespace or control characters")
		}
	}
	return id, nil
}

// checkSize rejects text longer than cfg.MaxInputChars.
func checkSize(cfg *config.Config, text string) error {
	if cfg == nil || cfg.MaxInputChars <= 0 {
		return nil
	}
	if n := utf8.RuneCountInString(text); n > cfg.MaxInputChars {
		return errors.NewInputTooLarge(cfg.MaxInputChars, n)
	}
	return nil
}

// RunSettings are the per-call overrides shared by extract and finish.
type RunSettings struct {
	Policy              string `json:"policy,omitempty"`
	DropLinesMatching   string `json:"drop_lines_matching,omitempty"`
	DropRecordsMatching string `json:"drop_records_matching,omitempty"`
	IncludeBOM          bool   `json:"include_bom,omitempty"`
}

// resolve applies config defaults under the call's overrides.
func (s RunSettings) resolve(cfg *config.Config) (transfer.Policy, transfer.Options, bool, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	name := s.Policy
	if strings.TrimSpace(name) == "" {
		name = cfg.Policy
	}
	policy, err := transfer.ParsePolicy(name)
	if err != nil {
		return "", transfer.Options{}, false, errors.NewInvalidRequest(err.Error())
	}

	opts := transfer.Options{
		DropLinesMatching:   firstNonEmpty(s.DropLinesMatching, cfg.DropLinesMatching),
		DropRecordsMatching: firstNonEmpty(s.DropRecordsMatching, cfg.DropRecordsMatching),
	}
	if err := transfer.ValidateOptions(opts); err != nil {
		return "", transfer.Options{}, false, errors.NewInvalidRequest(err.Error())
	}

	return policy, opts, s.IncludeBOM || cfg.IncludeBOM, nil
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

type extractorKey struct{}

var extractors sync.Map // vocabulary path -> *transfer.Extractor

// LoadExtractor returns the extractor for cfg.VocabularyPath, compiling it on
// first use.
func LoadExtractor(cfg *config.Config) (*transfer.Extractor, error) {
	path := ""
	if cfg != nil {
		path = strings.TrimSpace(cfg.VocabularyPath)
	}
	if path == "" {
		return transfer.Default(), nil
	}
	if ex, ok := extractors.Load(path); ok {
		return ex.(*transfer.Extractor), nil
	}
	vocab, err := transfer.LoadVocabulary(path)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("vocabulary_path: %v", err))
	}
	ex, _ := extractors.LoadOrStore(path, transfer.NewExtractor(vocab))
	return ex.(*transfer.Extractor), nil
}

// WithExtractor attaches an extractor to ctx, overriding the configured vocabulary.
func WithExtractor(ctx context.Context, ex *transfer.Extractor) context.Context {
	return context.WithValue(ctx, extractorKey{}, ex)
}

func extractorFor(ctx context.Context, cfg *config.Config) (*transfer.Extractor, error) {
	if ex, ok := ctx.Value(extractorKey{}).(*transfer.Extractor); ok && ex != nil {
		return ex, nil
	}
	return LoadExtractor(cfg)
}

// Conversion is a rendered extraction.
type Conversion struct {
	Table      string                `json:"table"`
	Records    []transfer.Record     `json:"records"`
	Incomplete []transfer.Incomplete `json:"incomplete,omitempty"`
	Stats      transfer.Stats        `json:"stats"`
	Policy     transfer.Policy       `json:"policy"`
	Hint       string                `json:"hint,omitempty"`
}

// convert runs one extraction, renders it, and records telemetry under op.
func convert(ctx context.Context, cfg *config.Config, op, text string, settings RunSettings) (*Conversion, error) {
	policy, opts, bom, err := settings.resolve(cfg)
	if err != nil {
		return nil, err
	}
	ex, err := extractorFor(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled(op)
	}

	rec := telemetry.Default()
	ctx, span := rec.Start(ctx, "transfer."+op)
	defer span.End()

	start := time.Now()
	res := ex.Extract(text, policy, opts)
	rec.Record(ctx, op, policy, res, time.Since(start))

	out := &Conversion{
		Table:      transfer.Render(res.Records, bom),
		Records:    res.Records,
		Incomplete: res.Incomplete,
		Stats:      res.Stats,
		Policy:     policy,
	}
	if len(res.Records) == 0 {
		out.Hint = HintNoRecords
	}
	return out, nil
}

package ops

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/transferbot/internal/config"
	"github.com/hpungsan/transferbot/internal/errors"
	"github.com/hpungsan/transferbot/internal/transfer"
)

func TestValidateSessionID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		want    string
		wantErr bool
	}{
		{"uuid", "3f1c2a9e-1b2c-4d5e-8f90-123456789abc", "3f1c2a9e-1b2c-4d5e-8f90-123456789abc", false},
		{"trimmed", "  cli  ", "cli", false},
		{"empty", "", "", true},
		{"blank", "   ", "", true},
		{"inner space", "a b", "", true},
		{"control char", "a\x00b", "", true},
		{"too long", strings.Repeat("x", MaxSessionIDLength+1), "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateSessionID(tc.id)
			if tc.wantErr {
				if !errors.Is(err, errors.ErrInvalidRequest) {
					t.Errorf("expected ErrInvalidRequest, got: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("ValidateSessionID(%q) = %q, want %q", tc.id, got, tc.want)
			}
		})
	}
}

func TestRunSettings_Resolve(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Policy = "grouped"
	cfg.DropRecordsMatching = `\bSAW\b`
	cfg.IncludeBOM = true

	policy, opts, bom, err := RunSettings{}.resolve(cfg)
	require.NoError(t, err)
	assert.Equal(t, transfer.GroupedByKey, policy)
	assert.Equal(t, `\bSAW\b`, opts.DropRecordsMatching)
	assert.True(t, bom)

	policy, opts, _, err = RunSettings{Policy: "field-completion", DropRecordsMatching: "ESB"}.resolve(cfg)
	require.NoError(t, err)
	assert.Equal(t, transfer.FieldCompletion, policy)
	assert.Equal(t, "ESB", opts.DropRecordsMatching)

	policy, _, bom, err = RunSettings{}.resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, transfer.TimeAnchored, policy)
	assert.False(t, bom)
}

func TestRunSettings_ResolveErrors(t *testing.T) {
	tests := []struct {
		name     string
		settings RunSettings
	}{
		{"unknown policy", RunSettings{Policy: "by_flight"}},
		{"bad line pattern", RunSettings{DropLinesMatching: "(unclosed"}},
		{"bad record pattern", RunSettings{DropRecordsMatching: "[a-"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, _, err := tc.settings.resolve(config.DefaultConfig())
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("expected ErrInvalidRequest, got: %v", err)
			}
		})
	}
}

func TestLoadExtractor(t *testing.T) {
	ex, err := LoadExtractor(nil)
	require.NoError(t, err)
	assert.Same(t, transfer.Default(), ex)

	path := filepath.Join(t.TempDir(), "vocab.toml")
	require.NoError(t, os.WriteFile(path, []byte(`noise_words = ["shuttle"]`), 0600))
	cfg := config.DefaultConfig()
	cfg.VocabularyPath = path

	first, err := LoadExtractor(cfg)
	require.NoError(t, err)
	second, err := LoadExtractor(cfg)
	require.NoError(t, err)
	assert.Same(t, first, second, "compiled extractor is cached per path")

	cfg.VocabularyPath = filepath.Join(t.TempDir(), "missing.toml")
	_, err = LoadExtractor(cfg)
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)
}

func TestExtract_Text(t *testing.T) {
	out, err := Extract(context.Background(), config.DefaultConfig(), ExtractInput{
		Text: "Funda Kara\nTK1710\n18:05",
	})
	require.NoError(t, err)

	assert.Equal(t, transfer.Header+"\n18:05\t\tTK1710\tFunda Kara", out.Table)
	assert.Equal(t, transfer.TimeAnchored, out.Policy)
	require.Len(t, out.Records, 1)
	assert.Empty(t, out.Hint)
	assert.Equal(t, 1, out.Stats.TimeTokens)
}

func TestExtract_NoRecordsHint(t *testing.T) {
	out, err := Extract(context.Background(), config.DefaultConfig(), ExtractInput{Text: "Funda Kara\nTK1710"})
	require.NoError(t, err)

	assert.Equal(t, transfer.Header, out.Table)
	assert.Empty(t, out.Records)
	assert.Equal(t, HintNoRecords, out.Hint)
}

func TestExtract_IncludeBOM(t *testing.T) {
	out, err := Extract(context.Background(), nil, ExtractInput{
		Text:        "18:05 TK1710 Funda Kara",
		RunSettings: RunSettings{IncludeBOM: true},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.Table, transfer.BOM+transfer.Header))
}

func TestExtract_TooLarge(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxInputChars = 10

	_, err := Extract(context.Background(), cfg, ExtractInput{Text: "18:05 TK1710 Funda Kara"})
	assert.True(t, errors.Is(err, errors.ErrInputTooLarge), "got %v", err)
}

func TestExtract_FromFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{dir}

	path := filepath.Join(dir, "paste.txt")
	require.NoError(t, os.WriteFile(path, []byte("18:05 TK1710 Funda Kara\n"), 0600))

	out, err := Extract(context.Background(), cfg, ExtractInput{Path: path})
	require.NoError(t, err)
	require.Len(t, out.Records, 1)
	assert.Equal(t, "TK1710", out.Records[0].Flight)

	_, err = Extract(context.Background(), cfg, ExtractInput{Path: path, Text: "x"})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)

	_, err = Extract(context.Background(), cfg, ExtractInput{Path: filepath.Join(dir, "missing.txt")})
	assert.True(t, errors.Is(err, errors.ErrFileNotFound), "got %v", err)
}

func TestExtract_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Extract(ctx, nil, ExtractInput{Text: "18:05"})
	assert.True(t, errors.Is(err, errors.ErrCancelled), "got %v", err)
}

func TestExtract_WithExtractor(t *testing.T) {
	v := transfer.MergeVocabulary(transfer.DefaultVocabulary(), &transfer.Vocabulary{NoiseWords: []string{"shuttle"}})
	ctx := WithExtractor(context.Background(), transfer.NewExtractor(v))

	out, err := Extract(ctx, nil, ExtractInput{Text: "18:05 TK1710\nShuttle Funda Kara"})
	require.NoError(t, err)
	require.Len(t, out.Records, 1)
	assert.Equal(t, []string{"Funda Kara"}, out.Records[0].Passengers)
}

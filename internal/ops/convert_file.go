package ops

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/transferbot/internal/config"
	"github.com/hpungsan/transferbot/internal/errors"
	"github.com/hpungsan/transferbot/internal/transfer"
)

// ConvertFileInput contains parameters for the ConvertFile operation.
type ConvertFileInput struct {
	Source string // .txt file
	Target string // optional, default: Source with a .tsv extension
	RunSettings
}

// ConvertFileOutput contains the result of the ConvertFile operation.
type ConvertFileOutput struct {
	Source     string `json:"source"`
	Target     string `json:"target"`
	Records    int    `json:"records"`
	Incomplete int    `json:"incomplete"`
	Hint       string `json:"hint,omitempty"`
}

// TargetFor returns the .tsv path written next to a .txt source.
func TargetFor(source string) string {
	return strings.TrimSuffix(source, filepath.Ext(source)) + ".tsv"
}

// ConvertFile converts a dropped .txt file into a .tsv beside it. The caller
// chooses the directory, so allowed_paths does not apply. Symlinks are still
// refused and the target always carries a BOM.
func ConvertFile(ctx context.Context, cfg *config.Config, input ConvertFileInput) (*ConvertFileOutput, error) {
	src := filepath.Clean(input.Source)
	if !strings.EqualFold(filepath.Ext(src), ".txt") {
		return nil, errors.NewInvalidRequest("source must have .txt extension")
	}
	dst := input.Target
	if dst == "" {
		dst = TargetFor(src)
	}
	if !strings.EqualFold(filepath.Ext(dst), ".tsv") {
		return nil, errors.NewInvalidRequest("target must have .tsv extension")
	}

	file, err := openFileNoFollowRead(src)
	if err != nil {
		if _, ok := err.(*errors.TransferError); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open %s: %w", src, err))
	}
	data, err := io.ReadAll(file)
	file.Close()
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to read %s: %w", src, err))
	}

	text := string(data)
	if err := checkSize(cfg, text); err != nil {
		return nil, err
	}

	conv, err := convert(ctx, cfg, "convert_file", text, input.RunSettings)
	if err != nil {
		return nil, err
	}

	table := conv.Table
	if !strings.HasPrefix(table, transfer.BOM) {
		table = transfer.BOM + table
	}
	if info, err := os.Lstat(dst); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInvalidRequest("target must not be a symlink")
	}
	if err := writeFileAtomic(dst, []byte(table)); err != nil {
		return nil, err
	}

	return &ConvertFileOutput{
		Source:     src,
		Target:     dst,
		Records:    len(conv.Records),
		Incomplete: len(conv.Incomplete),
		Hint:       conv.Hint,
	}, nil
}

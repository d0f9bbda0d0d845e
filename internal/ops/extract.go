package ops

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/hpungsan/transferbot/internal/config"
	"github.com/hpungsan/transferbot/internal/errors"
)

// ExtractInput contains parameters for the stateless Extract operation.
// Exactly one of Text or Path must be set.
type ExtractInput struct {
	Text string
	Path string // .txt file to read instead of Text
	RunSettings
}

// ExtractOutput contains the result of the Extract operation.
type ExtractOutput struct {
	Conversion
}

// Extract converts text without touching any session.
func Extract(ctx context.Context, cfg *config.Config, input ExtractInput) (*ExtractOutput, error) {
	text := input.Text
	path := strings.TrimSpace(input.Path)

	if path != "" {
		if text != "" {
			return nil, errors.NewInvalidRequest("specify either text or path, not both")
		}
		var err error
		text, err = readInputFile(path, cfg)
		if err != nil {
			return nil, err
		}
	}

	if err := checkSize(cfg, text); err != nil {
		return nil, err
	}

	conv, err := convert(ctx, cfg, "extract", text, input.RunSettings)
	if err != nil {
		return nil, err
	}
	return &ExtractOutput{Conversion: *conv}, nil
}

// readInputFile reads a validated .txt file, refusing symlinks and files
// larger than the configured input limit.
func readInputFile(path string, cfg *config.Config) (string, error) {
	if err := ValidatePath(path, PathCheckRead, cfg); err != nil {
		return "", err
	}

	file, err := openFileNoFollowRead(path)
	if err != nil {
		if _, ok := err.(*errors.TransferError); ok {
			return "", err
		}
		return "", errors.NewInternal(fmt.Errorf("failed to open input file: %w", err))
	}
	defer file.Close()

	limit := int64(config.DefaultConfig().MaxInputChars)
	if cfg != nil && cfg.MaxInputChars > 0 {
		limit = int64(cfg.MaxInputChars)
	}
	// a rune is at most 4 bytes; checkSize enforces the exact count
	data, err := io.ReadAll(io.LimitReader(file, limit*4+1))
	if err != nil {
		return "", errors.NewInternal(fmt.Errorf("failed to read input file: %w", err))
	}
	if int64(len(data)) > limit*4 {
		return "", errors.NewInputTooLarge(int(limit), len(data))
	}
	return string(data), nil
}

package ops

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/hpungsan/transferbot/internal/config"
	"github.com/hpungsan/transferbot/internal/errors"
	"github.com/hpungsan/transferbot/internal/session"
	"github.com/hpungsan/transferbot/internal/transfer"
)

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	SessionID string
	Path      string // optional, default: ~/.transferbot/exports/<session>-<timestamp>.tsv
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Rows       int    `json:"rows"`
	Bytes      int    `json:"bytes"`
	ExportedAt int64  `json:"exported_at"`
}

// Export writes a session's last result to a .tsv file. The file always
// starts with a UTF-8 BOM so spreadsheet imports detect the encoding.
func Export(ctx context.Context, store session.Store, cfg *config.Config, input ExportInput) (*ExportOutput, error) {
	id, err := ValidateSessionID(input.SessionID)
	if err != nil {
		return nil, err
	}

	table, err := store.GetLastResult(ctx, id)
	if err != nil {
		return nil, err
	}
	if table == "" {
		return nil, errors.NewInvalidRequest("session has no result; run finish first")
	}
	if !strings.HasPrefix(table, transfer.BOM) {
		table = transfer.BOM + table
	}

	// Determine export path
	now := time.Now()
	exportPath := input.Path
	if exportPath == "" {
		exportPath, err = defaultExportPath(id, now)
		if err != nil {
			return nil, err
		}
	}

	// Validate ALL paths (both user-provided and default) for security
	if err := ValidatePath(exportPath, PathCheckWrite, cfg); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("export")
	}

	if err := writeFileAtomic(exportPath, []byte(table)); err != nil {
		return nil, err
	}

	return &ExportOutput{
		Path:       exportPath,
		Rows:       strings.Count(table, "\n"),
		Bytes:      len(table),
		ExportedAt: now.Unix(),
	}, nil
}

// writeFileAtomic writes data to a temp file next to path and renames it into
// place, so an existing file survives a failed write.
func writeFileAtomic(path string, data []byte) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	// Write to temp file first, then atomic rename to preserve existing file on failure
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		if _, ok := err.(*errors.TransferError); ok {
			return err
		}
		return errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	// Clean up temp file on failure (original file is preserved)
	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return errors.NewInternal(err)
	}
	// Ensure file is written
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}

	// Close before rename (required on Windows).
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlinked destination
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInternal(fmt.Errorf("export path is a symlink"))
	}

	// Windows refuses to rename over an existing file; fail rather than
	// delete-then-rename.
	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewInvalidRequest("export destination already exists; overwriting is not supported on Windows (choose a new path or delete the existing file)")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return nil
}

// defaultExportPath generates ~/.transferbot/exports/<session>-<timestamp>.tsv.
func defaultExportPath(sessionID string, now time.Time) (string, error) {
	dir, err := DefaultExportsDir()
	if err != nil {
		return "", err
	}

	// Sanitize so a crafted session id cannot escape the exports directory
	name := SanitizeForFilename(sessionID)
	if r := []rune(name); len(r) > 8 {
		name = string(r[:8])
	}
	filename := fmt.Sprintf("%s-%s.tsv", name, now.Format("2006-01-02T150405"))
	return filepath.Join(dir, filename), nil
}

package logging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// LogRotator renames a log file into numbered backups once it grows past a size limit.
// Backups are path.1 (newest) through path.N (oldest).
type LogRotator struct {
	basePath   string
	maxBytes   int64
	maxBackups int
}

// NewLogRotator creates a rotator for basePath. maxSizeMB <= 0 disables rotation.
func NewLogRotator(basePath string, maxSizeMB, maxBackups int) *LogRotator {
	return &LogRotator{
		basePath:   basePath,
		maxBytes:   int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
	}
}

// ShouldRotate reports whether a file of currentSize bytes has reached the limit.
func (r *LogRotator) ShouldRotate(currentSize int64) bool {
	return r.maxBytes > 0 && currentSize >= r.maxBytes
}

// Rotate shifts backups up by one, dropping the oldest, and moves the live file to path.1.
// With maxBackups == 0 the live file is removed instead.
func (r *LogRotator) Rotate() error {
	if r.maxBackups <= 0 {
		if err := os.Remove(r.basePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove log file: %w", err)
		}
		return nil
	}

	if err := os.Remove(r.backup(r.maxBackups)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove oldest backup: %w", err)
	}
	for i := r.maxBackups - 1; i >= 1; i-- {
		if err := renameIfExists(r.backup(i), r.backup(i+1)); err != nil {
			return err
		}
	}
	return renameIfExists(r.basePath, r.backup(1))
}

func (r *LogRotator) backup(n int) string {
	return fmt.Sprintf("%s.%d", r.basePath, n)
}

func renameIfExists(from, to string) error {
	err := os.Rename(from, to)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("rename %s to %s: %w", from, to, err)
}

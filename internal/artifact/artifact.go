// Package artifact writes files that other processes poll for. Every write
// lands in a temporary file in the destination directory and is renamed into
// place, so a reader checking for existence never sees a partial file.
package artifact

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// WriteFile atomically writes data to path with the given permissions.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	return WriteFrom(path, bytes.NewReader(data), perm)
}

// WriteFrom streams r into a temporary file next to path and renames it into
// place once r is drained and synced.
func WriteFrom(path string, r io.Reader, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// CopyFile atomically copies src to dst, keeping src's permissions.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	return WriteFrom(dst, in, info.Mode().Perm())
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// NonEmptySize returns the size of a regular file, or an error if the file is
// missing, not regular, or empty.
func NonEmptySize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", path)
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("%s is empty", path)
	}
	return info.Size(), nil
}

// NewRunID returns an identifier that ties a test report to the capture
// recorded during the same window.
func NewRunID() string {
	return uuid.NewString()
}

// TimestampName returns "<prefix>_YYYYMMDD_HHMMSS<ext>" for t in local time.
func TimestampName(prefix, ext string, t time.Time) string {
	return fmt.Sprintf("%s_%s%s", prefix, t.Format("20060102_150405"), ext)
}

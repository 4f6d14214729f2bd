package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// partPattern names staging files; CreateTemp swaps the trailing '*'
// for a random suffix.
const partPattern = ".part-*"

// FileWriter stages bytes in a uniquely named part file next to the
// final path and promotes it with a single rename on Commit, so a
// reader at the destination path only ever sees a complete file. Each
// writer owns its own staging file: writers racing toward the same
// destination never touch each other's bytes, and the last Commit wins
// the destination.
type FileWriter struct {
	file *os.File
	path string
	tmp  string
}

// BeginWrite creates the destination directory and a staging file for
// path. The caller must finish with exactly one of Commit, Discard, or
// Close.
func BeginWrite(path string) (*FileWriter, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create destination dir: %w", err)
	}
	file, err := os.CreateTemp(dir, filepath.Base(path)+partPattern)
	if err != nil {
		return nil, fmt.Errorf("create part file: %w", err)
	}
	// CreateTemp opens 0600; the rename would carry that mode onto the
	// destination.
	if err := file.Chmod(0o644); err != nil {
		file.Close()
		os.Remove(file.Name())
		return nil, fmt.Errorf("chmod part file: %w", err)
	}
	return &FileWriter{file: file, path: path, tmp: file.Name()}, nil
}

func (w *FileWriter) Write(p []byte) (int, error) {
	return w.file.Write(p)
}

// Commit flushes the staged bytes and renames the part file onto the
// destination path.
func (w *FileWriter) Commit() error {
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return fmt.Errorf("sync part file: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close part file: %w", err)
	}
	if err := os.Rename(w.tmp, w.path); err != nil {
		return fmt.Errorf("promote part file: %w", err)
	}
	return nil
}

// Discard closes the staging file and removes it from disk. Used on
// cancellation, where nothing partial may survive near the destination.
func (w *FileWriter) Discard() {
	w.file.Close()
	os.Remove(w.tmp)
}

// Close closes the staging file but leaves it on disk, for error paths
// where the partial bytes are deliberately kept.
func (w *FileWriter) Close() error {
	return w.file.Close()
}

// WriteFile writes data to path through the same stage-and-rename dance
// and returns the byte count. A failed write leaves the part file behind,
// like any other mid-transfer error.
func WriteFile(path string, data []byte) (int64, error) {
	w, err := BeginWrite(path)
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return 0, fmt.Errorf("write part file: %w", err)
	}
	if err := w.Commit(); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

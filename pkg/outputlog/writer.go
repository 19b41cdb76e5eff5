package outputlog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Write sorts entries and writes them to w in the merged log format.
// The slice is sorted in place.
func Write(w io.Writer, entries []Entry) error {
	SortEntries(entries)

	bw := bufio.NewWriter(w)
	for _, entry := range entries {
		if _, err := bw.Write(FormatEntry(entry)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile sorts entries and writes them to path. The data is written to a temporary
// file in the same directory which is renamed to path only after everything was written
// and synced, so a failed write never leaves a partial file at path.
func WriteFile(path string, entries []Entry) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = Write(tmp, entries); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", tmp.Name(), err)
	}
	// CreateTemp uses 0600, merged logs are ordinary files
	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", tmp.Name(), path, err)
	}
	return nil
}

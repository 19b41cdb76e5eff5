package main

import (
	"fmt"
	"log/slog"
	"os"

	"dmerg/pkg/outputlog"
)

// mergeFiles reads timestamped lines from every file, in argument order. Lines without a
// timestamp are skipped and logged.
func mergeFiles(paths []string) ([]outputlog.Entry, error) {
	var all []outputlog.Entry
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		entries, skipped, err := outputlog.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if skipped > 0 {
			slog.Warn("Skipped lines without timestamp", "file", path, "count", skipped)
		}
		for i := range entries {
			entries[i].Stream = path
		}
		all = append(all, entries...)
	}
	outputlog.SortEntries(all)
	return all, nil
}

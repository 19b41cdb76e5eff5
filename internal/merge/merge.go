// Package merge collects entries from concurrent producers into one archive and echoes
// them to the console in arrival order.
package merge

import (
	"io"
	"log/slog"
	"sync"

	"dmerg/pkg/outputlog"
)

// Aggregator is the single point where all producers converge. The archive and the
// console share one lock, so console order is exactly Submit order.
type Aggregator struct {
	mu      sync.Mutex
	console io.Writer // nil when console output is disabled
	archive []outputlog.Entry
	counts  map[string]int
	drained bool
}

// New creates an Aggregator. Pass a nil console to disable console output.
func New(console io.Writer) *Aggregator {
	return &Aggregator{
		console: console,
		counts:  make(map[string]int),
	}
}

// Submit appends entry to the archive and, if console output is enabled, writes it to the
// console. It is safe for concurrent use. After Drain, Submit drops the entry and returns
// false.
func (a *Aggregator) Submit(entry outputlog.Entry) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.drained {
		slog.Debug("Dropping entry submitted after drain", "stream", entry.Stream)
		return false
	}

	a.archive = append(a.archive, entry)
	a.counts[entry.Stream]++

	if a.console != nil {
		if _, err := a.console.Write(outputlog.FormatEntry(entry)); err != nil {
			slog.Error("Console write failed, disabling console output", "error", err)
			a.console = nil
		}
	}
	return true
}

// Len returns the number of archived entries.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.archive)
}

// Stats returns the number of archived entries per stream.
func (a *Aggregator) Stats() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := make(map[string]int, len(a.counts))
	for stream, n := range a.counts {
		stats[stream] = n
	}
	return stats
}

// Drain closes the aggregator and hands over the archive in arrival order. Subsequent
// calls return nil.
func (a *Aggregator) Drain() []outputlog.Entry {
	a.mu.Lock()
	defer a.mu.Unlock()

	archive := a.archive
	a.archive = nil
	a.drained = true
	return archive
}

// Package outputlog defines the merged log format. See doc.go for docs.
package outputlog

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// TimeFormat is the layout of the timestamp field.
const TimeFormat = "2006-01-02T15:04:05.000000-0700"

// Stream names used by dmerg producers.
const (
	StreamStdin  = "stdin"
	StreamKernel = "kernel"
)

// ErrMalformedLine is returned by ParseLine for lines that do not start with a timestamp.
var ErrMalformedLine = errors.New("malformed line")

// parseLayouts are tried in order by ParseLine. Fractional seconds are accepted by
// time.Parse even though the layouts do not spell them out.
var parseLayouts = []string{
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05Z07:00",
}

// Entry is one line of a merged log.
type Entry struct {
	Timestamp time.Time
	Text      string // without trailing newline
	Stream    string // producer name, not part of the formatted line
}

// FormatEntry formats an Entry into the merged log format, including the trailing newline.
func FormatEntry(entry Entry) []byte {
	return fmt.Appendf(nil, "%s %s\n", entry.Timestamp.Format(TimeFormat), entry.Text)
}

// ParseLine parses one line (with or without trailing newline) of a merged log.
func ParseLine(line string) (Entry, error) {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	stamp, text, _ := strings.Cut(line, " ")
	if stamp == "" {
		return Entry{}, fmt.Errorf("%w: missing timestamp", ErrMalformedLine)
	}
	// dmesg --time-format iso uses a comma as fractional separator
	stamp = strings.Replace(stamp, ",", ".", 1)

	var lastErr error
	for _, layout := range parseLayouts {
		ts, err := time.Parse(layout, stamp)
		if err == nil {
			return Entry{Timestamp: ts, Text: text}, nil
		}
		lastErr = err
	}
	return Entry{}, fmt.Errorf("%w: %v", ErrMalformedLine, lastErr)
}

// SortEntries sorts entries ascending by timestamp. Entries with equal timestamps keep
// their relative order.
func SortEntries(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}

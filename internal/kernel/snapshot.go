package kernel

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"sync"
	"time"

	"dmerg/pkg/outputlog"
)

// ringRegex matches one ring buffer record: <level>[seconds.fraction] text
var ringRegex = regexp.MustCompile(`^<(\d+)>\[\s*(\d+)\.(\d+)\] ?(.*)$`)

// ringRecord is one parsed ring buffer record.
type ringRecord struct {
	at   time.Duration // since boot, kernel clock
	text string
}

// watermark remembers the newest record already emitted: its kernel time and the texts of
// the records carrying that exact time in the last snapshot.
type watermark struct {
	at   time.Duration
	seen map[string]int
	set  bool
}

// advance returns the records of a snapshot that are newer than the watermark and moves
// the watermark to the end of the snapshot. Records must be in ring buffer order.
func (w *watermark) advance(records []ringRecord) []ringRecord {
	if len(records) == 0 {
		return nil
	}

	// records at the watermark time are matched by text, so one rotated out of the
	// buffer does not hide a new one with the same time
	pending := make(map[string]int, len(w.seen))
	for text, n := range w.seen {
		pending[text] = n
	}

	var fresh []ringRecord
	for _, r := range records {
		switch {
		case !w.set || r.at > w.at:
			fresh = append(fresh, r)
		case r.at == w.at:
			if pending[r.text] > 0 {
				pending[r.text]--
				continue
			}
			fresh = append(fresh, r)
		}
	}

	last := records[len(records)-1].at
	if !w.set || last >= w.at {
		seen := make(map[string]int)
		for _, r := range records {
			if r.at == last {
				seen[r.text]++
			}
		}
		w.at, w.seen, w.set = last, seen, true
	}
	return fresh
}

type snapshotSource struct {
	opts     Options
	readRing func() ([]byte, error)
	boot     time.Time
	mark     watermark

	done      chan struct{}
	closeOnce sync.Once
}

func openSnapshot(opts Options, readRing func() ([]byte, error)) (*snapshotSource, error) {
	if _, err := readRing(); err != nil {
		return nil, unavailable("reading kernel ring buffer", err)
	}
	boot, err := bootTime()
	if err != nil {
		return nil, unavailable("boot time", err)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	slog.Debug("Polling kernel ring buffer", "interval", opts.PollInterval, "boot", boot)

	return &snapshotSource{
		opts:     opts,
		readRing: readRing,
		boot:     boot,
		done:     make(chan struct{}),
	}, nil
}

func (s *snapshotSource) Entries(ctx context.Context) <-chan outputlog.Entry {
	ch := make(chan outputlog.Entry, 64)
	go func() {
		defer close(ch)

		ticker := time.NewTicker(s.opts.PollInterval)
		defer ticker.Stop()

		for {
			for _, entry := range s.poll() {
				if !send(ctx, s.done, ch, entry) {
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()
	return ch
}

// poll reads the ring buffer once and returns the entries not returned by an earlier poll
// that pass the cutoff filter.
func (s *snapshotSource) poll() []outputlog.Entry {
	data, err := s.readRing()
	if err != nil {
		slog.Warn("Reading kernel ring buffer failed", "error", err)
		return nil
	}

	var entries []outputlog.Entry
	for _, r := range s.mark.advance(parseRing(data)) {
		ts := s.boot.Add(r.at)
		if !s.opts.keep(ts) {
			continue
		}
		entries = append(entries, outputlog.Entry{
			Timestamp: ts,
			Text:      r.text,
			Stream:    outputlog.StreamKernel,
		})
	}
	return entries
}

func (s *snapshotSource) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// parseRing splits a ring buffer snapshot into records, skipping lines without a kernel
// timestamp.
func parseRing(data []byte) []ringRecord {
	var records []ringRecord
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		r, err := parseRingRecord(string(line))
		if err != nil {
			slog.Debug("Skipping ring buffer record", "error", err)
			continue
		}
		records = append(records, r)
	}
	return records
}

func parseRingRecord(line string) (ringRecord, error) {
	match := ringRegex.FindStringSubmatch(line)
	if match == nil {
		return ringRecord{}, fmt.Errorf("no timestamp in %q", line)
	}

	secs, err := strconv.ParseInt(match[2], 10, 64)
	if err != nil {
		return ringRecord{}, fmt.Errorf("parsing seconds in %q: %w", line, err)
	}

	// the fraction is usually microseconds; scale whatever width it has to nanoseconds
	frac := match[3]
	if len(frac) > 9 {
		frac = frac[:9]
	}
	nanos, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return ringRecord{}, fmt.Errorf("parsing fraction in %q: %w", line, err)
	}
	for i := len(frac); i < 9; i++ {
		nanos *= 10
	}

	return ringRecord{
		at:   time.Duration(secs)*time.Second + time.Duration(nanos),
		text: match[4],
	}, nil
}

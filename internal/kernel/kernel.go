// Package kernel produces timestamped entries from the kernel log.
//
// Three strategies share the Source interface: a live journalctl feed, a polled snapshot of
// the kernel ring buffer (the same data dmesg prints) and a live /dev/kmsg reader. Every
// strategy converts kernel time to wall-clock time before an entry leaves this package and
// drops entries older than the cutoff unless full output was requested.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/host"

	"dmerg/pkg/outputlog"
)

// ErrSourceUnavailable is wrapped by Open when the backing mechanism cannot be accessed.
var ErrSourceUnavailable = errors.New("kernel log source unavailable")

// Kind selects the strategy used to read the kernel log.
type Kind string

const (
	KindJournal Kind = "journal"
	KindDmesg   Kind = "dmesg"
	KindKmsg    Kind = "kmsg"
)

// DefaultPollInterval is the snapshot poll interval used when Options.PollInterval is zero.
const DefaultPollInterval = 500 * time.Millisecond

// Options configures Open.
type Options struct {
	Kind         Kind
	Cutoff       time.Time     // entries before Cutoff are dropped unless Full is set
	Full         bool          // emit the whole available kernel log
	PollInterval time.Duration // only used by KindDmesg
}

// Source is an opened kernel log.
type Source interface {
	// Entries starts reading and returns the channel entries are delivered on. The
	// channel is closed when ctx is cancelled, the source ends or Close is called. Entries
	// must be called at most once.
	Entries(ctx context.Context) <-chan outputlog.Entry

	// Close stops reading and releases the underlying resources. It is safe to call more
	// than once.
	Close() error
}

// Open checks that the kernel log selected by opts is readable and returns a Source for
// it. Errors caused by missing permissions or a missing service wrap ErrSourceUnavailable.
func Open(ctx context.Context, opts Options) (Source, error) {
	var (
		src Source
		err error
	)
	switch opts.Kind {
	case KindJournal, "":
		var s *journalSource
		if s, err = openJournal(ctx, opts); err == nil {
			src = s
		}
	case KindDmesg:
		var s *snapshotSource
		if s, err = openSnapshot(opts, readRing); err == nil {
			src = s
		}
	case KindKmsg:
		src, err = openKmsg(opts)
	default:
		err = fmt.Errorf("unknown kernel log source %q", opts.Kind)
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}

// keep reports whether an entry stamped ts passes the cutoff filter.
func (o Options) keep(ts time.Time) bool {
	return o.Full || !ts.Before(o.Cutoff)
}

func unavailable(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, what, err)
}

// hostBootTime is the portable, second-resolution boot time.
func hostBootTime() (time.Time, error) {
	secs, err := host.BootTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get boot time: %w", err)
	}
	return time.Unix(int64(secs), 0), nil
}

// send delivers entry unless ctx or done is closed first.
func send(ctx context.Context, done <-chan struct{}, ch chan<- outputlog.Entry, entry outputlog.Entry) bool {
	select {
	case ch <- entry:
		return true
	case <-ctx.Done():
		return false
	case <-done:
		return false
	}
}

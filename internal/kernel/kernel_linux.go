package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/euank/go-kmsg-parser/kmsgparser"
	"golang.org/x/sys/unix"

	"dmerg/pkg/outputlog"
)

// klogctl(2) actions
const (
	syslogActionReadAll    = 3
	syslogActionSizeBuffer = 10
)

// readRing returns a snapshot of the whole kernel ring buffer.
func readRing() ([]byte, error) {
	size, err := unix.Klogctl(syslogActionSizeBuffer, nil)
	if err != nil {
		return nil, fmt.Errorf("klogctl size: %w", err)
	}
	buf := make([]byte, size)
	n, err := unix.Klogctl(syslogActionReadAll, buf)
	if err != nil {
		return nil, fmt.Errorf("klogctl read all: %w", err)
	}
	return buf[:n], nil
}

// bootTime returns the wall-clock time the printk clock started at. printk stamps stop
// while the system is suspended, as CLOCK_MONOTONIC does.
func bootTime() (time.Time, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		slog.Debug("CLOCK_MONOTONIC unavailable, using host boot time", "error", err)
		return hostBootTime()
	}
	return time.Now().Add(-time.Duration(ts.Nano())), nil
}

// kmsgLogger routes kmsgparser diagnostics to slog. Read errors after done is closed come
// from closing the device and are logged at debug level.
type kmsgLogger struct {
	done <-chan struct{}
}

func (kmsgLogger) Infof(format string, args ...interface{}) {
	slog.Debug(fmt.Sprintf(format, args...), "source", "kmsg")
}

func (kmsgLogger) Warningf(format string, args ...interface{}) {
	slog.Warn(fmt.Sprintf(format, args...), "source", "kmsg")
}

func (l kmsgLogger) Errorf(format string, args ...interface{}) {
	select {
	case <-l.done:
		slog.Debug(fmt.Sprintf(format, args...), "source", "kmsg")
	default:
		slog.Error(fmt.Sprintf(format, args...), "source", "kmsg")
	}
}

type kmsgSource struct {
	opts   Options
	parser kmsgparser.Parser
	done   chan struct{}
	once   sync.Once
}

func openKmsg(opts Options) (Source, error) {
	parser, err := kmsgparser.NewParser()
	if err != nil {
		return nil, unavailable("opening /dev/kmsg", err)
	}
	return newKmsgSource(opts, parser), nil
}

func newKmsgSource(opts Options, parser kmsgparser.Parser) *kmsgSource {
	done := make(chan struct{})
	parser.SetLogger(kmsgLogger{done: done})
	return &kmsgSource{
		opts:   opts,
		parser: parser,
		done:   done,
	}
}

func (s *kmsgSource) Entries(ctx context.Context) <-chan outputlog.Entry {
	ch := make(chan outputlog.Entry, 64)
	messages := s.parser.Parse()
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	go func() {
		defer close(ch)

		lastSeq := -1
		for msg := range messages {
			// sequence numbers only grow; anything else was already emitted
			if msg.SequenceNumber <= lastSeq {
				continue
			}
			lastSeq = msg.SequenceNumber

			if !s.opts.keep(msg.Timestamp) {
				continue
			}
			entry := outputlog.Entry{
				Timestamp: msg.Timestamp,
				Text:      strings.TrimRight(msg.Message, "\n"),
				Stream:    outputlog.StreamKernel,
			}
			if !send(ctx, s.done, ch, entry) {
				return
			}
		}
	}()
	return ch
}

func (s *kmsgSource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.parser.Close()
	})
	return err
}

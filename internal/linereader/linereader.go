// Package linereader turns a byte stream into timestamped entries, one per line.
package linereader

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"dmerg/pkg/outputlog"
)

// Read reads lines from reader and calls submit for each of them. Every line is stamped
// with the wall-clock time at which it was completely read. The trailing newline (and a
// carriage return in front of it) is stripped. A last line without newline is submitted
// too.
//
// Read returns nil at end of input, ctx.Err() if ctx was cancelled between two lines, or
// the read error. A Read blocked inside reader cannot be interrupted by ctx; callers which
// must not wait for it abandon the goroutine.
func Read(ctx context.Context, reader io.Reader, stream string, submit func(outputlog.Entry)) error {
	return read(ctx, reader, stream, submit, time.Now)
}

func read(ctx context.Context, reader io.Reader, stream string, submit func(outputlog.Entry), now func() time.Time) error {
	br := bufio.NewReader(reader)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			stamp := now()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			submit(outputlog.Entry{
				Timestamp: stamp,
				Text:      trimNewline(line),
				Stream:    stream,
			})
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func trimNewline(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}

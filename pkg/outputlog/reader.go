package outputlog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Line is one line read from a merged log. Err is set if the line could not be parsed or
// reading failed; in the latter case it is the last value sent.
type Line struct {
	Entry
	Number int
	Err    error
}

// Lines reads r in a goroutine and emits every line on the returned channel. The channel
// is closed at end of input or after a read error.
func Lines(r io.Reader) <-chan Line {
	channel := make(chan Line)
	go readToChannel(r, channel)
	return channel
}

func readToChannel(r io.Reader, channel chan<- Line) {
	defer close(channel)

	br := bufio.NewReader(r)
	number := 0
	for {
		text, err := br.ReadString('\n')
		if len(text) > 0 {
			number++
			entry, parseErr := ParseLine(text)
			channel <- Line{Entry: entry, Number: number, Err: parseErr}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				channel <- Line{Number: number, Err: fmt.Errorf("reading line %d: %w", number+1, err)}
			}
			return
		}
	}
}

// ReadAll reads every parsable entry of r in file order. Lines which do not parse are
// counted in skipped. A read error stops reading and is returned.
func ReadAll(r io.Reader) (entries []Entry, skipped int, err error) {
	for line := range Lines(r) {
		switch {
		case line.Err == nil:
			entries = append(entries, line.Entry)
		case errors.Is(line.Err, ErrMalformedLine):
			skipped++
		default:
			err = line.Err
		}
	}
	return entries, skipped, err
}

package kernel

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"dmerg/pkg/outputlog"
)

// journalctl is a variable so tests can point it at a fake binary.
var journalctl = "journalctl"

// journalRecord holds the fields of `journalctl -o json` dmerg uses.
type journalRecord struct {
	Realtime string          `json:"__REALTIME_TIMESTAMP"`
	Message  json.RawMessage `json:"MESSAGE"`
}

type journalSource struct {
	opts   Options
	cmd    *exec.Cmd
	stdout io.ReadCloser

	done      chan struct{}
	closeOnce sync.Once
}

func openJournal(ctx context.Context, opts Options) (*journalSource, error) {
	path, err := exec.LookPath(journalctl)
	if err != nil {
		return nil, unavailable("journalctl not found", err)
	}

	// journalctl exits non-zero when the journal cannot be read by this user
	check := exec.CommandContext(ctx, path, "-k", "--lines=1", "--quiet", "-o", "json")
	if _, err := check.Output(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, unavailable("journalctl -k", errors.New(strings.TrimSpace(string(exitErr.Stderr))))
		}
		return nil, unavailable("journalctl -k", err)
	}

	cmd := exec.Command(path, journalArgs(opts)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create journalctl stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, unavailable("starting journalctl", err)
	}
	slog.Debug("Started journalctl", "command", cmd.String(), "pid", cmd.Process.Pid)

	return &journalSource{
		opts:   opts,
		cmd:    cmd,
		stdout: stdout,
		done:   make(chan struct{}),
	}, nil
}

func journalArgs(opts Options) []string {
	args := []string{"-k", "-f", "-o", "json", "--lines=all"}
	if !opts.Full {
		// --since has second resolution; the exact cutoff is applied per record
		args = append(args, "--since="+opts.Cutoff.Local().Format("2006-01-02 15:04:05"))
	}
	return args
}

func (s *journalSource) Entries(ctx context.Context) <-chan outputlog.Entry {
	ch := make(chan outputlog.Entry, 64)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	go func() {
		defer close(ch)
		pumpJournal(ctx, s.done, s.stdout, s.opts, ch)
		err := s.cmd.Wait()
		slog.Debug("journalctl exited", "error", err)
	}()
	return ch
}

func (s *journalSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
	})
	return nil
}

// pumpJournal reads `journalctl -o json` records from r until EOF and sends those passing
// the cutoff filter to ch. Malformed records are skipped.
func pumpJournal(ctx context.Context, done <-chan struct{}, r io.Reader, opts Options, ch chan<- outputlog.Entry) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			entry, parseErr := parseJournalRecord(line)
			switch {
			case parseErr != nil:
				slog.Debug("Skipping malformed journal record", "error", parseErr)
			case opts.keep(entry.Timestamp):
				if !send(ctx, done, ch, entry) {
					return
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("Reading journalctl output failed", "error", err)
			}
			return
		}
	}
}

func parseJournalRecord(line []byte) (outputlog.Entry, error) {
	var record journalRecord
	if err := json.Unmarshal(line, &record); err != nil {
		return outputlog.Entry{}, fmt.Errorf("decoding record: %w", err)
	}

	usec, err := strconv.ParseInt(record.Realtime, 10, 64)
	if err != nil {
		return outputlog.Entry{}, fmt.Errorf("parsing __REALTIME_TIMESTAMP %q: %w", record.Realtime, err)
	}

	text, err := journalMessage(record.Message)
	if err != nil {
		return outputlog.Entry{}, err
	}

	return outputlog.Entry{
		Timestamp: time.UnixMicro(usec),
		Text:      strings.TrimRight(text, "\n"),
		Stream:    outputlog.StreamKernel,
	}, nil
}

// journalMessage decodes MESSAGE, which journalctl prints as a string or, for
// non-UTF-8 payloads, as an array of byte values.
func journalMessage(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", errors.New("record has no MESSAGE")
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}

	var values []int
	if err := json.Unmarshal(raw, &values); err != nil {
		return "", fmt.Errorf("decoding MESSAGE: %w", err)
	}
	b := make([]byte, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return "", fmt.Errorf("decoding MESSAGE: byte value %d out of range", v)
		}
		b[i] = byte(v)
	}
	return string(b), nil
}

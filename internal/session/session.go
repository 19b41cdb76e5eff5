// Package session runs one merge: it wires the line input and the kernel log into the
// aggregator, decides when to stop and writes the sorted result.
package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"dmerg/internal/config"
	"dmerg/internal/kernel"
	"dmerg/internal/linereader"
	"dmerg/internal/merge"
	"dmerg/pkg/outputlog"
)

// ForcedExitCode is the exit status used when a second interrupt arrives while draining.
const ForcedExitCode = 130

// State is the lifecycle state of a Session.
type State int32

const (
	StateRunning State = iota
	StateDraining
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Deps are the collaborators of a Session. Zero fields get process defaults.
type Deps struct {
	Input      io.Reader        // line source, default os.Stdin
	Console    io.Writer        // live view, default os.Stdout
	Notice     io.Writer        // destination report, default os.Stderr
	Signals    <-chan os.Signal // interrupts; nil disables signal handling
	OpenSource func(context.Context, kernel.Options) (kernel.Source, error)
	Exit       func(code int) // forced exit, default os.Exit
	Now        func() time.Time
}

// Result describes a finished run.
type Result struct {
	Path    string
	Entries int
	Streams map[string]int
	Reason  string // what ended collection
}

// Session merges one input stream with the kernel log.
type Session struct {
	cfg   config.Config
	deps  Deps
	state atomic.Int32
}

// New creates a Session. cfg must be valid.
func New(cfg config.Config, deps Deps) *Session {
	if deps.Input == nil {
		deps.Input = os.Stdin
	}
	if deps.Console == nil {
		deps.Console = os.Stdout
	}
	if deps.Notice == nil {
		deps.Notice = os.Stderr
	}
	if deps.OpenSource == nil {
		deps.OpenSource = kernel.Open
	}
	if deps.Exit == nil {
		deps.Exit = os.Exit
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Session{cfg: cfg, deps: deps}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(state State) {
	slog.Debug("Session state changed", "state", state)
	s.state.Store(int32(state))
}

// Run collects until the input ends, an interrupt arrives or ctx is cancelled, then writes
// the merged log. A kernel log that cannot be opened is reported before anything else
// happens; nothing is written in that case.
func (s *Session) Run(ctx context.Context) (Result, error) {
	cutoff := s.deps.Now()
	src, err := s.deps.OpenSource(ctx, kernel.Options{
		Kind:         s.cfg.SourceKind(),
		Cutoff:       cutoff,
		Full:         s.cfg.Full,
		PollInterval: s.cfg.PollInterval,
	})
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = src.Close() }()

	var console io.Writer
	if !s.cfg.ConsoleOff {
		console = s.deps.Console
	}
	agg := merge.New(console)

	s.setState(StateRunning)
	slog.Info("Collecting", "source", s.cfg.SourceKind(), "cutoff", cutoff.Format(outputlog.TimeFormat), "full", s.cfg.Full)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// the input reader may stay blocked in Read forever; it is never waited for
	inputDone := make(chan error, 1)
	go func() {
		inputDone <- linereader.Read(runCtx, s.deps.Input, outputlog.StreamStdin, func(e outputlog.Entry) {
			agg.Submit(e)
		})
	}()

	kernelDone := make(chan struct{})
	go func() {
		defer close(kernelDone)
		for entry := range src.Entries(runCtx) {
			agg.Submit(entry)
		}
	}()

	var reason string
	select {
	case err := <-inputDone:
		reason = "end of input"
		if err != nil {
			slog.Warn("Reading input failed", "error", err)
			reason = "input error"
		}
	case sig := <-s.deps.Signals:
		reason = "signal " + sig.String()
	case <-ctx.Done():
		reason = ctx.Err().Error()
	}

	s.setState(StateDraining)
	slog.Info("Draining", "reason", reason)

	drained := make(chan struct{})
	defer close(drained)
	go s.exitOnSecondSignal(drained)

	cancel()
	_ = src.Close()
	<-kernelDone

	entries := agg.Drain()
	result := Result{Entries: len(entries), Streams: agg.Stats(), Reason: reason}

	path, generated, err := outputlog.ResolvePath(s.cfg.Output)
	if err != nil {
		return result, fmt.Errorf("merged log lost (%d entries): %w", len(entries), err)
	}
	if err := outputlog.WriteFile(path, entries); err != nil {
		return result, fmt.Errorf("merged log lost (%d entries): %w", len(entries), err)
	}
	result.Path = path

	s.setState(StateTerminated)
	slog.Info("Output written", "path", path, "entries", result.Entries, "streams", result.Streams)
	if !s.cfg.ConsoleOff || generated {
		fmt.Fprintf(s.deps.Notice, "\n+ Output written to %s\n", path)
	}
	return result, nil
}

// exitOnSecondSignal exits the process immediately when another interrupt arrives before
// drained is closed.
func (s *Session) exitOnSecondSignal(drained <-chan struct{}) {
	select {
	case sig := <-s.deps.Signals:
		slog.Warn("Second interrupt while draining, exiting without writing output", "signal", sig.String())
		s.deps.Exit(ForcedExitCode)
	case <-drained:
	}
}

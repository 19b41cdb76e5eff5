package merge

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"dmerg/pkg/outputlog"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2021, 9, 17, 18, 0, 0, 0, time.UTC)

func TestSubmit_ConsoleInArrivalOrder(t *testing.T) {
	var console bytes.Buffer
	agg := New(&console)

	agg.Submit(outputlog.Entry{Timestamp: t0, Text: "1", Stream: outputlog.StreamStdin})
	agg.Submit(outputlog.Entry{Timestamp: t0.Add(time.Second), Text: "2", Stream: outputlog.StreamStdin})
	agg.Submit(outputlog.Entry{Timestamp: t0.Add(500 * time.Millisecond), Text: "kernel", Stream: outputlog.StreamKernel})

	expected := "2021-09-17T18:00:00.000000+0000 1\n" +
		"2021-09-17T18:00:01.000000+0000 2\n" +
		"2021-09-17T18:00:00.500000+0000 kernel\n"
	require.Equal(t, expected, console.String())

	archive := agg.Drain()
	require.Len(t, archive, 3)
	require.Equal(t, "kernel", archive[2].Text)
}

func TestSubmit_ConsoleDisabled(t *testing.T) {
	agg := New(nil)

	for i := 0; i < 5; i++ {
		require.True(t, agg.Submit(outputlog.Entry{Timestamp: t0, Text: fmt.Sprint(i)}))
	}

	require.Equal(t, 5, agg.Len())
	require.Len(t, agg.Drain(), 5)
}

func TestSubmit_AfterDrain(t *testing.T) {
	var console bytes.Buffer
	agg := New(&console)
	agg.Submit(outputlog.Entry{Timestamp: t0, Text: "kept"})

	archive := agg.Drain()
	ok := agg.Submit(outputlog.Entry{Timestamp: t0, Text: "late"})

	require.False(t, ok)
	require.Len(t, archive, 1)
	require.NotContains(t, console.String(), "late")
	require.Nil(t, agg.Drain())
}

type brokenWriter struct{ calls int }

func (w *brokenWriter) Write(p []byte) (int, error) {
	w.calls++
	return 0, errors.New("broken pipe")
}

func TestSubmit_ConsoleErrorKeepsArchiving(t *testing.T) {
	w := &brokenWriter{}
	agg := New(w)

	agg.Submit(outputlog.Entry{Timestamp: t0, Text: "a"})
	agg.Submit(outputlog.Entry{Timestamp: t0, Text: "b"})

	require.Equal(t, 1, w.calls)
	require.Equal(t, 2, agg.Len())
}

func TestStats(t *testing.T) {
	agg := New(nil)
	agg.Submit(outputlog.Entry{Stream: outputlog.StreamStdin})
	agg.Submit(outputlog.Entry{Stream: outputlog.StreamKernel})
	agg.Submit(outputlog.Entry{Stream: outputlog.StreamStdin})

	require.Equal(t, map[string]int{outputlog.StreamStdin: 2, outputlog.StreamKernel: 1}, agg.Stats())
}

func TestSubmit_Concurrent(t *testing.T) {
	var console bytes.Buffer
	agg := New(&console)

	const producers, perProducer = 4, 250
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				agg.Submit(outputlog.Entry{
					Timestamp: t0.Add(time.Duration(i) * time.Millisecond),
					Text:      fmt.Sprintf("p%d-%d", p, i),
					Stream:    fmt.Sprintf("p%d", p),
				})
			}
		}(p)
	}
	wg.Wait()

	archive := agg.Drain()
	require.Len(t, archive, producers*perProducer)

	// console lines are whole and in the same order as the archive
	lines := strings.Split(strings.TrimSuffix(console.String(), "\n"), "\n")
	require.Len(t, lines, len(archive))
	for i, line := range lines {
		require.Equal(t, string(outputlog.FormatEntry(archive[i])), line+"\n")
	}

	// every entry appears exactly once
	seen := map[string]bool{}
	for _, e := range archive {
		require.False(t, seen[e.Text], "duplicate %s", e.Text)
		seen[e.Text] = true
	}
}

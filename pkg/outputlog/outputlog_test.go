package outputlog

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatEntry(t *testing.T) {
	timestamp := time.Date(2021, 9, 17, 18, 41, 2, 668895000, time.UTC)
	entry := Entry{Timestamp: timestamp, Text: "hello world", Stream: StreamStdin}

	result := FormatEntry(entry)

	require.Equal(t, "2021-09-17T18:41:02.668895+0000 hello world\n", string(result))
}

func TestFormatEntry_KeepsOffset(t *testing.T) {
	zone := time.FixedZone("CEST", 2*60*60)
	timestamp := time.Date(2021, 9, 17, 20, 41, 2, 1000, zone)

	result := FormatEntry(Entry{Timestamp: timestamp, Text: "x"})

	require.Equal(t, "2021-09-17T20:41:02.000001+0200 x\n", string(result))
}

func TestFormatEntry_EmptyText(t *testing.T) {
	timestamp := time.Date(2021, 9, 17, 18, 41, 2, 0, time.UTC)

	result := FormatEntry(Entry{Timestamp: timestamp})

	require.Equal(t, "2021-09-17T18:41:02.000000+0000 \n", string(result))
}

func TestParseLine_FormatEntryOutput(t *testing.T) {
	timestamp := time.Date(2021, 9, 17, 18, 41, 2, 668895000, time.UTC)
	line := string(FormatEntry(Entry{Timestamp: timestamp, Text: "a  b\tc"}))

	entry, err := ParseLine(line)

	require.NoError(t, err)
	require.True(t, entry.Timestamp.Equal(timestamp))
	require.Equal(t, "a  b\tc", entry.Text)
}

func TestParseLine_JournalctlStyle(t *testing.T) {
	entry, err := ParseLine("2021-09-17T07:24:29.446013+0000 host kernel: usb 1-2: new device")

	require.NoError(t, err)
	require.True(t, entry.Timestamp.Equal(time.Date(2021, 9, 17, 7, 24, 29, 446013000, time.UTC)))
	require.Equal(t, "host kernel: usb 1-2: new device", entry.Text)
}

func TestParseLine_DmesgStyle(t *testing.T) {
	entry, err := ParseLine("2021-09-17T07:24:23,364133+00:00 Linux version 5.14")

	require.NoError(t, err)
	require.True(t, entry.Timestamp.Equal(time.Date(2021, 9, 17, 7, 24, 23, 364133000, time.UTC)))
	require.Equal(t, "Linux version 5.14", entry.Text)
}

func TestParseLine_Malformed(t *testing.T) {
	for _, line := range []string{"", "\n", "not-a-timestamp hello", " leading space"} {
		_, err := ParseLine(line)
		require.Error(t, err, "line %q", line)
		require.True(t, errors.Is(err, ErrMalformedLine), "line %q", line)
	}
}

func TestSortEntries_StableOnTies(t *testing.T) {
	t0 := time.Date(2021, 9, 17, 18, 0, 0, 0, time.UTC)
	entries := []Entry{
		{Timestamp: t0.Add(2 * time.Second), Text: "c"},
		{Timestamp: t0, Text: "a1"},
		{Timestamp: t0.Add(time.Second), Text: "b"},
		{Timestamp: t0, Text: "a2"},
		{Timestamp: t0, Text: "a3"},
	}

	SortEntries(entries)

	var texts []string
	for _, e := range entries {
		texts = append(texts, e.Text)
	}
	require.Equal(t, []string{"a1", "a2", "a3", "b", "c"}, texts)
}

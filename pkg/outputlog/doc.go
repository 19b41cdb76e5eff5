// Package outputlog defines the merged log format written by dmerg.
//
// # Overview
//
// A merged log is plain UTF-8 text with one entry per line. Each line is
//
//	timestamp text
//
// followed by a single \n.
//
// # Fields
//
//   - timestamp: wall-clock time with microsecond precision and a numeric UTC offset,
//     for example 2021-09-17T18:41:02.668895+0000
//   - a single space
//   - text: the original line content, unmodified, without its trailing newline
//
// # Examples
//
//	2021-09-17T18:41:02.668895+0000 starting build
//	2021-09-17T18:41:02.912004+0000 usb 1-2: new high-speed USB device number 7 using xhci_hcd
//	2021-09-17T18:41:03.001230+0000 build finished
//
// # Parsing
//
// ParseLine also accepts the ISO styles printed by journalctl (short-iso-precise) and
// dmesg --time-format iso, which use a comma as fractional separator or an offset with a
// colon, so logs captured by those tools can be merged offline.
//
// # Ordering
//
// Files produced by WriteFile are sorted ascending by timestamp. Entries with equal
// timestamps keep the order in which they were handed to WriteFile.
package outputlog

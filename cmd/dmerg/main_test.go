package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"dmerg/internal/kernel"
	"dmerg/pkg/outputlog"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// parseTestFlags binds all config flags to a fresh command and parses args.
func parseTestFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	addCommonFlags(cmd.Flags())
	addSourceFlags(cmd.Flags())
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(parseTestFlags(t))

	require.NoError(t, err)
	require.Equal(t, kernel.KindJournal, cfg.SourceKind())
	require.False(t, cfg.ConsoleOff)
	require.Empty(t, cfg.Output)
	require.Equal(t, kernel.DefaultPollInterval, cfg.PollInterval)
}

func TestLoadConfig_Flags(t *testing.T) {
	cmd := parseTestFlags(t, "-d", "-c", "-f", "-o", "out.log", "--poll-interval", "100ms")

	cfg, err := loadConfig(cmd)

	require.NoError(t, err)
	require.Equal(t, kernel.KindDmesg, cfg.SourceKind())
	require.True(t, cfg.ConsoleOff)
	require.True(t, cfg.Full)
	require.Equal(t, "out.log", cfg.Output)
	require.Equal(t, 100*time.Millisecond, cfg.PollInterval)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dmerg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("kmsg: true\noutput: from-file.log\nfull: true\n"), 0o600))

	cmd := parseTestFlags(t, "--config", path, "-o", "from-flag.log")
	cfg, err := loadConfig(cmd)

	require.NoError(t, err)
	require.Equal(t, kernel.KindKmsg, cfg.SourceKind())
	require.True(t, cfg.Full)
	require.Equal(t, "from-flag.log", cfg.Output)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := loadConfig(parseTestFlags(t, "--dmesg", "--kmsg"))
	require.Error(t, err)

	_, err = loadConfig(parseTestFlags(t, "--poll-interval", "0s"))
	require.Error(t, err)

	_, err = loadConfig(parseTestFlags(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	require.Error(t, err)
}

func TestCommandFlags(t *testing.T) {
	for _, name := range []string{"dmesg", "kmsg", "console-off", "full", "poll-interval"} {
		require.NotNil(t, rootCmd.Flags().Lookup(name), name)
		require.NotNil(t, runCmd.Flags().Lookup(name), name)
		require.Nil(t, mergeCmd.Flags().Lookup(name), name)
		require.Nil(t, mergeCmd.InheritedFlags().Lookup(name), name)
	}
	for _, name := range []string{"config", "output", "verbose"} {
		require.NotNil(t, mergeCmd.InheritedFlags().Lookup(name), name)
		require.NotNil(t, runCmd.InheritedFlags().Lookup(name), name)
	}
}

func TestMergeFiles(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.log")
	second := filepath.Join(dir, "second.log")
	require.NoError(t, os.WriteFile(first, []byte(
		"2024-05-01T10:00:03.000000+0000 c\n"+
			"no timestamp here\n"+
			"2024-05-01T10:00:01.000000+0000 a\n"), 0o600))
	require.NoError(t, os.WriteFile(second, []byte(
		"2024-05-01T10:00:02.000000+0000 b\n"+
			"2024-05-01T10:00:03.000000+0000 d\n"), 0o600))

	entries, err := mergeFiles([]string{first, second})

	require.NoError(t, err)
	var texts []string
	for _, e := range entries {
		texts = append(texts, e.Text)
	}
	require.Equal(t, []string{"a", "b", "c", "d"}, texts)
	require.Equal(t, first, entries[2].Stream)
	require.Equal(t, second, entries[3].Stream)

	out := filepath.Join(dir, "merged.log")
	require.NoError(t, outputlog.WriteFile(out, entries))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t,
		"2024-05-01T10:00:01.000000+0000 a\n"+
			"2024-05-01T10:00:02.000000+0000 b\n"+
			"2024-05-01T10:00:03.000000+0000 c\n"+
			"2024-05-01T10:00:03.000000+0000 d\n", string(data))
}

func TestMergeFiles_Missing(t *testing.T) {
	_, err := mergeFiles([]string{filepath.Join(t.TempDir(), "missing.log")})
	require.Error(t, err)
}

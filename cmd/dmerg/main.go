package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dmerg/internal/config"
	"dmerg/internal/kernel"
	"dmerg/internal/ptyexec"
	"dmerg/internal/session"
	"dmerg/pkg/outputlog"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

var (
	configFile string
	flagConfig = config.Default()
)

var rootCmd = &cobra.Command{
	Use:   "dmerg",
	Short: "dmerg - Merge standard input with the kernel log",
	Long: `dmerg reads lines from standard input and kernel log messages at the same time.
Every line is echoed with its timestamp as it arrives. When the input ends or dmerg is
interrupted, all lines are written to a file sorted by timestamp.

Example:
  ./run-tests.sh 2>&1 | dmerg -o tests.log`,
	Args:              cobra.NoArgs,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if term.IsTerminal(int(os.Stdin.Fd())) {
			slog.Info("Reading from terminal, end input with Ctrl-D or stop with Ctrl-C")
		}
		_, err = runSession(cmd.Context(), cfg, session.Deps{Input: os.Stdin})
		return err
	},
}

var runCmd = &cobra.Command{
	Use:   "run [flags] -- command [args...]",
	Short: "Run a command and merge its output with the kernel log",
	Long: `Run a command under a pseudo terminal and merge its combined stdout and stderr with
the kernel log. Collection ends when the command exits or dmerg is interrupted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		child, err := ptyexec.Start(args)
		if err != nil {
			return err
		}
		defer func() { _ = child.Close() }()

		_, runErr := runSession(cmd.Context(), cfg, session.Deps{Input: child.Output()})

		_ = child.Close()
		code, err := child.Wait()
		slog.Info("Command finished", "command", args[0], "exit_code", code, "error", err)
		return runErr
	},
}

var mergeCmd = &cobra.Command{
	Use:   "merge FILE...",
	Short: "Merge existing timestamped logs into one sorted file",
	Long: `Merge files written by dmerg, journalctl -o short-iso-precise or
dmesg --time-format iso into one file sorted by timestamp.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		entries, err := mergeFiles(args)
		if err != nil {
			return err
		}
		path, _, err := outputlog.ResolvePath(cfg.Output)
		if err != nil {
			return err
		}
		if err := outputlog.WriteFile(path, entries); err != nil {
			return fmt.Errorf("merged log lost (%d entries): %w", len(entries), err)
		}
		fmt.Fprintf(os.Stderr, "+ Output written to %s\n", path)
		return nil
	},
}

func init() {
	addCommonFlags(rootCmd.PersistentFlags())
	for _, cmd := range []*cobra.Command{rootCmd, runCmd} {
		addSourceFlags(cmd.Flags())
		cmd.MarkFlagsMutuallyExclusive("dmesg", "kmsg")
	}

	// everything after the command name belongs to the command
	runCmd.Flags().SetInterspersed(false)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(mergeCmd)
}

// addCommonFlags registers the flags every command understands.
func addCommonFlags(flags *pflag.FlagSet) {
	flags.StringVar(&configFile, "config", "", "YAML file with default options")
	flags.StringVarP(&flagConfig.Output, "output", "o", "", "Write output to this file instead of a generated dmerged.<id> file")
	flags.BoolVarP(&flagConfig.Verbose, "verbose", "v", false, "Log debug messages to standard error")
}

// addSourceFlags registers the kernel log and console flags of the collecting commands.
func addSourceFlags(flags *pflag.FlagSet) {
	flags.BoolVarP(&flagConfig.Dmesg, "dmesg", "d", false, "Poll the kernel ring buffer instead of reading the journal")
	flags.BoolVar(&flagConfig.Kmsg, "kmsg", false, "Read /dev/kmsg instead of the journal")
	flags.BoolVarP(&flagConfig.ConsoleOff, "console-off", "c", false, "Do not write to the standard output")
	flags.BoolVarP(&flagConfig.Full, "full", "f", false, "Include the full kernel log, not only messages since start")
	flags.DurationVar(&flagConfig.PollInterval, "poll-interval", kernel.DefaultPollInterval, "Ring buffer poll interval for --dmesg")
}

// loadConfig merges the config file, if any, with the flags set on the command line.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return cfg, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("dmesg") {
		cfg.Dmesg = flagConfig.Dmesg
	}
	if flags.Changed("kmsg") {
		cfg.Kmsg = flagConfig.Kmsg
	}
	if flags.Changed("console-off") {
		cfg.ConsoleOff = flagConfig.ConsoleOff
	}
	if flags.Changed("full") {
		cfg.Full = flagConfig.Full
	}
	if flags.Changed("output") {
		cfg.Output = flagConfig.Output
	}
	if flags.Changed("poll-interval") {
		cfg.PollInterval = flagConfig.PollInterval
	}
	if flags.Changed("verbose") {
		cfg.Verbose = flagConfig.Verbose
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if flagConfig.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// runSession runs one merge with process signals wired in.
func runSession(ctx context.Context, cfg config.Config, deps session.Deps) (session.Result, error) {
	if cfg.Verbose && !flagConfig.Verbose {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	if version, err := host.KernelVersion(); err == nil {
		slog.Debug("Host", "kernel", version, "start", time.Now().Format(outputlog.TimeFormat))
	}

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)
	deps.Signals = signals

	if ctx == nil {
		ctx = context.Background()
	}
	return session.New(cfg, deps).Run(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package cli

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aryankumar/shardexec/internal/cli/run"
	"github.com/aryankumar/shardexec/internal/cli/shard"
)

// Execute runs the root command with the provided context
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

// newRootCmd creates the root command
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shardexec",
		Short: "shardexec - run SQL across PostgreSQL shards",
		Long: `shardexec runs one logical SQL statement on many PostgreSQL shards at once
and merges the results: rows are concatenated, update counts summed and batch
counts reassembled.

Shard failures either fail the whole statement or, with --suppress-errors,
are logged and contribute nothing to the merged result.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd)
			return nil
		},
	}

	// Define persistent flags
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default is $HOME/.shardexec.yaml)")
	flags.StringSlice("shards", []string{}, "target shards (comma-separated, empty means all enabled)")
	flags.StringP("output", "o", "", "output format (table, json, yaml)")
	flags.BoolP("verbose", "v", false, "verbose output with debug logging")
	flags.Bool("no-color", false, "disable colored output")
	flags.Duration("timeout", 30*time.Second, "timeout for the whole command")
	flags.IntP("parallel", "p", 5, "number of pool workers")
	flags.Bool("suppress-errors", false, "degrade failed shards to empty results instead of failing")
	flags.String("nats-url", "", "publish lifecycle events to this NATS server")

	// Bind flags to viper
	for _, name := range []string{"config", "shards", "output", "verbose", "no-color", "timeout", "parallel", "suppress-errors", "nats-url"} {
		viper.BindPFlag(name, flags.Lookup(name))
	}

	// Add subcommands
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())
	rootCmd.AddCommand(shard.NewShardCmd())
	rootCmd.AddCommand(run.NewQueryCmd())
	rootCmd.AddCommand(run.NewUpdateCmd())
	rootCmd.AddCommand(run.NewExecuteCmd())
	rootCmd.AddCommand(run.NewBatchCmd())

	registerCompletions(rootCmd)

	return rootCmd
}

// setupLogging installs the default slog handler: zerolog's console writer
// for humans, JSON when colors are off.
func setupLogging(cmd *cobra.Command) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	noColor, _ := cmd.Flags().GetBool("no-color")

	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	}

	slog.SetDefault(slog.New(newLogHandler(os.Stderr, logLevel, noColor)))

	if verbose {
		slog.Debug("verbose logging enabled")
	}
}

func newLogHandler(w *os.File, level slog.Level, noColor bool) slog.Handler {
	if noColor {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}

	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.StampMicro}
	logger := zerolog.New(output).With().Timestamp().Logger()
	return zeroslog.NewHandler(logger, &zeroslog.HandlerOptions{Level: level})
}

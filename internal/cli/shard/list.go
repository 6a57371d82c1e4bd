package shard

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/aryankumar/shardexec/internal/cli/session"
	"github.com/aryankumar/shardexec/internal/output"
)

// newListCmd creates the shard list command
func newListCmd() *cobra.Command {
	var (
		showDSN bool
		label   map[string]string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the configured shards",
		Long: `List every shard in the configuration file with its host, status and labels.
Passwords in connection strings are always redacted.`,
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, showDSN, label)
		},
	}

	cmd.Flags().BoolVar(&showDSN, "show-dsn", false, "show the redacted connection string")
	cmd.Flags().StringToStringVarP(&label, "selector", "l", nil, "only list enabled shards with these labels (key=value)")

	return cmd
}

func runList(cmd *cobra.Command, showDSN bool, selector map[string]string) error {
	cfg, err := session.LoadConfig()
	if err != nil {
		return err
	}

	settings, err := session.Resolve(cfg.GetConfig())
	if err != nil {
		return err
	}

	infos := cfg.ShardInfos()
	if len(selector) > 0 {
		wanted := make(map[string]bool)
		for _, name := range cfg.GetShardsByLabel(selector) {
			wanted[name] = true
		}
		filtered := infos[:0]
		for _, info := range infos {
			if wanted[info.Name] {
				filtered = append(filtered, info)
			}
		}
		infos = filtered
	}

	slog.Debug("listing shards", "count", len(infos), "config", cfg.Path())

	if len(infos) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "No shards configured")
		return nil
	}

	formatter := output.NewFormatter(settings.Format, output.WithNoColor(settings.NoColor))
	if settings.Format != output.FormatTable {
		return formatter.Format(cmd.OutOrStdout(), infos)
	}

	if err := formatter.Format(cmd.OutOrStdout(), shardTable(infos, showDSN)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nTotal shards: %d\n", len(infos))
	return nil
}

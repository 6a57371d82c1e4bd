// Package shard implements the shard management commands.
package shard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aryankumar/shardexec/internal/config"
	"github.com/aryankumar/shardexec/internal/output"
)

// NewShardCmd creates the shard management command
func NewShardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shard",
		Short: "Manage the configured shards",
		Long: `Manage the shards in the shardexec configuration file.

This command provides subcommands for listing, adding, removing,
and health checking shards.`,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newRemoveCmd())
	cmd.AddCommand(newPingCmd())

	return cmd
}

// loadForEdit loads the config file without validating it, so a broken
// entry can still be fixed or removed.
func loadForEdit() (*config.Manager, error) {
	manager := config.NewManager(viper.GetString("config"))
	if _, err := manager.Load(); err != nil {
		return nil, err
	}
	return manager, nil
}

// shardTable lays out shard listings, one row per shard
func shardTable(infos []config.ShardInfo, showDSN bool) *output.RowTable {
	columns := []string{"name", "host", "enabled", "labels"}
	if showDSN {
		columns = append(columns, "dsn")
	}

	table := &output.RowTable{Columns: columns}
	for _, info := range infos {
		record := []interface{}{info.Name, info.Host, info.Enabled, formatLabels(info.Labels)}
		if showDSN {
			record = append(record, info.DSN)
		}
		table.Records = append(table.Records, record)
	}
	return table
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}

	pairs := make([]string, 0, len(labels))
	for k, v := range labels {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

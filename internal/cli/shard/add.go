package shard

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/aryankumar/shardexec/internal/config"
)

// newAddCmd creates the shard add command
func newAddCmd() *cobra.Command {
	var (
		dsn      string
		labels   map[string]string
		disabled bool
	)

	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Add or replace a shard in the configuration",
		Long: `Add a shard to the shardexec configuration, or replace an existing one
with the same name. The file is written with owner-only permissions because
connection strings may carry passwords.`,
		Example: `  shardexec shard add ds_0 --dsn "postgres://app@db0:5432/orders?sslmode=disable" -l region=us-east`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, args[0], config.ShardConfig{
				DSN:     dsn,
				Labels:  labels,
				Enabled: !disabled,
			})
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", "", "PostgreSQL connection string (required)")
	cmd.Flags().StringToStringVarP(&labels, "label", "l", nil, "shard label (key=value, repeatable)")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "exclude the shard from broadcasts unless named with --shards")
	cmd.MarkFlagRequired("dsn")

	return cmd
}

func runAdd(cmd *cobra.Command, name string, shard config.ShardConfig) error {
	manager, err := loadForEdit()
	if err != nil {
		return err
	}

	_, replaced := manager.GetShardConfig(name)
	manager.SetShardConfig(name, shard)

	if err := manager.Validate(); err != nil {
		return err
	}
	if err := manager.Save(); err != nil {
		return err
	}

	slog.Debug("saved shard", "shard", name, "config", manager.Path())

	verb := "added"
	if replaced {
		verb = "updated"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "shard %q %s\n", name, verb)
	return nil
}

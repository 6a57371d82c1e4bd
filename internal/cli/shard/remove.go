package shard

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aryankumar/shardexec/internal/util"
)

// newRemoveCmd creates the shard remove command
func newRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remove NAME",
		Short:   "Remove a shard from the configuration",
		Aliases: []string{"rm"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(cmd, args[0])
		},
	}

	return cmd
}

func runRemove(cmd *cobra.Command, name string) error {
	manager, err := loadForEdit()
	if err != nil {
		return err
	}

	if !manager.RemoveShardConfig(name) {
		return fmt.Errorf("shard %q: %w", name, util.ErrShardNotFound)
	}

	if err := manager.Save(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "shard %q removed\n", name)
	return nil
}

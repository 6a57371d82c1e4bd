package run

import (
	"github.com/spf13/cobra"

	"github.com/aryankumar/shardexec/internal/output"
	"github.com/aryankumar/shardexec/internal/statement"
)

// NewQueryCmd creates the query command
func NewQueryCmd() *cobra.Command {
	var opts stmtOptions

	cmd := &cobra.Command{
		Use:   "query SQL",
		Short: "Run a query on every selected shard and merge the rows",
		Long: `Run a query on every selected shard concurrently.

Rows from all shards are printed as one result, with a leading SHARD column.
With --suppress-errors, shards that fail contribute no rows instead of failing
the command.`,
		Example: `  # Count orders on every enabled shard
  shardexec query "SELECT count(*) FROM t_order"

  # Query two shards with a prepared statement
  shardexec query --shards ds_0,ds_1 --prepared --arg 42 "SELECT * FROM t_order WHERE user_id = $1"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args[0], &opts)
		},
	}

	opts.bind(cmd, false)

	return cmd
}

func runQuery(cmd *cobra.Command, sql string, opts *stmtOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}

	s, ctx, cancel, err := open(cmd)
	if err != nil {
		return err
	}
	defer finish(cmd, s, opts)
	defer cancel()

	b, err := newBroadcast(ctx, s, sql)
	if err != nil {
		return err
	}
	defer b.close()

	var sets []statement.RowSet
	if opts.prepared {
		units, err := b.prepare(ctx, statement.DefaultKeys(), [][]any{argSet(opts.args)})
		if err != nil {
			return err
		}
		sets, err = b.preparedExecutor(units).Query(ctx)
		if err != nil {
			return err
		}
	} else {
		sets, err = b.textExecutor(b.text()).Query(ctx)
		if err != nil {
			return err
		}
	}

	table, err := output.NewRowTable(s.Names, sets)
	if err != nil {
		return err
	}

	s.Logger.Debug("query completed", "shards", len(s.Names), "rows", table.Len())
	return s.Formatter().Format(cmd.OutOrStdout(), table)
}

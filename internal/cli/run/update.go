package run

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/aryankumar/shardexec/internal/output"
	"github.com/aryankumar/shardexec/internal/statement"
)

// NewUpdateCmd creates the update command
func NewUpdateCmd() *cobra.Command {
	var opts stmtOptions

	cmd := &cobra.Command{
		Use:   "update SQL",
		Short: "Run a data-modifying statement on every selected shard",
		Long: `Run an INSERT, UPDATE, DELETE or DDL statement on every selected shard
concurrently and print the summed update count.

--return-generated-keys and --returning add a RETURNING clause and print the
keys each shard reported next to the count.`,
		Example: `  # Close stale orders everywhere
  shardexec update "UPDATE t_order SET status = 'closed' WHERE created_at < now() - interval '1 year'"

  # Insert and report the generated id
  shardexec update --shards ds_1 --returning order_id "INSERT INTO t_order (user_id) VALUES (7)"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd, args[0], &opts)
		},
	}

	opts.bind(cmd, true)

	return cmd
}

func runUpdate(cmd *cobra.Command, sql string, opts *stmtOptions) error {
	keys, err := opts.keys()
	if err != nil {
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

	startTime := time.Now()
	var affected int64
	if opts.prepared {
		units, err := b.prepare(ctx, keys, [][]any{argSet(opts.args)})
		if err != nil {
			return err
		}
		affected, err = b.preparedExecutor(units).Update(ctx)
		if err != nil {
			return err
		}
	} else {
		exec := b.textExecutor(b.text())
		switch keys.Mode {
		case statement.KeysAuto:
			affected, err = exec.UpdateAutoKeys(ctx, keys.Flag)
		case statement.KeysColumnNames:
			affected, err = exec.UpdateColumnNames(ctx, keys.ColumnNames)
		default:
			affected, err = exec.Update(ctx)
		}
		if err != nil {
			return err
		}
	}

	duration := time.Since(startTime)

	generated, err := b.generatedKeys()
	if err != nil {
		return err
	}

	return s.Formatter().Format(cmd.OutOrStdout(), &output.Outcome{
		Statement:     sql,
		Shards:        s.Names,
		RowsAffected:  &affected,
		GeneratedKeys: generated,
		Duration:      duration,
	})
}

// NewExecuteCmd creates the execute command
func NewExecuteCmd() *cobra.Command {
	var opts stmtOptions

	cmd := &cobra.Command{
		Use:   "execute SQL",
		Short: "Run any statement on every selected shard",
		Long: `Run a statement of any kind on every selected shard concurrently and
report whether it produced a result set. All shards run the same statement,
so the first shard's answer is reported.`,
		Example: `  # Create a table on every shard
  shardexec execute "CREATE TABLE IF NOT EXISTS t_audit (id bigserial PRIMARY KEY)"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecute(cmd, args[0], &opts)
		},
	}

	opts.bind(cmd, true)

	return cmd
}

func runExecute(cmd *cobra.Command, sql string, opts *stmtOptions) error {
	keys, err := opts.keys()
	if err != nil {
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

	startTime := time.Now()
	var hasResultSet bool
	if opts.prepared {
		units, err := b.prepare(ctx, keys, [][]any{argSet(opts.args)})
		if err != nil {
			return err
		}
		hasResultSet, err = b.preparedExecutor(units).Execute(ctx)
		if err != nil {
			return err
		}
	} else {
		exec := b.textExecutor(b.text())
		switch keys.Mode {
		case statement.KeysAuto:
			hasResultSet, err = exec.ExecuteAutoKeys(ctx, keys.Flag)
		case statement.KeysColumnNames:
			hasResultSet, err = exec.ExecuteColumnNames(ctx, keys.ColumnNames)
		default:
			hasResultSet, err = exec.Execute(ctx)
		}
		if err != nil {
			return err
		}
	}

	duration := time.Since(startTime)

	generated, err := b.generatedKeys()
	if err != nil {
		return err
	}

	return s.Formatter().Format(cmd.OutOrStdout(), &output.Outcome{
		Statement:     sql,
		Shards:        s.Names,
		HasResultSet:  &hasResultSet,
		GeneratedKeys: generated,
		Duration:      duration,
	})
}

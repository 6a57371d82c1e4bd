package run

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aryankumar/shardexec/internal/output"
	"github.com/aryankumar/shardexec/internal/statement"
)

// NewBatchCmd creates the batch command
func NewBatchCmd() *cobra.Command {
	var (
		opts   stmtOptions
		values []string
	)

	cmd := &cobra.Command{
		Use:   "batch SQL [SQL...]",
		Short: "Run a batch of statements on every selected shard",
		Long: `Run a batch on every selected shard concurrently and print the update
count of every batch entry, summed across shards.

Without --prepared every argument is one batch entry. With --prepared a single
statement is prepared and run once per --values entry.`,
		Example: `  # Two statements as one batch
  shardexec batch "DELETE FROM t_order_item WHERE order_id = 9" "DELETE FROM t_order WHERE order_id = 9"

  # One prepared insert, three parameter sets
  shardexec batch --prepared "INSERT INTO t_user (id, name) VALUES ($1, $2)" \
    --values 1,alice --values 2,bob --values 3,carol`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, args, values, &opts)
		},
	}

	cmd.Flags().BoolVar(&opts.prepared, "prepared", false, "prepare one statement and run it once per --values entry")
	cmd.Flags().StringArrayVar(&values, "values", nil, "comma-separated parameters of one batch entry (repeatable, requires --prepared)")
	cmd.Flags().BoolVar(&opts.showEvents, "show-events", false, "print the lifecycle events of every physical call to stderr")

	return cmd
}

func runBatch(cmd *cobra.Command, statements []string, values []string, opts *stmtOptions) error {
	if opts.prepared {
		if len(statements) != 1 {
			return fmt.Errorf("--prepared takes exactly one statement, got %d", len(statements))
		}
		if len(values) == 0 {
			return fmt.Errorf("--prepared requires at least one --values entry")
		}
	} else if len(values) > 0 {
		return fmt.Errorf("--values requires --prepared")
	}

	s, ctx, cancel, err := open(cmd)
	if err != nil {
		return err
	}
	defer finish(cmd, s, opts)
	defer cancel()

	sql := strings.Join(statements, "; ")
	b, err := newBroadcast(ctx, s, statements[0])
	if err != nil {
		return err
	}
	defer b.close()

	startTime := time.Now()
	var counts []int64
	if opts.prepared {
		argSets := parseValues(values)
		units, err := b.prepare(ctx, statement.DefaultKeys(), argSets)
		if err != nil {
			return err
		}
		counts, err = b.preparedExecutor(units).ExecuteBatch(ctx, len(argSets))
		if err != nil {
			return err
		}
	} else {
		counts, err = b.textExecutor(b.textBatch(statements)).ExecuteBatch(ctx, len(statements))
		if err != nil {
			return err
		}
	}

	return s.Formatter().Format(cmd.OutOrStdout(), &output.Outcome{
		Statement:   sql,
		Shards:      s.Names,
		BatchCounts: counts,
		Duration:    time.Since(startTime),
	})
}

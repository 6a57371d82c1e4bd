// Package run implements the commands that broadcast SQL to shards.
package run

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aryankumar/shardexec/internal/cli/session"
	"github.com/aryankumar/shardexec/internal/event"
	"github.com/aryankumar/shardexec/internal/executor"
	"github.com/aryankumar/shardexec/internal/output"
	"github.com/aryankumar/shardexec/internal/postgres"
	"github.com/aryankumar/shardexec/internal/statement"
)

// stmtOptions are the flags shared by the statement commands
type stmtOptions struct {
	prepared   bool
	args       []string
	autoKeys   bool
	returning  []string
	showEvents bool
}

func (o *stmtOptions) bind(cmd *cobra.Command, withKeys bool) {
	cmd.Flags().BoolVar(&o.prepared, "prepared", false, "prepare the statement on every shard before running it")
	cmd.Flags().StringSliceVar(&o.args, "arg", nil, "positional parameter for a prepared statement (repeatable)")
	cmd.Flags().BoolVar(&o.showEvents, "show-events", false, "print the lifecycle events of every physical call to stderr")
	if withKeys {
		cmd.Flags().BoolVar(&o.autoKeys, "return-generated-keys", false, "report generated keys of every inserted row")
		cmd.Flags().StringSliceVar(&o.returning, "returning", nil, "report the named generated-key columns")
	}
}

func (o *stmtOptions) validate() error {
	if len(o.args) > 0 && !o.prepared {
		return fmt.Errorf("--arg requires --prepared")
	}
	return nil
}

// keys maps the key flags to a generated-keys request
func (o *stmtOptions) keys() (statement.GeneratedKeys, error) {
	if err := o.validate(); err != nil {
		return statement.GeneratedKeys{}, err
	}
	switch {
	case o.autoKeys && len(o.returning) > 0:
		return statement.GeneratedKeys{}, fmt.Errorf("--return-generated-keys and --returning are mutually exclusive")
	case o.autoKeys:
		return statement.AutoKeys(statement.ReturnGeneratedKeys), nil
	case len(o.returning) > 0:
		return statement.ColumnNames(o.returning), nil
	default:
		return statement.DefaultKeys(), nil
	}
}

// broadcast is one logical statement routed to every selected shard
type broadcast struct {
	s     *session.Session
	sql   string
	typ   statement.Type
	conns []*postgres.Conn
	units []statement.Unit
	stmts []*postgres.Stmt
}

// open starts a session that requires every selected shard, and returns the
// command context bounded by --timeout with the execution context installed.
func open(cmd *cobra.Command) (*session.Session, context.Context, context.CancelFunc, error) {
	s, err := session.Open(cmd.Context(), true)
	if err != nil {
		return nil, nil, nil, err
	}

	ctx := cmd.Context()
	cancel := context.CancelFunc(func() {})
	if s.Settings.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.Settings.Timeout)
	}
	return s, s.Context(ctx), cancel, nil
}

// newBroadcast acquires the shared connection of every shard in the session
func newBroadcast(ctx context.Context, s *session.Session, sql string) (*broadcast, error) {
	b := &broadcast{
		s:   s,
		sql: sql,
		typ: statement.ParseType(sql),
	}

	for _, name := range s.Names {
		conn, err := s.Shards.Conn(ctx, name)
		if err != nil {
			return nil, err
		}
		b.conns = append(b.conns, conn)
		b.units = append(b.units, statement.Unit{Backend: name, SQL: sql})
	}
	return b, nil
}

// text builds one text unit per shard
func (b *broadcast) text() []statement.TextUnit {
	units := make([]statement.TextUnit, len(b.units))
	for i, u := range b.units {
		units[i] = statement.TextUnit{Unit: u, Conn: b.conns[i]}
	}
	return units
}

// textBatch builds one text unit per shard, each carrying the whole batch
func (b *broadcast) textBatch(batch []string) []statement.TextUnit {
	units := b.text()
	for i := range units {
		units[i].Unit.SQL = ""
		units[i].Batch = batch
		units[i].BatchIndexes = identityIndexes(len(batch))
	}
	return units
}

// prepare prepares the statement on every shard with the given argument sets
func (b *broadcast) prepare(ctx context.Context, keys statement.GeneratedKeys, argSets [][]any) ([]statement.PreparedUnit, error) {
	units := make([]statement.PreparedUnit, len(b.units))
	for i, u := range b.units {
		stmt, err := postgres.Prepare(ctx, b.conns[i], b.sql, keys, argSets...)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare on shard %s: %w", u.Backend, err)
		}
		b.stmts = append(b.stmts, stmt)

		units[i] = statement.NewPreparedUnit(u, stmt, b.typ)
		units[i].BatchIndexes = identityIndexes(len(argSets))
	}
	return units, nil
}

// generatedKeys gathers the keys each shard reported for the last update
func (b *broadcast) generatedKeys() (*output.RowTable, error) {
	keys := make([]*postgres.Rows, len(b.conns))
	for i, conn := range b.conns {
		keys[i] = conn.GeneratedKeys()
	}
	return gatherKeys(b.s.Names, keys)
}

// gatherKeys merges per-shard key rows into one table led by the shard column.
// It is nil when no shard reported any.
func gatherKeys(shards []string, keys []*postgres.Rows) (*output.RowTable, error) {
	sets := make([]statement.RowSet, len(keys))
	found := false
	for i, k := range keys {
		if k != nil {
			sets[i] = k
			found = true
		}
	}
	if !found {
		return nil, nil
	}
	return output.NewRowTable(shards, sets)
}

// close releases prepared statements
func (b *broadcast) close() {
	for _, stmt := range b.stmts {
		if err := stmt.Close(); err != nil {
			b.s.Logger.Warn("failed to close prepared statement", "error", err)
		}
	}
}

func (b *broadcast) textExecutor(units []statement.TextUnit) *statement.TextExecutor {
	return statement.NewTextExecutor(b.s.Engine, b.typ, units, b.s.StatementOptions()...)
}

func (b *broadcast) preparedExecutor(units []statement.PreparedUnit) *statement.PreparedExecutor {
	return statement.NewPreparedExecutor(b.s.Engine, units, b.s.StatementOptions()...)
}

// identityIndexes maps entry i of a shard-local batch to slot i of the logical batch
func identityIndexes(n int) []executor.BatchIndex {
	indexes := make([]executor.BatchIndex, n)
	for i := range indexes {
		indexes[i] = executor.BatchIndex{Global: i, Local: i}
	}
	return indexes
}

// argSet converts --arg values to driver arguments
func argSet(values []string) []any {
	if len(values) == 0 {
		return nil
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

// parseValues splits each --values entry on commas into one argument set
func parseValues(entries []string) [][]any {
	sets := make([][]any, len(entries))
	for i, entry := range entries {
		fields := strings.Split(entry, ",")
		set := make([]any, len(fields))
		for j, f := range fields {
			set[j] = strings.TrimSpace(f)
		}
		sets[i] = set
	}
	return sets
}

// printEvents writes the recorded lifecycle events as a table
func printEvents(w io.Writer, recorder *event.Recorder) error {
	table := &output.RowTable{Columns: []string{"shard", "kind", "phase", "error", "time"}}
	for _, e := range recorder.Events() {
		errText := ""
		if e.Err != nil {
			errText = e.Err.Error()
		}
		table.Records = append(table.Records, []interface{}{
			e.Backend, e.Kind.String(), e.Phase.String(), errText, e.Timestamp.Format("15:04:05.000000"),
		})
	}
	return output.NewTableFormatter(&output.Options{NoColor: true}).Format(w, table)
}

// finish closes the session and prints events if asked
func finish(cmd *cobra.Command, s *session.Session, opts *stmtOptions) {
	if opts.showEvents {
		if err := printEvents(cmd.ErrOrStderr(), s.Recorder); err != nil {
			s.Logger.Warn("failed to print events", "error", err)
		}
	}
	if err := s.Close(); err != nil {
		s.Logger.Warn("failed to close session", "error", err)
	}
}

package shard

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aryankumar/shardexec/internal/cli/session"
	"github.com/aryankumar/shardexec/internal/output"
	shardconn "github.com/aryankumar/shardexec/internal/shard"
)

// newPingCmd creates the shard ping command
func newPingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check connectivity to the selected shards",
		Long: `Connect to every selected shard and check it concurrently, reporting
latency and server version. Shards that cannot be reached are reported as
unhealthy; the command fails if any shard is unhealthy.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPing(cmd)
		},
	}

	return cmd
}

func runPing(cmd *cobra.Command) error {
	s, err := session.Open(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	if s.Settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Settings.Timeout)
		defer cancel()
	}

	statuses := withUnreachable(s.Names, s.Shards.HealthCheck(ctx, s.Engine))

	if err := s.Formatter().Format(cmd.OutOrStdout(), healthTable(statuses)); err != nil {
		return err
	}

	unhealthy := 0
	for _, st := range statuses {
		if !st.Healthy {
			unhealthy++
		}
	}
	if unhealthy > 0 {
		return fmt.Errorf("%d of %d shards unhealthy", unhealthy, len(statuses))
	}
	return nil
}

// withUnreachable adds a failed status for every selected shard that never
// connected, keeping the order of names.
func withUnreachable(names []string, statuses []shardconn.HealthStatus) []shardconn.HealthStatus {
	byName := make(map[string]shardconn.HealthStatus, len(statuses))
	for _, st := range statuses {
		byName[st.Shard] = st
	}

	all := make([]shardconn.HealthStatus, 0, len(names))
	for _, name := range names {
		st, ok := byName[name]
		if !ok {
			st = shardconn.HealthStatus{Shard: name, Error: fmt.Errorf("not connected")}
		}
		all = append(all, st)
	}
	return all
}

func healthTable(statuses []shardconn.HealthStatus) *output.RowTable {
	table := &output.RowTable{Columns: []string{"shard", "healthy", "latency", "version", "error"}}
	for _, st := range statuses {
		errText := ""
		if st.Error != nil {
			errText = st.Error.Error()
		}
		table.Records = append(table.Records, []interface{}{
			st.Shard, st.Healthy, st.Latency.Round(time.Microsecond).String(), st.ServerVersion, errText,
		})
	}
	return table
}

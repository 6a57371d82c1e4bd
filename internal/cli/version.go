package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aryankumar/shardexec/internal/output"
	"github.com/aryankumar/shardexec/pkg/version"
)

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print the shardexec version, the commit it was built from and the PostgreSQL driver it links.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd)
		},
	}

	return cmd
}

func runVersion(cmd *cobra.Command) error {
	info := version.Get()
	outputFormat, _ := cmd.Flags().GetString("output")
	w := cmd.OutOrStdout()

	switch outputFormat {
	case "json", "yaml":
		return output.NewFormatter(output.Format(outputFormat)).Format(w, info)
	case "table":
		return outputTable(w, info)
	default:
		fmt.Fprintln(w, info.String())
		return nil
	}
}

func outputTable(w io.Writer, info version.Info) error {
	return output.NewTableFormatter(&output.Options{NoColor: true}).Format(w, map[string]interface{}{
		"Version":    info.Version,
		"Commit":     info.Commit,
		"Modified":   info.Modified,
		"Build Time": info.BuildTime,
		"Go Version": info.GoVersion,
		"Driver":     info.Driver,
		"Platform":   info.Platform,
	})
}

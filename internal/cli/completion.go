package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aryankumar/shardexec/internal/config"
)

var completionShells = []string{"bash", "zsh", "fish", "powershell"}

// newCompletionCmd creates the completion command
func newCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion SHELL",
		Short: "Generate shell completion scripts",
		Long: `Print a completion script for bash, zsh, fish or powershell.

Besides commands and flags, the scripts complete the shard names found in the
config file for --shards and "shard remove", and the formats for --output.

Load it into the current shell:
  bash:        source <(shardexec completion bash)
  zsh:         source <(shardexec completion zsh)
  fish:        shardexec completion fish | source
  powershell:  shardexec completion powershell | Out-String | Invoke-Expression

To keep it, write the script to your shell's completion directory instead,
for example ~/.config/fish/completions/shardexec.fish.`,
		DisableFlagsInUseLine: true,
		ValidArgs:             completionShells,
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		// Completion output must stay free of log lines
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			root := cmd.Root()
			switch args[0] {
			case "bash":
				return root.GenBashCompletionV2(w, true)
			case "zsh":
				return root.GenZshCompletion(w)
			case "fish":
				return root.GenFishCompletion(w, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(w)
			}
			return fmt.Errorf("unsupported shell %q", args[0])
		},
	}

	return cmd
}

// registerCompletions wires dynamic completion of configured shard names and
// output formats into the command tree under root.
func registerCompletions(root *cobra.Command) {
	root.RegisterFlagCompletionFunc("shards", completeShardList)
	root.RegisterFlagCompletionFunc("output", cobra.FixedCompletions(
		[]string{"table", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp))

	if remove, _, err := root.Find([]string{"shard", "remove"}); err == nil && remove != root {
		remove.ValidArgsFunction = completeShardName
	}
}

// configuredShards lists the shard names in the config file, sorted
func configuredShards() []string {
	manager := config.NewManager(viper.GetString("config"))
	if _, err := manager.Load(); err != nil {
		return nil
	}

	infos := manager.ShardInfos()
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names
}

// completeShardName completes the single NAME argument of a shard command
func completeShardName(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	var names []string
	for _, name := range configuredShards() {
		if strings.HasPrefix(name, toComplete) {
			names = append(names, name)
		}
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

// completeShardList completes the last entry of a comma-separated shard list,
// skipping names already in it
func completeShardList(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	done, partial := "", toComplete
	if i := strings.LastIndex(toComplete, ","); i >= 0 {
		done, partial = toComplete[:i+1], toComplete[i+1:]
	}

	chosen := make(map[string]bool)
	for _, name := range strings.Split(done, ",") {
		chosen[name] = true
	}

	var names []string
	for _, name := range configuredShards() {
		if !chosen[name] && strings.HasPrefix(name, partial) {
			names = append(names, done+name)
		}
	}
	return names, cobra.ShellCompDirectiveNoFileComp | cobra.ShellCompDirectiveNoSpace
}

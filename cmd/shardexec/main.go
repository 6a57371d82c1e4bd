package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aryankumar/shardexec/internal/cli"
	"github.com/aryankumar/shardexec/internal/util"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := util.SetupSignalHandler()
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		slog.Debug("command failed", "error", err)
		fmt.Fprintln(os.Stderr, "Error:", util.FriendlyError(err))
		return 1
	}
	return 0
}

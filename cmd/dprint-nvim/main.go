package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"dprint-nvim/internal/commands"
)

// Neovim starts this binary with no arguments and talks msgpack-RPC over
// stdio; the subcommands exist for manifests and use outside the editor.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.NewRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

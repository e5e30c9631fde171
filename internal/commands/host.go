package commands

import (
	"fmt"
	"os"

	"github.com/neovim/go-client/nvim"
	"github.com/neovim/go-client/nvim/plugin"
	"github.com/spf13/cobra"

	"dprint-nvim/internal/host"
	"dprint-nvim/internal/logger"
)

func newHostCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "host",
		Short: "Serve the Neovim remote plugin on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost()
		},
	}
}

// runHost sets up the connection to Neovim, registers the handlers and
// keeps serving requests until Neovim closes the channel.
func runHost() error {
	// stdout carries msgpack-RPC; anything else printing there would
	// corrupt the stream.
	stdout := os.Stdout
	os.Stdout = os.Stderr

	stderrLog := logger.New(logger.NewWriterChannel(os.Stderr))
	logf := func(format string, args ...any) {
		stderrLog.Error(fmt.Sprintf(format, args...))
	}

	v, err := nvim.New(os.Stdin, stdout, stdout, logf)
	if err != nil {
		return err
	}

	p := plugin.New(v)
	if err := host.Register(p); err != nil {
		return err
	}
	return v.Serve()
}

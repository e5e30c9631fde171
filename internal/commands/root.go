// Package commands defines the dprint-nvim command line.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCommand returns the root command. Run without a subcommand it
// serves as a Neovim remote plugin host, which is how Neovim launches it.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "dprint-nvim",
		Short:         "Format Neovim buffers with dprint",
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost()
		},
	}

	root.AddCommand(
		newHostCommand(),
		newManifestCommand(),
		newFormatCommand(),
		newInfoCommand(),
	)
	return root
}

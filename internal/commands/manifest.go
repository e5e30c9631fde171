package commands

import (
	"github.com/neovim/go-client/nvim/plugin"
	"github.com/spf13/cobra"

	"dprint-nvim/internal/host"
)

const defaultHostName = "dprint-nvim"

func newManifestCommand() *cobra.Command {
	var hostName string

	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Print the remote plugin manifest for registration in Vim script",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := Manifest(hostName)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(manifest)
			return err
		},
	}
	cmd.Flags().StringVar(&hostName, "host", defaultHostName, "Name the plugin host is registered under")
	return cmd
}

// Manifest returns the Vim script that registers every handler for host.
func Manifest(hostName string) ([]byte, error) {
	p := plugin.New(nil)
	if err := host.Register(p); err != nil {
		return nil, err
	}
	return p.Manifest(hostName), nil
}

package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"dprint-nvim/internal/config"
	"dprint-nvim/internal/logger"
	"dprint-nvim/internal/selector"
	"dprint-nvim/internal/shell"
)

func newInfoCommand() *cobra.Command {
	opts := config.Default()

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the dprint plugins and the file pattern formatting is registered for",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l := logger.New(logger.NewWriterChannel(cmd.ErrOrStderr()))
			l.SetVerbose(opts.Verbose)

			dir, err := workspaceDir(opts.Dir)
			if err != nil {
				return err
			}

			sh := shell.New(opts.Path, dir, l.Logr().WithName("shell"))
			if !sh.CheckInstalled(cmd.Context()) {
				return fmt.Errorf("cannot run %s; see https://dprint.dev/install", opts.Path)
			}
			info, err := sh.EditorInfo(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "dprint %s (schema %d)\n\n", info.CLIVersion, info.SchemaVersion)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PLUGIN\tVERSION\tEXTENSIONS")
			for _, p := range info.Plugins {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, p.Version, strings.Join(p.FileExtensions, ","))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			sel := selector.FromPlugins(info.Plugins)
			if sel.Empty() {
				fmt.Fprintln(out, "\nno file extensions; nothing would be registered")
				return nil
			}
			fmt.Fprintf(out, "\npattern: %s\n", sel.Pattern)
			return nil
		},
	}

	opts.BindFlags(cmd.Flags())
	return cmd
}

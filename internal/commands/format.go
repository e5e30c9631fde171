package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"dprint-nvim/internal/config"
	"dprint-nvim/internal/logger"
	"dprint-nvim/internal/service"
	"dprint-nvim/internal/shell"
)

func newFormatCommand() *cobra.Command {
	opts := config.Default()
	var write bool

	cmd := &cobra.Command{
		Use:   "format FILE...",
		Short: "Format files through the dprint editor service",
		Long: "Formats each file through one long-lived dprint editor service, the same\n" +
			"path :DprintFormat takes. Results go to stdout unless --write is given.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l := logger.New(logger.NewWriterChannel(cmd.ErrOrStderr()))
			l.SetVerbose(opts.Verbose)
			defer l.Sync()

			dir, err := workspaceDir(opts.Dir)
			if err != nil {
				return err
			}

			log := l.Logr()
			if !shell.New(opts.Path, dir, log.WithName("shell")).CheckInstalled(cmd.Context()) {
				return fmt.Errorf("cannot run %s; see https://dprint.dev/install", opts.Path)
			}

			svc := service.New(service.Config{
				Launcher: service.NewExecLauncher(opts.Path, dir, log.WithName("editor-service")),
				Log:      log.WithName("service"),
			})
			defer func() { _ = svc.Kill() }()

			var failed []error
			for _, arg := range args {
				if err := formatFile(cmd, svc, l, arg, opts, write); err != nil {
					l.Error(arg+":", err)
					failed = append(failed, fmt.Errorf("%s: %w", arg, err))
				}
			}
			return errors.Join(failed...)
		},
	}

	opts.BindFlags(cmd.Flags())
	cmd.Flags().BoolVarP(&write, "write", "w", false, "Write formatted output back to the files")
	return cmd
}

func formatFile(cmd *cobra.Command, svc *service.EditorService, l *logger.Logger, arg string, opts config.Options, write bool) error {
	path, err := filepath.Abs(arg)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.FormatTimeout)
	defer cancel()

	ok, err := svc.CanFormat(ctx, path)
	if err != nil {
		return err
	}
	if !ok {
		l.Warn("dprint cannot format", path)
		return nil
	}

	formatted, err := svc.FormatText(ctx, path, string(content))
	if err != nil {
		return err
	}

	if !write {
		_, err := fmt.Fprint(cmd.OutOrStdout(), formatted)
		return err
	}
	if formatted == string(content) {
		l.Verbose("Already formatted:", path)
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	l.Info("Formatted", path)
	return os.WriteFile(path, []byte(formatted), info.Mode().Perm())
}

func workspaceDir(dir string) (string, error) {
	if dir != "" {
		return filepath.Abs(dir)
	}
	return os.Getwd()
}

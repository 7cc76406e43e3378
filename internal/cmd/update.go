package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gerrxt07/niva/internal/config"
	"github.com/gerrxt07/niva/internal/interactive"
	"github.com/gerrxt07/niva/internal/output"
	"github.com/gerrxt07/niva/internal/update"
)

// updateOptions holds the flags of the update command.
type updateOptions struct {
	yes    bool
	check  bool
	format output.Format
}

func newUpdateCmd(v *viper.Viper) *cobra.Command {
	var opts updateOptions

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update the installation to the latest release",
		Long: `Update checks GitHub for the latest Niva-Console release and installs it.

The installed version is read from the Version key of config.toml. When the
latest release tag differs, you are asked to confirm before anything is
downloaded. Without a terminal, pass --yes to update unattended.

Examples:
  niva update                 # Check, confirm and install
  niva update --yes           # Install without prompting
  niva update --check         # Only report whether an update exists
  niva update --root /opt/niva`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(v)
			if err != nil {
				return err
			}
			if opts.format, err = parseFormat(); err != nil {
				return err
			}
			return runUpdate(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), s, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Install without asking for confirmation")
	cmd.Flags().BoolVar(&opts.check, "check", false, "Check for an update without installing")

	return cmd
}

// runUpdate runs one update session and reports its result. Sessions that
// end up to date, successful or cancelled exit cleanly; every other outcome
// is returned as an error.
func runUpdate(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, s *config.Settings, opts updateOptions) error {
	logger, closer := newLogger(stderr, s)
	defer func() { _ = closer.Close() }()

	if opts.check {
		return runCheck(ctx, stdout, newOrchestrator(s, logger), opts.format)
	}

	warnLocalChanges(ctx, logger, s.Root)

	var extra []update.Option
	if !opts.yes {
		if isTerminal() {
			extra = append(extra, update.WithConfirmer(interactive.NewPrompterWithIO(stdin, stderr)))
		} else {
			logger.Warn("No terminal to confirm the update; use --yes to update non-interactively")
		}
	}
	if opts.format == output.FormatText && !quiet {
		extra = append(extra, update.WithProgress(progressPrinter(stderr)))
	}

	res := newOrchestrator(s, logger, extra...).Update(ctx, opts.yes)

	failed := !res.Succeeded && res.State != update.UpToDate && res.State != update.Cancelled
	if opts.format == output.FormatText {
		if failed {
			return errors.New(res.Message)
		}
		_, _ = fmt.Fprintln(stdout, res.Message)
		if res.State == update.Success {
			_, _ = fmt.Fprintln(stdout, update.MsgRestart)
		}
		return nil
	}

	if err := output.NewWriter(stdout, opts.format).Write(res); err != nil {
		return err
	}
	if failed {
		return errors.New(res.Message)
	}
	return nil
}

// runCheck reports whether a newer release is available.
func runCheck(ctx context.Context, stdout io.Writer, orch *update.Orchestrator, format output.Format) error {
	result, err := orch.Check(ctx)
	if err != nil {
		return fmt.Errorf("failed to check for updates: %w", err)
	}

	if format != output.FormatText {
		return output.NewWriter(stdout, format).Write(result)
	}

	_, _ = fmt.Fprintf(stdout, "Current version: %s\n", result.CurrentVersion)
	_, _ = fmt.Fprintf(stdout, "Latest version:  %s\n", result.LatestVersion)
	if !result.Available {
		_, _ = fmt.Fprintln(stdout, update.MsgUpToDate)
		return nil
	}
	_, _ = fmt.Fprintf(stdout, "\nUpdate available (%s). Run 'niva update' to install.\n", result.Direction)
	return nil
}

// progressPrinter renders download progress on a single terminal line.
func progressPrinter(w io.Writer) update.ProgressFunc {
	return func(received, total int64) {
		if total <= 0 {
			_, _ = fmt.Fprintf(w, "\rDownloading: %s", formatSize(received))
			return
		}
		_, _ = fmt.Fprintf(w, "\rDownloading: %s / %s (%d%%)", formatSize(received), formatSize(total), received*100/total)
		if received >= total {
			_, _ = fmt.Fprintln(w)
		}
	}
}

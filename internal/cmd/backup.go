package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gerrxt07/niva/internal/backup"
	"github.com/gerrxt07/niva/internal/config"
	"github.com/gerrxt07/niva/internal/fsutil"
	"github.com/gerrxt07/niva/internal/interactive"
	"github.com/gerrxt07/niva/internal/output"
	"github.com/gerrxt07/niva/internal/update"
)

const timeLayout = "2006-01-02 15:04:05"

// backupListing is one row of 'niva backup list'.
type backupListing struct {
	backup.Record `yaml:",inline"`
	Size          int64 `json:"size" yaml:"size"`
}

// backupTable is the result of 'niva backup list'. It encodes as a plain list
// and renders as a table in text mode.
type backupTable struct {
	dir   string
	items []backupListing
}

func (t backupTable) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.items)
}

func (t backupTable) MarshalYAML() (any, error) {
	return t.items, nil
}

func (t backupTable) RenderText(w io.Writer) error {
	if len(t.items) == 0 {
		_, _ = fmt.Fprintln(w, "No backups found.")
		_, _ = fmt.Fprintf(w, "Backup directory: %s\n", t.dir)
		return nil
	}

	_, _ = fmt.Fprintf(w, "Backups stored in %s:\n\n", t.dir)

	rows := make([][]string, 0, len(t.items))
	for _, l := range t.items {
		rows = append(rows, []string{l.Name, l.CreatedAt.Format(timeLayout), formatSize(l.Size)})
	}
	return output.Table(w, []string{"NAME", "CREATED", "SIZE"}, rows)
}

func newBackupCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage installation backups",
		Long: `Backup manages snapshots of the Niva-Console installation.

Every update takes a snapshot before replacing any files and keeps the most
recent ones (5 by default, see NIVA_MAX_BACKUPS). Snapshots live in the
backups directory of the installation root and contain every file except
version-control metadata.

Use 'niva backup restore' to roll the installation back by hand.`,
	}

	cmd.AddCommand(newBackupCreateCmd(v))
	cmd.AddCommand(newBackupListCmd(v))
	cmd.AddCommand(newBackupRestoreCmd(v))
	cmd.AddCommand(newBackupDeleteCmd(v))
	cmd.AddCommand(newBackupPruneCmd(v))

	return cmd
}

// withSettings adapts a backup runner to a cobra RunE.
func withSettings(v *viper.Viper, run func(cmd *cobra.Command, s *config.Settings, format output.Format, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings(v)
		if err != nil {
			return err
		}
		format, err := parseFormat()
		if err != nil {
			return err
		}
		return run(cmd, s, format, args)
	}
}

func newBackupCreateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create a new backup",
		Long:  `Create snapshots the installation and prunes snapshots beyond the retention limit.`,
		Args:  cobra.NoArgs,
		RunE: withSettings(v, func(cmd *cobra.Command, s *config.Settings, format output.Format, _ []string) error {
			return runBackupCreate(cmd.Context(), cmd.OutOrStdout(), s, format)
		}),
	}
}

func newBackupListCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all backups",
		Long:  `List displays all backups, newest first, with their creation time and size.`,
		Args:  cobra.NoArgs,
		RunE: withSettings(v, func(cmd *cobra.Command, s *config.Settings, format output.Format, _ []string) error {
			return runBackupList(cmd.OutOrStdout(), s, format)
		}),
	}
}

func newBackupRestoreCmd(v *viper.Viper) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "restore <name>",
		Short: "Restore the installation from a backup",
		Long: `Restore replaces the installation with the contents of a backup.

Use 'latest' as the name to restore the most recent backup. The backups
directory and version-control metadata are left in place.`,
		Args: cobra.ExactArgs(1),
		RunE: withSettings(v, func(cmd *cobra.Command, s *config.Settings, _ output.Format, args []string) error {
			return runBackupRestore(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), s, args[0], yes)
		}),
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")

	return cmd
}

func newBackupDeleteCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a backup",
		Long:  `Delete removes a backup by its name.`,
		Args:  cobra.ExactArgs(1),
		RunE: withSettings(v, func(cmd *cobra.Command, s *config.Settings, _ output.Format, args []string) error {
			return runBackupDelete(cmd.OutOrStdout(), s, args[0])
		}),
	}
}

func newBackupPruneCmd(v *viper.Viper) *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old backups",
		Long: `Prune deletes old backups, keeping only the most recent N backups.

By default, keeps as many backups as an update does.`,
		Args: cobra.NoArgs,
		RunE: withSettings(v, func(cmd *cobra.Command, s *config.Settings, format output.Format, _ []string) error {
			if !cmd.Flags().Changed("keep") {
				keep = s.MaxBackups
			}
			return runBackupPrune(cmd.OutOrStdout(), s, keep, format)
		}),
	}

	cmd.Flags().IntVar(&keep, "keep", backup.DefaultKeepCount, "Number of backups to keep")

	return cmd
}

// runBackupCreate creates a new backup.
func runBackupCreate(ctx context.Context, stdout io.Writer, s *config.Settings, format output.Format) error {
	manager := newBackupManager(s)

	record, err := manager.Create(ctx, s.Root)
	if err != nil {
		return err
	}
	if _, err := manager.Prune(s.MaxBackups); err != nil {
		return fmt.Errorf("backup created but pruning failed: %w", err)
	}

	if format != output.FormatText {
		return output.NewWriter(stdout, format).Write(record)
	}

	_, _ = fmt.Fprintf(stdout, "Backup created: %s\n", record.Name)
	_, _ = fmt.Fprintf(stdout, "Location: %s\n", record.Path)
	return nil
}

// runBackupList lists all backups.
func runBackupList(stdout io.Writer, s *config.Settings, format output.Format) error {
	manager := newBackupManager(s)

	records, err := manager.List()
	if err != nil {
		return err
	}

	listings := make([]backupListing, 0, len(records))
	for _, r := range records {
		size, err := fsutil.TreeSize(r.Path)
		if err != nil {
			return err
		}
		listings = append(listings, backupListing{Record: r, Size: size})
	}

	return output.NewWriter(stdout, format).Write(backupTable{dir: manager.BackupDir(), items: listings})
}

// runBackupRestore restores the installation from a backup.
func runBackupRestore(ctx context.Context, stdin io.Reader, stdout io.Writer, s *config.Settings, name string, skipConfirm bool) error {
	manager := newBackupManager(s)

	record, err := manager.Get(name)
	if err != nil {
		if errors.Is(err, backup.ErrNoBackup) {
			return fmt.Errorf("no backups found in %s", manager.BackupDir())
		}
		return err
	}

	_, _ = fmt.Fprintf(stdout, "Restoring from backup: %s\n", record.Name)
	_, _ = fmt.Fprintf(stdout, "Created: %s\n\n", record.CreatedAt.Format(timeLayout))

	if !skipConfirm {
		if !isTerminal() {
			return errors.New("restore needs confirmation; use --yes to restore non-interactively")
		}
		prompter := interactive.NewPrompterWithIO(stdin, stdout)
		ok, err := prompter.Confirm(ctx, fmt.Sprintf("Replace %s with this backup?", s.Root))
		if err != nil && !errors.Is(err, interactive.ErrNoInput) {
			return err
		}
		if !ok {
			_, _ = fmt.Fprintln(stdout, "Restore cancelled.")
			return nil
		}
	}

	// Restore runs to completion once started.
	if err := manager.Restore(context.WithoutCancel(ctx), record.Path); err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}

	_, _ = fmt.Fprintln(stdout, "Restored successfully.")
	_, _ = fmt.Fprintln(stdout, update.MsgRestart)
	return nil
}

// runBackupDelete deletes a backup.
func runBackupDelete(stdout io.Writer, s *config.Settings, name string) error {
	if err := newBackupManager(s).Delete(name); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(stdout, "Backup deleted: %s\n", name)
	return nil
}

// runBackupPrune removes old backups.
func runBackupPrune(stdout io.Writer, s *config.Settings, keep int, format output.Format) error {
	result, err := newBackupManager(s).Prune(keep)
	if err != nil {
		return err
	}

	if format != output.FormatText {
		return output.NewWriter(stdout, format).Write(result)
	}

	if len(result.Deleted) == 0 {
		_, _ = fmt.Fprintf(stdout, "No backups to prune. Keeping %d backups.\n", result.Kept)
		return nil
	}

	_, _ = fmt.Fprintf(stdout, "Pruned %d backup(s), keeping %d:\n", len(result.Deleted), result.Kept)
	for _, b := range result.Deleted {
		_, _ = fmt.Fprintf(stdout, "  - %s (%s)\n", b.Name, b.CreatedAt.Format(timeLayout))
	}
	return nil
}

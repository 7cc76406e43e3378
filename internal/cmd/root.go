// Package cmd contains the niva command tree.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gerrxt07/niva/internal/backup"
	"github.com/gerrxt07/niva/internal/output"
	"github.com/gerrxt07/niva/internal/types"
	"github.com/gerrxt07/niva/internal/update"
)

var (
	// Global flags
	outputFormat string
	verbose      bool
	quiet        bool

	// Build information, set by Execute.
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

// Execute runs the command tree. Interrupting the process cancels ctx, which
// an update in progress treats as cancellation or rollback.
func Execute(ctx context.Context, version, commit, date string) error {
	buildVersion, buildCommit, buildDate = version, commit, date

	return fang.Execute(
		ctx,
		newRootCmd(viper.New()),
		fang.WithVersion(versionString()),
		fang.WithNotifySignal(os.Interrupt),
	)
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "niva",
		Short: "Self-updater for Niva-Console installations",
		Long: `niva keeps a Niva-Console installation up to date with its latest GitHub release.

An update downloads the release archive, verifies and validates it, backs up
the current installation and swaps the new files in. Any failure after the
backup restores the previous installation.

Settings can also be given as NIVA_* environment variables, e.g. NIVA_ROOT,
NIVA_API_URL or NIVA_MAX_BACKUPS. GITHUB_TOKEN is used when NIVA_TOKEN is unset.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("root", ".", "Niva-Console installation root")
	flags.String("config", "", "Path to the application config (default <root>/config.toml)")
	flags.String("backup-dir", "", "Backups directory (default <root>/backups)")
	flags.String("log-file", "", "Also write logs to this rotating file")
	flags.StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json, yaml")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (errors only)")

	bindSettings(v, rootCmd)

	rootCmd.AddCommand(newUpdateCmd(v))
	rootCmd.AddCommand(newBackupCmd(v))
	rootCmd.AddCommand(newVersionCmd(v))
	rootCmd.AddCommand(newCompletionCmd())

	// Register completion function for output flag
	_ = rootCmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return output.Formats(), cobra.ShellCompDirectiveNoFileComp
	})

	return rootCmd
}

// bindSettings registers defaults, environment variables and persistent
// flags for every config.Settings key.
func bindSettings(v *viper.Viper, rootCmd *cobra.Command) {
	v.SetDefault("root", ".")
	v.SetDefault("config", "")
	v.SetDefault("backup_dir", "")
	v.SetDefault("log_file", "")
	v.SetDefault("owner", update.DefaultOwner)
	v.SetDefault("repo", update.DefaultRepo)
	v.SetDefault("api_url", update.DefaultBaseURL)
	v.SetDefault("token", "")
	v.SetDefault("user_agent", update.DefaultUserAgent)
	v.SetDefault("retry_delay", update.DefaultRetryDelay)
	v.SetDefault("max_backups", backup.DefaultKeepCount)
	v.SetDefault("backup_excludes", []string{})
	v.SetDefault("required_files", []string{"main.py", types.ConfigFileName})
	v.SetDefault("required_dirs", []string{"scripts"})

	v.SetEnvPrefix("NIVA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("token", "NIVA_TOKEN", "GITHUB_TOKEN")

	flags := rootCmd.PersistentFlags()
	for key, flag := range map[string]string{
		"root":       "root",
		"config":     "config",
		"backup_dir": "backup-dir",
		"log_file":   "log-file",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}
}

// versionString returns a formatted version string for display.
func versionString() string {
	if buildVersion == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", buildVersion, buildCommit, buildDate)
}

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gerrxt07/niva/internal/config"
	"github.com/gerrxt07/niva/internal/output"
)

// versionInfo is what 'niva version' reports.
type versionInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	Date      string `json:"date" yaml:"date"`
	Installed string `json:"installed,omitempty" yaml:"installed,omitempty"`
}

func newVersionCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the niva build and the Niva-Console version installed in the root.

Examples:
  niva version                # Show both versions
  niva update --check         # Check if an update is available`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat()
			if err != nil {
				return err
			}
			// An unusable root still reports the build.
			s, _ := loadSettings(v)
			return runVersion(cmd.OutOrStdout(), s, format)
		},
	}
}

func runVersion(stdout io.Writer, s *config.Settings, format output.Format) error {
	info := versionInfo{Version: buildVersion, Commit: buildCommit, Date: buildDate}
	if s != nil {
		if installed, err := config.NewStore(s.ConfigPath()).ReadVersion(); err == nil {
			info.Installed = installed
		}
	}

	if format != output.FormatText {
		return output.NewWriter(stdout, format).Write(info)
	}

	_, _ = fmt.Fprintf(stdout, "niva version %s\n", versionString())
	if info.Installed != "" {
		_, _ = fmt.Fprintf(stdout, "Niva-Console %s\n", info.Installed)
	}
	return nil
}

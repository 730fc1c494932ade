package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/zx06/sshpin/internal/config"
	"github.com/zx06/sshpin/internal/errors"
	"github.com/zx06/sshpin/internal/output"
)

// Build-time variables (set by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Config holds the resolved configuration
type Config struct {
	FormatStr  string
	ConfigStr  string
	ProfileStr string
	Verbose    bool
	Resolved   config.Resolved
}

// GlobalConfig holds the global configuration state
var GlobalConfig = &Config{}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "sshpin",
		Short:         "SSH with pinned host keys (no trust-on-first-use)",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// CLI > ENV > Config
			formatSet := cmd.Flags().Changed("format")
			profileSet := cmd.Flags().Changed("profile")
			configSet := cmd.Flags().Changed("config")
			if configSet && GlobalConfig.ConfigStr == "" {
				return errors.New(errors.CodeCfgInvalid, "config path is empty", nil)
			}

			r, xe := config.Resolve(config.Options{
				ConfigPath:    GlobalConfig.ConfigStr,
				CLIProfile:    GlobalConfig.ProfileStr,
				CLIProfileSet: profileSet,
				CLIFormat:     GlobalConfig.FormatStr,
				CLIFormatSet:  formatSet,
				EnvProfile:    os.Getenv("SSHPIN_PROFILE"),
				EnvFormat:     os.Getenv("SSHPIN_FORMAT"),
			})
			if xe != nil {
				return xe
			}
			GlobalConfig.Resolved = r
			GlobalConfig.FormatStr = r.Format
			GlobalConfig.ProfileStr = r.ProfileName
			return nil
		},
	}

	root.PersistentFlags().StringVar(&GlobalConfig.ConfigStr, "config", "", "Config file path (YAML); default: ./sshpin.yaml or $HOME/.config/sshpin/sshpin.yaml")
	root.PersistentFlags().StringVarP(&GlobalConfig.ProfileStr, "profile", "p", "", "Host name (config: hosts.<name>)")
	root.PersistentFlags().StringVarP(&GlobalConfig.FormatStr, "format", "f", "auto", "Output format: "+output.FormatList())
	root.PersistentFlags().BoolVar(&GlobalConfig.Verbose, "verbose", false, "Enable debug logging on stderr")

	return root
}

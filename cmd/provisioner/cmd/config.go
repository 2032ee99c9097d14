package cmd

import (
	"os"
	"os/user"
	"path/filepath"

	"github.com/oneconcern/provisioner/pkg/backup"
	"github.com/oneconcern/provisioner/pkg/manifest"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

// configCmd represents the manifest related commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Commands to manage the provisioning manifest",
	Long: `Commands to manage the provisioning manifest.

The manifest describes the working copy to fetch, the resources to install from it,
the desktop settings to apply and the packages to provision.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the effective manifest",
	Long:  "Print the effective manifest, after defaults and environment overrides were applied",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		m := loadManifest()
		if m == nil {
			return
		}
		o, err := yaml.Marshal(m)
		if err != nil {
			wrapFatalln("serialize manifest to yaml", err)
			return
		}
		_, _ = cmd.OutOrStdout().Write(o)
	},
}

var configCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a starter manifest",
	Long: `Create a starter manifest, to be edited. It is placed in $HOME/.provisioner/provisioner.yaml unless --output is given.

An existing manifest is moved to a backup location first.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		target := provisionerFlags.config.output
		if target == "" {
			u, err := user.Current()
			if u == nil || err != nil {
				wrapFatalln("could not get home directory for user", err)
				return
			}
			target = filepath.Join(u.HomeDir, "."+configName, configName+".yaml")
		}

		o, err := yaml.Marshal(manifest.Starter())
		if err != nil {
			wrapFatalln("serialize manifest to yaml", err)
			return
		}
		if err = os.MkdirAll(filepath.Dir(target), 0700); err != nil {
			wrapFatalln("create manifest directory", err)
			return
		}
		rec, err := backup.New(backup.Logger(logger)).Backup(target)
		if err != nil {
			wrapFatalln("back up existing manifest", err)
			return
		}
		if rec != nil {
			infoLogger.Printf("previous manifest moved to %s", rec.Backup)
		}
		if err = os.WriteFile(target, o, 0600); err != nil {
			wrapFatalln("write manifest", err)
			return
		}
		infoLogger.Printf("manifest written to %s", target)
	},
}

func init() {
	addConfigOutputFlag(configCreateCmd)

	configCmd.AddCommand(configDumpCmd)
	configCmd.AddCommand(configCreateCmd)
	rootCmd.AddCommand(configCmd)
}

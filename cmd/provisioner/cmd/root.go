// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/oneconcern/provisioner/pkg/dlogger"
	"github.com/oneconcern/provisioner/pkg/manifest"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	configEnv  = "PROVISIONER_CONFIG"
	configName = "provisioner"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "provisioner",
	Short: "Provisioner sets up a workstation from a manifest",
	Long: `Provisioner sets up a workstation from a manifest, and may be run again safely.

It clones or updates a working copy of resources, installs them in system locations after backing up
whatever they replace, applies desktop settings, then downloads, verifies and installs packages.

Every run is a session: prerequisites failing abort the session, while a failed setting or package
is reported and the session carries on.
`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		logger, err = dlogger.GetLoggerWithFormat(provisionerFlags.root.logLevel, provisionerFlags.root.logFormat)
		if err != nil {
			wrapFatalln("invalid logging configuration", err)
			return
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

var logger = zap.NewNop()

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	log.SetFlags(0)
	cobra.OnInitialize(initConfig)

	addConfigFlag(rootCmd)
	addLogLevel(rootCmd)
	addLogFormat(rootCmd)
}

// initConfig reads in the manifest and ENV variables if set.
func initConfig() {
	viper.Reset()
	manifest.SetDefaults(viper.GetViper())

	explicit := provisionerFlags.root.config
	if explicit == "" {
		explicit = os.Getenv(configEnv)
	}
	if explicit != "" {
		viper.SetConfigFile(explicit)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.provisioner")
		viper.AddConfigPath("/etc/provisioner")
		viper.SetConfigName(configName)
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix(configName)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	err := viper.ReadInConfig()
	switch {
	case err == nil:
		log.Println("Using config file:", viper.ConfigFileUsed())
	case explicit != "":
		wrapFatalln("cannot read manifest "+explicit, err)
	}
}

// loadManifest decodes and validates the manifest read by initConfig
func loadManifest() *manifest.Manifest {
	m, err := manifest.Load(viper.GetViper())
	if err != nil {
		wrapFatalln("invalid manifest", err)
		return nil
	}
	return m
}

// Copyright © 2018 One Concern

package cmd

import (
	"fmt"
	"strings"

	"github.com/oneconcern/provisioner/pkg/dlogger"
	"github.com/spf13/cobra"
)

// reboot policies after a session
const (
	rebootAsk    = "ask"
	rebootNever  = "never"
	rebootAlways = "always"
)

type flagsT struct {
	root struct {
		config    string
		logLevel  string
		logFormat string
	}
	run struct {
		report        string
		strict        bool
		reboot        string
		requireRoot   bool
		skipPackages  bool
		skipResources bool
		skipSettings  bool
	}
	fetch struct {
		output  string
		digest  string
		retries int
		timeout string
	}
	backup struct {
		into string
	}
	config struct {
		output string
	}
	version struct {
		json bool
	}
}

var provisionerFlags = flagsT{}

func addConfigFlag(cmd *cobra.Command) string {
	c := "config"
	cmd.PersistentFlags().StringVar(&provisionerFlags.root.config, c, "",
		"The provisioning manifest. Defaults to $PROVISIONER_CONFIG, then provisioner.yaml in ., $HOME/.provisioner or /etc/provisioner")
	return c
}

func addLogLevel(cmd *cobra.Command) string {
	loglevel := "loglevel"
	cmd.PersistentFlags().StringVar(&provisionerFlags.root.logLevel, loglevel, dlogger.LogLevelInfo,
		"The logging level. Levels by increasing order of verbosity: none, error, warn, info, debug")
	return loglevel
}

func addLogFormat(cmd *cobra.Command) string {
	format := "log-format"
	cmd.PersistentFlags().StringVar(&provisionerFlags.root.logFormat, format, dlogger.FormatConsole,
		"The format of log lines: console or json")
	return format
}

func addReportFlag(cmd *cobra.Command) string {
	report := "report"
	cmd.Flags().StringVar(&provisionerFlags.run.report, report, "", "Write a JSON report of the session to this file")
	return report
}

func addStrictFlag(cmd *cobra.Command) string {
	strict := "strict"
	cmd.Flags().BoolVar(&provisionerFlags.run.strict, strict, false,
		"Exit with a non-zero status when any step failed, even though the session completed")
	return strict
}

func addRebootFlag(cmd *cobra.Command) string {
	reboot := "reboot"
	cmd.Flags().StringVar(&provisionerFlags.run.reboot, reboot, rebootAsk,
		fmt.Sprintf("Reboot after a completed session: %s", strings.Join([]string{rebootAsk, rebootNever, rebootAlways}, ", ")))
	return reboot
}

func addRequireRootFlag(cmd *cobra.Command) string {
	root := "require-root"
	cmd.Flags().BoolVar(&provisionerFlags.run.requireRoot, root, false, "Refuse to run unless invoked as root")
	return root
}

func addSkipPackagesFlag(cmd *cobra.Command) string {
	skip := "skip-packages"
	cmd.Flags().BoolVar(&provisionerFlags.run.skipPackages, skip, false, "Do not provision packages")
	return skip
}

func addSkipResourcesFlag(cmd *cobra.Command) string {
	skip := "skip-resources"
	cmd.Flags().BoolVar(&provisionerFlags.run.skipResources, skip, false, "Do not install resources from the working copy")
	return skip
}

func addSkipSettingsFlag(cmd *cobra.Command) string {
	skip := "skip-settings"
	cmd.Flags().BoolVar(&provisionerFlags.run.skipSettings, skip, false, "Do not apply desktop settings")
	return skip
}

func addOutputFlag(cmd *cobra.Command) string {
	output := "output"
	cmd.Flags().StringVar(&provisionerFlags.fetch.output, output, "", "The local path of the downloaded file, or a directory to download into")
	return output
}

func addDigestFlag(cmd *cobra.Command) string {
	digest := "digest"
	cmd.Flags().StringVar(&provisionerFlags.fetch.digest, digest, "",
		`The expected digest, as "algo:hex" with algo one of sha256, blake2b, blake3. Bare hex is sha256`)
	return digest
}

func addRetriesFlag(cmd *cobra.Command) string {
	retries := "retries"
	cmd.Flags().IntVar(&provisionerFlags.fetch.retries, retries, -1, "Retries after a first failed attempt. Defaults to the manifest setting")
	return retries
}

func addTimeoutFlag(cmd *cobra.Command) string {
	timeout := "timeout"
	cmd.Flags().StringVar(&provisionerFlags.fetch.timeout, timeout, "", "Timeout of each attempt, e.g. 30s. Defaults to the manifest setting")
	return timeout
}

func addIntoFlag(cmd *cobra.Command) string {
	into := "into"
	cmd.Flags().StringVar(&provisionerFlags.backup.into, into, "", "The backup directory. Defaults to a backup directory next to the path")
	return into
}

func addConfigOutputFlag(cmd *cobra.Command) string {
	output := "output"
	cmd.Flags().StringVar(&provisionerFlags.config.output, output, "", "Where to write the manifest. Defaults to $HOME/.provisioner/provisioner.yaml")
	return output
}

func addVersionJSONFlag(cmd *cobra.Command) string {
	c := "json"
	cmd.Flags().BoolVar(&provisionerFlags.version.json, c, false, "Print version information as JSON")
	return c
}

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/oneconcern/provisioner/pkg/backup"
	"github.com/oneconcern/provisioner/pkg/desktop"
	"github.com/oneconcern/provisioner/pkg/download"
	"github.com/oneconcern/provisioner/pkg/install"
	"github.com/oneconcern/provisioner/pkg/manifest"
	"github.com/oneconcern/provisioner/pkg/packages"
	"github.com/oneconcern/provisioner/pkg/runner"
	"github.com/oneconcern/provisioner/pkg/session"
	"github.com/oneconcern/provisioner/pkg/workcopy"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// used to patch over the command runner and the effective user id during test
var (
	newRunner = func(l *zap.Logger) runner.Runner { return runner.New(l) }
	geteuid   = os.Geteuid
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a provisioning session",
	Long: `Run a provisioning session from the manifest.

The session exits with status 1 when it was aborted: a prerequisite failed, or it was interrupted.
A completed session with failed steps exits with status 0, or 2 with --strict.
`,
	Example: `
sudo provisioner run --config provisioner.yaml --report /var/log/provisioner.json
provisioner run --skip-packages --reboot never`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if !validReboot(provisionerFlags.run.reboot) {
			wrapFatalln("invalid --reboot policy "+provisionerFlags.run.reboot, nil)
			return
		}
		if provisionerFlags.run.requireRoot && geteuid() != 0 {
			wrapFatalln("provisioning requires root privileges: run with sudo", nil)
			return
		}
		m := loadManifest()
		if m == nil {
			return
		}
		plan, err := m.Plan()
		if err != nil {
			wrapFatalln("invalid manifest", err)
			return
		}
		if provisionerFlags.run.skipResources {
			plan.Catalog = nil
		}
		if provisionerFlags.run.skipSettings {
			plan.Settings = nil
		}
		if provisionerFlags.run.skipPackages {
			plan.Packages = nil
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		exec := newRunner(logger)
		result := newSession(m, exec, logger).Run(ctx, plan)

		result.Summary(cmd.OutOrStdout())
		if provisionerFlags.run.report != "" {
			if err := writeReport(provisionerFlags.run.report, result); err != nil {
				logger.Error("cannot write session report", zap.String("path", provisionerFlags.run.report), zap.Error(err))
			}
		}

		if result.State == session.Done {
			maybeReboot(ctx, cmd, exec, provisionerFlags.run.reboot)
		}
		if code := result.ExitCode(provisionerFlags.run.strict); code != session.ExitOK {
			wrapFatalWithCodef(code, "provisioning session %s ended with status %d", result.ID, code)
		}
	},
}

// newSession wires the engine components. Every component shares one backup manager,
// so backups of a session never collide.
func newSession(m *manifest.Manifest, exec runner.Runner, l *zap.Logger) *session.Session {
	fs := afero.NewOsFs()
	backups := backup.New(backup.Fs(fs), backup.Logger(l))

	downloader := download.New(
		download.Fs(fs),
		download.UserAgent(m.Download.UserAgent),
		download.StagingDir(m.Staging()),
		download.Logger(l),
	)
	settings := desktop.New(exec,
		desktop.Binary(m.Desktop.Binary),
		desktop.Env(m.Desktop.Env...),
		desktop.Fs(fs),
		desktop.Logger(l),
	)

	return session.New(
		session.Fs(fs),
		session.Lock(m.LockFile),
		session.Logger(l),
		session.WorkingCopy(workcopy.New(exec,
			workcopy.Fs(fs),
			workcopy.Backups(backups),
			workcopy.Logger(l),
		)),
		session.Resources(install.New(m.WorkingCopyPath(),
			install.Fs(fs),
			install.Backups(backups),
			install.Logger(l),
		)),
		session.Settings(settings),
		session.Packages(packages.New(exec, downloader,
			packages.Fs(fs),
			packages.Backups(backups),
			packages.Desktop(settings),
			packages.StagingDir(m.Staging()),
			packages.Logger(l),
		)),
	)
}

func writeReport(pth string, result *session.Result) error {
	f, err := os.Create(pth)
	if err != nil {
		return err
	}
	if err = result.WriteReport(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func init() {
	addReportFlag(runCmd)
	addStrictFlag(runCmd)
	addRebootFlag(runCmd)
	addRequireRootFlag(runCmd)
	addSkipPackagesFlag(runCmd)
	addSkipResourcesFlag(runCmd)
	addSkipSettingsFlag(runCmd)

	rootCmd.AddCommand(runCmd)
}

package cmd

import (
	"github.com/oneconcern/provisioner/pkg/backup"
	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup PATH",
	Short: "Move a path aside to a fresh backup location",
	Long: `Move a file or directory to a backup directory, under a name never used before:
<name>.b, then <name>.b.<unix seconds>, then <name>.b.<unix seconds>.<n>.

By default, the backup directory is "backup", next to the path. A missing path is not an error.
`,
	Example: `
provisioner backup /boot/grub/grub.cfg
provisioner backup /boot/grub/themes/kali --into /var/backups/grub`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		m := backup.New(backup.Logger(logger))
		rec, err := m.BackupInto(args[0], provisionerFlags.backup.into)
		if err != nil {
			wrapFatalln("backup failed", err)
			return
		}
		if rec == nil {
			infoLogger.Printf("%s does not exist: nothing to back up", args[0])
			return
		}
		infoLogger.Printf("%s -> %s", rec.Original, rec.Backup)
	},
}

func init() {
	addIntoFlag(backupCmd)

	rootCmd.AddCommand(backupCmd)
}

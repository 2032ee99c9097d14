package backup

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/oneconcern/provisioner/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2024, 5, 17, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedTime }

func TestBackupMissingPath(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := New(Fs(fs), Clock(fixedClock))

	rec, err := m.Backup("/boot/grub/grub.cfg")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Empty(t, m.Records())

	exists, err := afero.DirExists(fs, "/boot/grub/backup")
	require.NoError(t, err)
	assert.False(t, exists, "no backup directory is created when there is nothing to back up")
}

func TestBackupNaming(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := New(Fs(fs), Clock(fixedClock))
	stamp := strconv.FormatInt(fixedTime.Unix(), 10)

	expected := []string{
		"/usr/share/backgrounds/kali/backup/login.svg.b",
		"/usr/share/backgrounds/kali/backup/login.svg.b." + stamp,
		"/usr/share/backgrounds/kali/backup/login.svg.b." + stamp + ".1",
		"/usr/share/backgrounds/kali/backup/login.svg.b." + stamp + ".2",
	}

	for i, want := range expected {
		content := []byte("version " + strconv.Itoa(i))
		require.NoError(t, afero.WriteFile(fs, "/usr/share/backgrounds/kali/login.svg", content, 0644))

		rec, err := m.Backup("/usr/share/backgrounds/kali/login.svg")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, want, rec.Backup)
		assert.Equal(t, "/usr/share/backgrounds/kali/login.svg", rec.Original)
		assert.Equal(t, fixedTime, rec.Timestamp)

		// moved, not copied
		exists, err := afero.Exists(fs, rec.Original)
		require.NoError(t, err)
		assert.False(t, exists)

		b, err := afero.ReadFile(fs, rec.Backup)
		require.NoError(t, err)
		assert.Equal(t, content, b)
	}
	assert.Len(t, m.Records(), len(expected))
}

func TestBackupNeverReusesHandedOutNames(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := New(Fs(fs), Clock(fixedClock))

	require.NoError(t, afero.WriteFile(fs, "/etc/app.conf", []byte("one"), 0644))
	first, err := m.Backup("/etc/app.conf")
	require.NoError(t, err)

	// an operator removes the first backup behind our back
	require.NoError(t, fs.Remove(first.Backup))

	require.NoError(t, afero.WriteFile(fs, "/etc/app.conf", []byte("two"), 0644))
	second, err := m.Backup("/etc/app.conf")
	require.NoError(t, err)
	assert.NotEqual(t, first.Backup, second.Backup)
}

func TestBackupInto(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := New(Fs(fs), Clock(fixedClock))

	require.NoError(t, afero.WriteFile(fs, "/boot/grub/grub.cfg", []byte("menuentry"), 0644))
	rec, err := m.BackupInto("/boot/grub/grub.cfg", "/boot/grub")
	require.NoError(t, err)
	assert.Equal(t, "/boot/grub/grub.cfg.b", rec.Backup)

	require.NoError(t, afero.WriteFile(fs, "/boot/grub/grub.cfg", []byte("menuentry"), 0644))
	_, err = m.BackupInto("/boot/grub", "/boot/grub/backup")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPrerequisite))
}

func TestBackupDirectory(t *testing.T) {
	root := t.TempDir()
	fs := afero.NewOsFs()
	m := New(Fs(fs), Clock(fixedClock))

	theme := filepath.Join(root, "themes", "kali")
	for _, name := range []string{"theme.txt", "background.png", "icons/linux.png"} {
		require.NoError(t, fs.MkdirAll(filepath.Dir(filepath.Join(theme, name)), 0755))
		require.NoError(t, afero.WriteFile(fs, filepath.Join(theme, name), []byte(name), 0644))
	}

	rec, err := m.Backup(theme)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "themes", "backup", "kali.b"), rec.Backup)

	_, err = os.Stat(theme)
	assert.True(t, os.IsNotExist(err))

	for _, name := range []string{"theme.txt", "background.png", "icons/linux.png"} {
		b, err := os.ReadFile(filepath.Join(rec.Backup, name))
		require.NoError(t, err)
		assert.Equal(t, name, string(b))
	}
}

func TestBackupPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	root := t.TempDir()
	fs := afero.NewOsFs()
	m := New(Fs(fs), Clock(fixedClock))

	target := filepath.Join(root, "locked", "grub.cfg")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0755))
	require.NoError(t, os.WriteFile(target, []byte("cfg"), 0644))
	require.NoError(t, os.Chmod(filepath.Dir(target), 0555))
	defer func() { _ = os.Chmod(filepath.Dir(target), 0755) }()

	_, err := m.BackupInto(target, filepath.Join(root, "backups"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPrerequisite))

	// the original is untouched
	b, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "cfg", string(b))
	assert.Empty(t, m.Records())
}

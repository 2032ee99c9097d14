package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestValidate(t *testing.T) {
	good := Catalog{
		{Name: "grub-config", Source: "grub.cfg", Destination: "/boot/grub/grub.cfg", Kind: KindFile, BackupDir: "/boot/grub"},
		{Name: "boot-theme", Source: "kali", Destination: "/boot/grub/themes/kali", Kind: KindDirectory},
		{Name: "shared-theme", Source: "/boot/grub/themes/kali", Destination: "/usr/share/grub/themes/kali", Kind: KindDirectory},
	}
	require.NoError(t, good.Validate())

	bad := Catalog{
		{Name: "", Source: "a", Destination: "/a", Kind: KindFile},
		{Name: "dup", Source: "b", Destination: "/b", Kind: KindFile},
		{Name: "dup", Source: "c", Destination: "relative/c", Kind: "symlink"},
		{Name: "escape", Source: "../outside", Destination: "/d", Kind: KindFile, BackupDir: "backups"},
		{Name: "nosource", Destination: "/e", Kind: KindFile},
	}
	err := bad.Validate()
	require.Error(t, err)
	errs := multierr.Errors(err)
	assert.Len(t, errs, 7)
	assert.Contains(t, err.Error(), "duplicate name")
	assert.Contains(t, err.Error(), "must be an absolute path")
	assert.Contains(t, err.Error(), `unknown kind "symlink"`)
	assert.Contains(t, err.Error(), "escapes the working copy")
	assert.Contains(t, err.Error(), "a source is required")
}

func TestResolve(t *testing.T) {
	assert.Equal(t, "/work/startup/wallpaper/1-wallpaper.png",
		Resolve("/work/startup", Resource{Source: "wallpaper/1-wallpaper.png"}))
	assert.Equal(t, "/boot/grub/themes/kali",
		Resolve("/work/startup", Resource{Source: "/boot/grub/themes/kali/"}))
}

// Package fixtures builds and inspects file trees on disk for tests
package fixtures

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/karrick/godirwalk"
	"github.com/stretchr/testify/require"
)

// WriteTree writes files, keyed by slash separated relative path, under root
func WriteTree(t testing.TB, root string, files map[string][]byte) {
	t.Helper()
	for name, content := range files {
		pth := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(pth), 0755))
		require.NoError(t, os.WriteFile(pth, content, 0644))
	}
}

// ReadTree reads all regular files under root, keyed by slash separated relative path.
// Symlinks are reported with their target as content, prefixed by "->".
func ReadTree(t testing.TB, root string) map[string][]byte {
	t.Helper()
	res := make(map[string][]byte)
	err := godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, osPathname)
			if err != nil {
				return err
			}
			if de.IsSymlink() {
				link, err := os.Readlink(osPathname)
				if err != nil {
					return err
				}
				res[filepath.ToSlash(rel)] = []byte("->" + link)
				return nil
			}
			b, err := os.ReadFile(osPathname)
			if err != nil {
				return err
			}
			res[filepath.ToSlash(rel)] = b
			return nil
		},
	})
	require.NoError(t, err)
	return res
}

// RequireSameTree asserts that two trees on disk hold byte-identical files
func RequireSameTree(t testing.TB, expected, actual string) {
	t.Helper()
	want := ReadTree(t, expected)
	got := ReadTree(t, actual)
	require.Len(t, got, len(want), "%s and %s differ in their number of files", expected, actual)
	for name, content := range want {
		other, ok := got[name]
		require.True(t, ok, "missing %s in %s", name, actual)
		require.Equal(t, content, other, "content of %s differs", name)
	}
}

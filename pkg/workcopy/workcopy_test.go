package workcopy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/oneconcern/provisioner/pkg/errors"
	"github.com/oneconcern/provisioner/pkg/runner"
	"github.com/oneconcern/provisioner/pkg/runner/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const repo = "https://github.com/example/startup.git"

func TestSyncClone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "startup")

	r := &mocks.Runner{}
	r.On("Run", mock.Anything, mocks.Cmd("git", "clone", "--branch", "main", repo, path)).Return(runner.Result{}, nil).Once()

	out, err := New(r).Sync(context.Background(), Config{URL: repo, Path: path, Branch: "main"})
	require.NoError(t, err)
	assert.Equal(t, Cloned, out.Action)
	assert.Nil(t, out.Backup)
	r.AssertExpectations(t)
}

func TestSyncPull(t *testing.T) {
	path := filepath.Join(t.TempDir(), "startup")
	require.NoError(t, os.MkdirAll(path, 0755))

	r := &mocks.Runner{}
	r.On("Run", mock.Anything, mocks.Cmd("git", "-C", path, "pull", "--ff-only")).Return(runner.Result{}, nil).Once()

	out, err := New(r).Sync(context.Background(), Config{URL: repo, Path: path})
	require.NoError(t, err)
	assert.Equal(t, Pulled, out.Action)
	r.AssertExpectations(t)
}

func TestSyncRecloneWhenPullFails(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "startup")
	require.NoError(t, os.MkdirAll(path, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "local-change.txt"), []byte("diverged"), 0644))

	r := &mocks.Runner{}
	r.On("Run", mock.Anything, mocks.Cmd("git", "-C", path, "pull", "--ff-only")).Return(mocks.Fail(128, "git", "-C", path, "pull", "--ff-only")).Once()
	r.On("Run", mock.Anything, mocks.Cmd("git", "clone", repo, path)).Return(runner.Result{}, nil).Once()

	out, err := New(r).Sync(context.Background(), Config{URL: repo, Path: path})
	require.NoError(t, err)
	assert.Equal(t, Recloned, out.Action)
	require.NotNil(t, out.Backup)
	assert.Equal(t, filepath.Join(root, "backup", "startup.b"), out.Backup.Backup)

	b, err := os.ReadFile(filepath.Join(out.Backup.Backup, "local-change.txt"))
	require.NoError(t, err)
	assert.Equal(t, "diverged", string(b))
	r.AssertExpectations(t)
}

func TestSyncFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "startup")

	r := &mocks.Runner{}
	r.On("Run", mock.Anything, mocks.Cmd("git", "clone", repo, path)).Return(mocks.Fail(128, "git", "clone", repo, path)).Once()

	_, err := New(r).Sync(context.Background(), Config{URL: repo, Path: path})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPrerequisite))

	_, err = New(r).Sync(context.Background(), Config{Path: path})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPrerequisite), "no url and no local working copy")

	_, err = New(r).Sync(context.Background(), Config{URL: repo})
	require.Error(t, err)
	r.AssertExpectations(t)
}

func TestSyncLocal(t *testing.T) {
	path := t.TempDir()
	r := &mocks.Runner{}
	out, err := New(r).Sync(context.Background(), Config{Path: path})
	require.NoError(t, err)
	assert.Equal(t, Local, out.Action)
	r.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

package desktop

import (
	"context"
	"testing"

	"github.com/oneconcern/provisioner/pkg/errors"
	"github.com/oneconcern/provisioner/pkg/runner"
	"github.com/oneconcern/provisioner/pkg/runner/mocks"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const dock = "org.gnome.shell.extensions.dash-to-dock"

func out(s string) runner.Result {
	return runner.Result{Stdout: []byte(s + "\n")}
}

func TestApply(t *testing.T) {
	r := &mocks.Runner{}
	r.On("Run", mock.Anything, mocks.Cmd("gsettings", "set", dock, "dock-position", "LEFT")).Return(runner.Result{}, nil).Once()
	r.On("Run", mock.Anything, mocks.Cmd("gsettings", "get", dock, "dock-position")).Return(out("'LEFT'"), nil).Once()
	r.On("Run", mock.Anything, mocks.Cmd("gsettings", "set", dock, "dash-max-icon-size", "20")).Return(runner.Result{}, nil).Once()
	r.On("Run", mock.Anything, mocks.Cmd("gsettings", "get", dock, "dash-max-icon-size")).Return(out("uint32 20"), nil).Once()

	s := New(r)
	require.NoError(t, s.Apply(context.Background(), Setting{Schema: dock, Key: "dock-position", Value: "LEFT"}))
	require.NoError(t, s.Apply(context.Background(), Setting{Schema: dock, Key: "dash-max-icon-size", Value: "20"}))
	r.AssertExpectations(t)
}

func TestApplyDoesNotStick(t *testing.T) {
	r := &mocks.Runner{}
	r.On("Run", mock.Anything, mocks.Cmd("gsettings", "set", dock, "autohide", "true")).Return(runner.Result{}, nil).Once()
	r.On("Run", mock.Anything, mocks.Cmd("gsettings", "get", dock, "autohide")).Return(out("false"), nil).Once()

	err := New(r).Apply(context.Background(), Setting{Schema: dock, Key: "autohide", Value: "true"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrLaunch))
	r.AssertExpectations(t)
}

func TestApplyCommandFails(t *testing.T) {
	r := &mocks.Runner{}
	r.On("Run", mock.Anything, mocks.Cmd("dconf-settings", "set", dock, "autohide", "true")).Return(mocks.Fail(1, "dconf-settings", "set", dock, "autohide", "true")).Once()

	err := New(r, Binary("dconf-settings")).Apply(context.Background(), Setting{Schema: dock, Key: "autohide", Value: "true"})
	require.Error(t, err)
	var exitErr *runner.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1, exitErr.Code)
	r.AssertExpectations(t)
}

func TestNormalize(t *testing.T) {
	for _, tc := range []struct{ in, expected string }{
		{in: "'Conifer 11'", expected: "Conifer 11"},
		{in: "Conifer 11", expected: "Conifer 11"},
		{in: "0.95", expected: "0.95"},
		{in: "uint32 0", expected: "0"},
		{in: `"zoom"`, expected: "zoom"},
		{in: "@as []", expected: "[]"},
		{in: "['a.desktop', 'b.desktop']", expected: "[a.desktop,b.desktop]"},
		{in: "['a.desktop','b.desktop']", expected: "[a.desktop,b.desktop]"},
		{in: "'", expected: "'"},
	} {
		assert.Equal(t, tc.expected, Normalize(tc.in), tc.in)
	}
}

func TestPin(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/usr/share/applications/brave-browser-nightly.desktop", []byte("[Desktop Entry]"), 0644))
	pin := Pin{Candidates: []string{"brave-browser.desktop", "brave-browser-nightly.desktop", "brave.desktop"}}

	const (
		before = "['org.gnome.Nautilus.desktop', 'firefox-esr.desktop']"
		after  = "['org.gnome.Nautilus.desktop', 'firefox-esr.desktop', 'brave-browser-nightly.desktop']"
	)

	r := &mocks.Runner{}
	r.On("Run", mock.Anything, mocks.Cmd("gsettings", "get", "org.gnome.shell", "favorite-apps")).Return(out(before), nil).Once()
	r.On("Run", mock.Anything, mocks.Cmd("gsettings", "set", "org.gnome.shell", "favorite-apps", after)).Return(runner.Result{}, nil).Once()
	r.On("Run", mock.Anything, mocks.Cmd("gsettings", "get", "org.gnome.shell", "favorite-apps")).Return(out(after), nil).Once()

	s := New(r, Fs(fs))
	entry, err := s.Pin(context.Background(), pin)
	require.NoError(t, err)
	assert.Equal(t, "brave-browser-nightly.desktop", entry)
	r.AssertExpectations(t)

	// pinning again is a no-op
	r2 := &mocks.Runner{}
	r2.On("Run", mock.Anything, mocks.Cmd("gsettings", "get", "org.gnome.shell", "favorite-apps")).Return(out(after), nil).Once()
	_, err = New(r2, Fs(fs)).Pin(context.Background(), pin)
	require.NoError(t, err)
	r2.AssertExpectations(t)
}

func TestPinEmptyFavorites(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/opt/apps/telegram.desktop", []byte("[Desktop Entry]"), 0644))

	r := &mocks.Runner{}
	r.On("Run", mock.Anything, mocks.Cmd("gsettings", "get", "org.gnome.shell", "favorite-apps")).Return(out("@as []"), nil).Once()
	r.On("Run", mock.Anything, mocks.Cmd("gsettings", "set", "org.gnome.shell", "favorite-apps", "['telegram.desktop']")).Return(runner.Result{}, nil).Once()
	r.On("Run", mock.Anything, mocks.Cmd("gsettings", "get", "org.gnome.shell", "favorite-apps")).Return(out("['telegram.desktop']"), nil).Once()

	_, err := New(r, Fs(fs)).Pin(context.Background(), Pin{Candidates: []string{"telegram.desktop"}, ApplicationsDir: "/opt/apps"})
	require.NoError(t, err)
	r.AssertExpectations(t)
}

func TestPinNoDesktopEntry(t *testing.T) {
	r := &mocks.Runner{}
	_, err := New(r, Fs(afero.NewMemMapFs())).Pin(context.Background(), Pin{Candidates: []string{"code.desktop"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrLaunch))
	r.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

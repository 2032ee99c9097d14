package manifest

import (
	"path"

	"github.com/oneconcern/provisioner/pkg/catalog"
	"github.com/oneconcern/provisioner/pkg/desktop"
	"github.com/oneconcern/provisioner/pkg/download"
	"github.com/oneconcern/provisioner/pkg/workcopy"
)

const (
	dock      = "org.gnome.shell.extensions.dash-to-dock"
	iface     = "org.gnome.desktop.interface"
	wallpaper = "/usr/share/backgrounds/kali"
)

func cmd(argv ...string) Command {
	return Command{Argv: argv}
}

func steps(argvs ...[]string) []Step {
	res := make([]Step, 0, len(argvs))
	for _, argv := range argvs {
		res = append(res, Step{Command: cmd(argv...)})
	}
	return res
}

// Starter is a complete sample manifest, provisioning a Kali desktop from the startup repository
func Starter() *Manifest {
	m := &Manifest{
		WorkingCopy: workcopy.Config{
			URL:  "https://github.com/Abr-ahamis/startup.git",
			Path: "startup",
		},
		StagingDir: "downloads",
		LockFile:   "/run/lock/provisioner.lock",
		Download: Download{
			Retries:   download.DefaultRetries,
			Timeout:   download.DefaultTimeout.String(),
			UserAgent: download.DefaultUserAgent,
			Backoff: Backoff{
				Policy:  BackoffLinear,
				Initial: "2s",
				Step:    "1s",
				Max:     "30s",
			},
		},
		Desktop: Desktop{Binary: desktop.DefaultBinary},
	}

	m.Resources = catalog.Catalog{
		{Name: "grub-config", Source: "grub.cfg", Destination: "/boot/grub/grub.cfg", Kind: catalog.KindFile},
		{Name: "grub-theme", Source: "kali", Destination: "/boot/grub/themes/kali", Kind: catalog.KindDirectory, BackupDir: "/boot/grub/themes/backup"},
		{Name: "grub-theme-share", Source: "/boot/grub/themes/kali", Destination: "/usr/share/grub/themes/kali", Kind: catalog.KindDirectory, BackupDir: "/usr/share/grub/themes/backup"},
	}
	for _, w := range []struct{ name, source, destination string }{
		{"wallpaper-maze", "12-wallpaper.png", "kali-maze-16x9.jpg"},
		{"wallpaper-tiles", "1-wallpaper.png", "kali-tiles-16x9.jpg"},
		{"wallpaper-waves", "2-wallpaper.png", "kali-waves-16x9.png"},
		{"wallpaper-oleo", "3-wallpaper.png", "kali-oleo-16x9.png"},
		{"wallpaper-tiles-purple", "4-wallpaper.png", "kali-tiles-purple-16x9.jpg"},
		{"wallpaper-login", "20-wallpaper.svg", "login.svg"},
		{"wallpaper-login-blurred", "2-wallpaper.png", "login-blurred"},
	} {
		m.Resources = append(m.Resources, catalog.Resource{
			Name:        w.name,
			Source:      path.Join("wallpaper", w.source),
			Destination: path.Join(wallpaper, w.destination),
			Kind:        catalog.KindFile,
			Optional:    true,
		})
	}

	m.Settings = []desktop.Setting{
		{Schema: iface, Key: "font-name", Value: "DejaVu Serif Condensed 10"},
		{Schema: iface, Key: "text-scaling-factor", Value: "0.95"},
		{Schema: "org.gnome.desktop.background", Key: "picture-options", Value: "zoom"},
		{Schema: dock, Key: "dock-position", Value: "LEFT"},
		{Schema: dock, Key: "autohide", Value: "true"},
		{Schema: dock, Key: "animation-time", Value: "0.0"},
		{Schema: dock, Key: "hide-delay", Value: "0.0"},
		{Schema: dock, Key: "pressure-threshold", Value: "0.0"},
		{Schema: dock, Key: "dash-max-icon-size", Value: "20"},
	}

	dpkg := Step{
		Command: cmd("dpkg", "-i", "{{.Artifact}}"),
		Fallback: &Step{
			Command: cmd("apt-get", "install", "-f", "-y"),
		},
	}
	m.Packages = []Package{
		{
			Name:    "fonts-dejavu-core",
			Check:   &Probe{Command: cmd("fc-list", ":family"), Contains: "DejaVu Serif Condensed"},
			Install: steps([]string{"apt-get", "update"}, []string{"apt-get", "install", "-y", "fonts-dejavu-core"}),
		},
		{
			Name:    "vscode",
			URL:     "https://code.visualstudio.com/sha/download?build=stable&os=linux-deb-x64",
			Target:  "code.deb",
			Verify:  "skip",
			Install: []Step{dpkg},
			Launch:  &Command{Argv: []string{"code"}},
			Pin:     &desktop.Pin{Candidates: []string{"code.desktop"}},
		},
		{
			Name: "telegram",
			Discover: &download.Discovery{
				Page:    "https://telegram.org/dl/desktop/linux",
				Pattern: `https://[^\s'"<>]*tsetup\.[0-9.]+\.tar\.xz`,
			},
			Verify: "skip",
			Archive: &Archive{
				Destination:     "/opt/Telegram",
				StripComponents: 1,
				Executables:     []string{"Telegram", "Updater"},
			},
			Launch: &Command{Argv: []string{"/opt/Telegram/Telegram"}},
		},
		{
			Name:   "brave-nightly",
			URL:    "https://dl.brave.com/install.sh",
			Verify: "skip",
			Install: []Step{{
				Command: Command{Argv: []string{"sh", "{{.Artifact}}"}, Env: []string{"CHANNEL=nightly"}},
			}},
			Pin: &desktop.Pin{Candidates: []string{"brave-browser.desktop", "brave-browser-nightly.desktop", "brave.desktop"}},
		},
		{
			Name:   "protonvpn",
			URL:    "https://repo.protonvpn.com/debian/dists/stable/main/binary-all/protonvpn-stable-release_1.0.8_all.deb",
			Digest: "sha256:0b14e71586b22e498eb20926c48c7b434b751149b1f2af9902ef1cfe6b03e180",
			Verify: "mandatory",
			Install: append([]Step{dpkg}, steps(
				[]string{"apt-get", "update"},
				[]string{"apt-get", "install", "-y", "proton-vpn-gnome-desktop"},
			)...),
			Launch: &Command{Argv: []string{"protonvpn-app"}},
			Pin:    &desktop.Pin{Candidates: []string{"protonvpn-app.desktop", "proton.vpn.app.gtk.desktop"}},
		},
		{
			Name: "appindicator",
			Install: []Step{{
				Command: cmd("apt-get", "install", "-y", "libayatana-appindicator3-1", "gir1.2-ayatanaappindicator3-0.1", "gnome-shell-extension-appindicator"),
				Fallback: &Step{
					Command: cmd("apt-get", "install", "-y", "libappindicator3-1", "gir1.2-appindicator3-0.1", "gnome-shell-extension-appindicator"),
				},
			}},
		},
		{
			Name:    "rustscan",
			URL:     "https://github.com/RustScan/RustScan/releases/download/2.2.3/rustscan_2.2.3_amd64.deb",
			Verify:  "skip",
			Check:   &Probe{Command: cmd("rustscan", "--version")},
			Install: []Step{dpkg},
		},
	}
	return m
}

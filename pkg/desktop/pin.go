package desktop

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/oneconcern/provisioner/pkg/errors"
	"go.uber.org/zap"
)

const (
	shellSchema    = "org.gnome.shell"
	favoritesKey   = "favorite-apps"
	applicationDir = "/usr/share/applications"
)

// Pin describes an application to add to the shell favorites.
// The first candidate desktop entry found in ApplicationsDir is pinned.
type Pin struct {
	Candidates      []string `json:"candidates" yaml:"candidates" mapstructure:"candidates"`
	ApplicationsDir string   `json:"applicationsDir,omitempty" yaml:"applicationsDir,omitempty" mapstructure:"applicationsDir"`
}

// Pin an application to the favorites, unless it is already there.
// It returns the desktop entry pinned.
func (s *Settings) Pin(ctx context.Context, p Pin) (string, error) {
	dir := p.ApplicationsDir
	if dir == "" {
		dir = applicationDir
	}

	var entry string
	for _, candidate := range p.Candidates {
		if s.isFile(filepath.Join(dir, candidate)) {
			entry = candidate
			break
		}
	}
	if entry == "" {
		return "", errors.New(fmt.Sprintf("no desktop entry among %v in %s", p.Candidates, dir)).Of(errors.ErrLaunch)
	}

	current, err := s.Get(ctx, shellSchema, favoritesKey)
	if err != nil {
		return entry, err
	}
	favorites, ok := parseList(current)
	if !ok {
		return entry, errors.New(fmt.Sprintf("unexpected favorites value %s", current)).Of(errors.ErrLaunch)
	}
	for _, fav := range favorites {
		if fav == entry {
			s.l.Debug("already pinned", zap.String("entry", entry))
			return entry, nil
		}
	}

	if err = s.Apply(ctx, Setting{Schema: shellSchema, Key: favoritesKey, Value: formatList(append(favorites, entry))}); err != nil {
		return entry, err
	}
	s.l.Info("pinned to favorites", zap.String("entry", entry))
	return entry, nil
}

func (s *Settings) isFile(pth string) bool {
	fi, err := s.fs.Stat(pth)
	return err == nil && !fi.IsDir()
}

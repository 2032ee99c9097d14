// Package desktop drives the desktop shell's key/value settings through the gsettings command.
//
// Every write is confirmed by reading the key back.
package desktop

import (
	"context"
	"fmt"
	"strings"

	"github.com/oneconcern/provisioner/pkg/errors"
	"github.com/oneconcern/provisioner/pkg/runner"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// DefaultBinary is the settings command
const DefaultBinary = "gsettings"

// Setting is a single key/value in a settings schema
type Setting struct {
	Schema string `json:"schema" yaml:"schema" mapstructure:"schema"`
	Key    string `json:"key" yaml:"key" mapstructure:"key"`
	Value  string `json:"value" yaml:"value" mapstructure:"value"`
}

func (s Setting) String() string {
	return s.Schema + " " + s.Key
}

// Settings applies and reads desktop settings
type Settings struct {
	run    runner.Runner
	binary string
	env    []string
	fs     afero.Fs
	l      *zap.Logger
}

// New settings driver, running commands through r
func New(r runner.Runner, opts ...Option) *Settings {
	s := &Settings{
		run:    r,
		binary: DefaultBinary,
		fs:     afero.NewOsFs(),
		l:      zap.NewNop(),
	}
	for _, apply := range opts {
		apply(s)
	}
	return s
}

// Get the current value of a key, as printed by gsettings
func (s *Settings) Get(ctx context.Context, schema, key string) (string, error) {
	res, err := s.run.Run(ctx, s.command("get", schema, key))
	if err != nil {
		return "", errors.New(fmt.Sprintf("cannot read setting %s %s", schema, key)).Of(errors.ErrLaunch).Wrap(err)
	}
	return strings.TrimSpace(string(res.Stdout)), nil
}

// Apply sets a value, then reads it back to confirm it was taken into account
func (s *Settings) Apply(ctx context.Context, st Setting) error {
	if _, err := s.run.Run(ctx, s.command("set", st.Schema, st.Key, st.Value)); err != nil {
		return errors.New(fmt.Sprintf("cannot apply setting %s", st)).Of(errors.ErrLaunch).Wrap(err)
	}

	actual, err := s.Get(ctx, st.Schema, st.Key)
	if err != nil {
		return err
	}
	if Normalize(actual) != Normalize(st.Value) {
		return errors.New(fmt.Sprintf("setting %s did not stick: expected %s, read back %s", st, st.Value, actual)).Of(errors.ErrLaunch)
	}

	s.l.Info("setting applied", zap.String("schema", st.Schema), zap.String("key", st.Key), zap.String("value", actual))
	return nil
}

func (s *Settings) command(args ...string) runner.Command {
	return runner.Command{Name: s.binary, Args: args, Env: s.env}
}

// gvariant type annotations printed in front of some numbers
var typePrefixes = []string{"uint32 ", "int32 ", "uint64 ", "int64 ", "uint16 ", "int16 ", "byte ", "double ", "@as "}

// Normalize a settings value for comparison: quotes, type annotations and list spacing are ignored.
func Normalize(v string) string {
	v = strings.TrimSpace(v)
	for _, prefix := range typePrefixes {
		v = strings.TrimPrefix(v, prefix)
	}
	if items, ok := parseList(v); ok {
		return "[" + strings.Join(items, ",") + "]"
	}
	return unquote(v)
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '\'' || v[0] == '"') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// parseList parses a gvariant string array such as ['a.desktop', 'b.desktop']
func parseList(v string) ([]string, bool) {
	v = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v), "@as "))
	if !strings.HasPrefix(v, "[") || !strings.HasSuffix(v, "]") {
		return nil, false
	}
	inner := strings.TrimSpace(v[1 : len(v)-1])
	if inner == "" {
		return []string{}, true
	}
	parts := strings.Split(inner, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		items = append(items, unquote(strings.TrimSpace(p)))
	}
	return items, true
}

func formatList(items []string) string {
	quoted := make([]string, 0, len(items))
	for _, item := range items {
		quoted = append(quoted, "'"+item+"'")
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

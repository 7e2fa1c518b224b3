package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liebert/internal/bus"
	"liebert/internal/config"
	"liebert/internal/plugin"
)

type namedPlugin string

func (n namedPlugin) Name() string { return string(n) }
func (n namedPlugin) Run(*bus.Bus) {}

func factory(name string) Factory {
	return func(*config.Config) (plugin.Plugin, error) { return namedPlugin(name), nil }
}

func TestBuildOnlyEnabled(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register("a", factory("a")))
	require.NoError(t, r.Register("b", factory("b")))
	require.NoError(t, r.Register("c", factory("c")))
	assert.Error(t, r.Register("a", factory("a")))

	cfg := config.New(map[string]string{"a.enabled": "true", "b.enabled": "false", "c.enabled": "true"})
	plugins, err := r.Build(cfg)
	require.NoError(t, err)
	require.Len(t, plugins, 2)
	assert.Equal(t, "a", plugins[0].Name())
	assert.Equal(t, "c", plugins[1].Name())
	assert.Equal(t, []string{"a", "b", "c"}, r.Names())
}

func TestBuildCollectsErrors(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register("bad", func(*config.Config) (plugin.Plugin, error) {
		return nil, errors.New("missing dsn")
	}))
	_, err := r.Build(config.New(map[string]string{"bad.enabled": "true"}))
	assert.ErrorContains(t, err, "plugin bad: missing dsn")
}

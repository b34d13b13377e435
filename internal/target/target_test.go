package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLabel(t *testing.T) {
	l, err := ParseLabel("cell1//pkg/sub:tgt", "root")
	require.NoError(t, err)
	assert.Equal(t, Label{Cell: "cell1", Package: "pkg/sub", Name: "tgt"}, l)
	assert.Equal(t, "cell1//pkg/sub:tgt", l.String())

	l, err = ParseLabel("//pkg:tgt", "root")
	require.NoError(t, err)
	assert.Equal(t, Label{Cell: "root", Package: "pkg", Name: "tgt"}, l)

	for _, bad := range []string{"", "pkg:tgt", "//pkg", "//pkg:"} {
		_, err := ParseLabel(bad, "root")
		assert.Error(t, err, "input %q", bad)
	}
}

func TestParsePattern(t *testing.T) {
	p, err := ParsePattern("//pkg:", "root")
	require.NoError(t, err)
	assert.True(t, p.All)
	assert.Equal(t, "root//pkg:", p.String())

	p, err = ParsePattern("//pkg:tgt", "root")
	require.NoError(t, err)
	assert.False(t, p.All)
	assert.Equal(t, "tgt", p.Name)

	_, err = ParsePattern("nope", "root")
	assert.Error(t, err)
}

type namedProvider string

func (p namedProvider) ProviderName() string { return string(p) }

func TestProviderCollection(t *testing.T) {
	c, err := NewProviderCollection([]Provider{namedProvider("RunInfo"), namedProvider("DefaultInfo")})
	require.NoError(t, err)
	assert.Equal(t, []string{"DefaultInfo", "RunInfo"}, c.ProviderNames())

	_, ok := c.Get("RunInfo")
	assert.True(t, ok)
	_, ok = c.Get("Absent")
	assert.False(t, ok)

	_, err = NewProviderCollection([]Provider{namedProvider("X"), namedProvider("X")})
	assert.Error(t, err)
}

func TestConfiguredLabelString(t *testing.T) {
	l := ConfiguredLabel{
		Label: Label{Cell: "root", Package: "a", Name: "x"},
		Cfg:   ConfigurationData{Name: "linux-release", Hash: "abc"},
	}
	assert.Equal(t, "root//a:x (linux-release#abc)", l.String())
}

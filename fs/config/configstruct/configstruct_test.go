package configstruct

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testOptions struct {
	Name     string        `config:"name"`
	ReadOnly bool          `config:"read_only"`
	MaxDepth int            `config:"max_depth" default:"0"`
	Sweep    time.Duration `config:"sweep"`
	Untagged string
}

func TestSetFillsTaggedFields(t *testing.T) {
	var o testOptions
	err := Set(map[string]string{
		"name":      "foo",
		"read_only": "true",
		"max_depth": "3",
		"sweep":     "1500ms",
		"ignored":   "unused",
	}, &o)
	require.NoError(t, err)
	assert.Equal(t, "foo", o.Name)
	assert.True(t, o.ReadOnly)
	assert.Equal(t, 3, o.MaxDepth)
	assert.Equal(t, 1500*time.Millisecond, o.Sweep)
	assert.Empty(t, o.Untagged)
}

func TestSetUsesDefaultTag(t *testing.T) {
	var o testOptions
	err := Set(map[string]string{}, &o)
	require.NoError(t, err)
	assert.Equal(t, 0, o.MaxDepth)
}

func TestSetRejectsNonPointer(t *testing.T) {
	err := Set(map[string]string{}, testOptions{})
	require.Error(t, err)
}

func TestSetInvalidValue(t *testing.T) {
	var o testOptions
	err := Set(map[string]string{"read_only": "not-a-bool"}, &o)
	require.Error(t, err)
}

func TestItems(t *testing.T) {
	o := testOptions{Name: "foo", ReadOnly: true}
	items, err := Items(&o)
	require.NoError(t, err)
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.Name)
	}
	assert.Contains(t, names, "name")
	assert.Contains(t, names, "read_only")
	assert.NotContains(t, names, "Untagged")
}

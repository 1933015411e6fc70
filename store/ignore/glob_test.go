package ignore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobToRegexp(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{``, `(^|/)$`, false},
		{`potato`, `(^|/)potato$`, false},
		{`/potato`, `^potato$`, false},
		{`potato?sausage`, `(^|/)potato[^/]sausage$`, false},
		{`potat[oa]`, `(^|/)potat[oa]$`, false},
		{`*.jpg`, `(^|/)[^/]*\.jpg$`, false},
		{`a{b,c,d}e`, `(^|/)a(b|c|d)e$`, false},
		{`potato**`, `(^|/)potato.*$`, false},
		{`potato**sausage`, `(^|/)potato.*sausage$`, false},
		{`***potato`, ``, true},
		{`ab]c`, ``, true},
		{`ab[c`, ``, true},
		{`*.{jpg,png,gif}`, `(^|/)[^/]*\.(jpg|png|gif)$`, false},
		{`a\*b`, `(^|/)a\*b$`, false},
	}
	for _, tt := range tests {
		gotRe, err := GlobToRegexp(tt.in, false)
		if tt.wantErr {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, gotRe.String(), tt.in)
	}
}

func TestDefaultPatternsMatchCommonIgnores(t *testing.T) {
	m := New(DefaultPatterns)
	assert.True(t, m.Match("node_modules/foo.js"))
	assert.True(t, m.Match("pkg/node_modules/foo.js"))
	assert.True(t, m.Match(".git/HEAD"))
	assert.False(t, m.Match("src/app.go"))
}

func TestMatcherSkipsMalformedPattern(t *testing.T) {
	m := New([]string{"valid/*", "ab[c"})
	assert.True(t, m.Match("valid/x"))
	assert.False(t, m.Match("ab[c"))
}

func TestNilMatcherMatchesNothing(t *testing.T) {
	var m *Matcher
	assert.False(t, m.Match("anything"))
}

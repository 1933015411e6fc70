package storepath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTrimsAndCollapses(t *testing.T) {
	assert.Equal(t, "a:b:c", Normalize(":a::b:c:"))
	assert.Equal(t, "a:b", Normalize("a/b"))
	assert.Equal(t, "a:b", Normalize(`a\b`))
	assert.Equal(t, "a:b", Normalize("a:b?x=1"))
	assert.Equal(t, "", Normalize(""))
	assert.Equal(t, "", Normalize(":::"))
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, k := range []string{"a:b:c", ":a/b\\c:", "x?y=z", ""} {
		once := Normalize(k)
		twice := Normalize(once)
		assert.Equal(t, once, twice, "not idempotent for %q", k)
	}
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "mnt:x", Join("mnt:", "x"))
	assert.Equal(t, "mnt:x", Join("mnt", "x"))
	assert.Equal(t, "x", Join("", "x"))
	assert.Equal(t, "mnt", Join("mnt:", ""))
}

func TestIsBase(t *testing.T) {
	assert.True(t, IsBase(""))
	assert.True(t, IsBase("a:"))
	assert.False(t, IsBase("a"))
}

func TestIsMeta(t *testing.T) {
	assert.True(t, IsMeta("config$"))
	assert.False(t, IsMeta("config"))
}

func TestIsValidTraversal(t *testing.T) {
	assert.False(t, IsValid(Normalize("../etc/passwd")))
	assert.True(t, IsValid(Normalize("s1:te..st..js")))
	assert.False(t, IsValid("a:.."))
}

func TestHasPrefixSegmentAligned(t *testing.T) {
	assert.True(t, HasPrefix("mnt:x", "mnt:"))
	assert.True(t, HasPrefix("mnt", "mnt"))
	assert.False(t, HasPrefix("mntx", "mnt"))
	assert.True(t, HasPrefix("anything", ""))
}

func TestRelative(t *testing.T) {
	assert.Equal(t, "x", Relative("mnt:x", "mnt:"))
	assert.Equal(t, "x:y", Relative("mnt:x:y", "mnt:"))
	assert.Equal(t, "x", Relative("x", ""))
}

func TestDepth(t *testing.T) {
	assert.Equal(t, 0, Depth("", ""))
	assert.Equal(t, 0, Depth("a", ""))
	assert.Equal(t, 2, Depth("a:b:c", ""))
	assert.Equal(t, 1, Depth("a:b:c", "a:"))
}

// Mirrors end-to-end scenario 3: keys a, a:b, a:b:c, a:b:c:d with
// maxDepth=1 yields exactly {a, a:b}.
func TestWithinDepth(t *testing.T) {
	assert.True(t, WithinDepth("a:b:c:d", "", 0))
	assert.True(t, WithinDepth("a", "", 1))
	assert.True(t, WithinDepth("a:b", "", 1))
	assert.False(t, WithinDepth("a:b:c", "", 1))
	assert.False(t, WithinDepth("a:b:c:d", "", 1))
}

func TestSlashesRoundTrip(t *testing.T) {
	assert.Equal(t, "a/b/c", ToSlashes("a:b:c"))
	assert.Equal(t, "a:b:c", FromSlashes("a/b/c"))
}

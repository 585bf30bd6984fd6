package plumbing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewReferenceFromStrings(t *testing.T) {
	r := NewReferenceFromStrings("refs/heads/v4", "6ecf0ef2c2dffb796033e5a02219af86ec6584e5")
	assert.Equal(t, HashReference, r.Type())
	assert.Equal(t, ReferenceName("refs/heads/v4"), r.Name())
	assert.Equal(t, NewHash("6ecf0ef2c2dffb796033e5a02219af86ec6584e5"), r.Hash())

	r = NewReferenceFromStrings("HEAD", "ref: refs/heads/v4")
	assert.Equal(t, SymbolicReference, r.Type())
	assert.Equal(t, ReferenceName("HEAD"), r.Name())
	assert.Equal(t, ReferenceName("refs/heads/v4"), r.Target())
}

func TestReferenceNameShort(t *testing.T) {
	for input, want := range map[ReferenceName]string{
		"refs/heads/main":          "main",
		"refs/tags/v1.0.0":         "v1.0.0",
		"refs/remotes/origin/main": "origin/main",
		"HEAD":                     "HEAD",
		"refs/notes/commits":       "notes/commits",
	} {
		assert.Equal(t, want, input.Short(), "short of %s", input)
	}
}

func TestReferenceNameIs(t *testing.T) {
	assert.True(t, ReferenceName("refs/heads/main").IsBranch())
	assert.True(t, ReferenceName("refs/tags/v1").IsTag())
	assert.True(t, ReferenceName("refs/remotes/origin/main").IsRemote())
	assert.False(t, ReferenceName("refs/tags/v1").IsBranch())
}

func TestReferenceNameValidate(t *testing.T) {
	valid := []ReferenceName{
		"HEAD",
		"refs/heads/main",
		"refs/tags/v1.0.0",
		"refs/remotes/origin/feature",
	}
	for _, name := range valid {
		assert.NoError(t, name.Validate(), "%s", name)
	}

	invalid := []ReferenceName{
		"",
		"@",
		"refs/heads/",
		"refs/heads/main.lock",
		"refs/heads/a..b",
		"refs/heads/.hidden",
		"refs/heads/with space",
		"refs/heads//double",
		"refs/heads/ca^ret",
	}
	for _, name := range invalid {
		assert.ErrorIs(t, name.Validate(), ErrInvalidReferenceName, "%s", name)
	}
}

func TestIsHash(t *testing.T) {
	assert.True(t, IsHash("6ecf0ef2c2dffb796033e5a02219af86ec6584e5"))
	assert.False(t, IsHash("6ecf0ef2"))
	assert.False(t, IsHash("zzzf0ef2c2dffb796033e5a02219af86ec6584e5"))
}

package storer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grit-vcs/grit/plumbing"
)

// memoryRefs is a minimal in-memory ReferenceStorer for resolution tests.
type memoryRefs map[plumbing.ReferenceName]*plumbing.Reference

func (m memoryRefs) SetReference(r *plumbing.Reference) error {
	m[r.Name()] = r
	return nil
}

func (m memoryRefs) Reference(n plumbing.ReferenceName) (*plumbing.Reference, error) {
	r, ok := m[n]
	if !ok {
		return nil, plumbing.ErrReferenceNotFound
	}

	return r, nil
}

func (m memoryRefs) IterReferences() ([]*plumbing.Reference, error) {
	var refs []*plumbing.Reference
	for _, r := range m {
		refs = append(refs, r)
	}

	return refs, nil
}

func (m memoryRefs) RemoveReference(n plumbing.ReferenceName) error {
	delete(m, n)
	return nil
}

func TestResolveReference(t *testing.T) {
	hash := plumbing.NewHash("6ecf0ef2c2dffb796033e5a02219af86ec6584e5")
	refs := memoryRefs{}
	require.NoError(t, refs.SetReference(plumbing.NewHashReference("refs/heads/main", hash)))
	require.NoError(t, refs.SetReference(plumbing.NewSymbolicReference("HEAD", "refs/heads/main")))

	r, err := ResolveReference(refs, "HEAD")
	require.NoError(t, err)
	assert.Equal(t, hash, r.Hash())

	// Idempotent: the same input resolves to the same hash again.
	r, err = ResolveReference(refs, "HEAD")
	require.NoError(t, err)
	assert.Equal(t, hash, r.Hash())
}

func TestResolveReferenceNotFound(t *testing.T) {
	refs := memoryRefs{}
	_, err := ResolveReference(refs, "refs/heads/missing")
	assert.ErrorIs(t, err, plumbing.ErrReferenceNotFound)
}

func TestResolveReferenceDanglingSymbolic(t *testing.T) {
	refs := memoryRefs{}
	require.NoError(t, refs.SetReference(plumbing.NewSymbolicReference("HEAD", "refs/heads/unborn")))

	_, err := ResolveReference(refs, "HEAD")
	assert.ErrorIs(t, err, plumbing.ErrReferenceNotFound)
}

func TestResolveReferenceMaxRecursion(t *testing.T) {
	refs := memoryRefs{}

	// A chain one link longer than the bound.
	for i := 0; i <= MaxResolveRecursion+1; i++ {
		name := plumbing.ReferenceName(fmt.Sprintf("refs/heads/l%d", i))
		target := plumbing.ReferenceName(fmt.Sprintf("refs/heads/l%d", i+1))
		require.NoError(t, refs.SetReference(plumbing.NewSymbolicReference(name, target)))
	}

	_, err := ResolveReference(refs, "refs/heads/l0")
	assert.ErrorIs(t, err, ErrMaxResolveRecursion)
}

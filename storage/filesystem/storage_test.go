package filesystem

import (
	"errors"
	"io"
	"os"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grit-vcs/grit/plumbing"
	"github.com/grit-vcs/grit/plumbing/cache"
	"github.com/grit-vcs/grit/plumbing/format/index"
	"github.com/grit-vcs/grit/utils/ioutil"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s := NewStorage(memfs.New(), cache.NewObjectLRUDefault())
	require.NoError(t, s.Init())
	return s
}

func writeBlob(t *testing.T, s *Storage, content string) plumbing.Hash {
	t.Helper()

	obj := s.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)

	w, err := obj.Writer()
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	h, err := s.SetEncodedObject(obj)
	require.NoError(t, err)
	return h
}

func TestLooseObjectRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	h := writeBlob(t, s, "hello grit\n")

	assert.Equal(t, plumbing.ComputeHash(plumbing.BlobObject, []byte("hello grit\n")), h)
	require.NoError(t, s.HasEncodedObject(h))

	obj, err := s.EncodedObject(plumbing.BlobObject, h)
	require.NoError(t, err)
	assert.Equal(t, plumbing.BlobObject, obj.Type())
	assert.Equal(t, int64(len("hello grit\n")), obj.Size())

	r, err := obj.Reader()
	require.NoError(t, err)
	defer ioutil.CheckClose(r, &err)

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello grit\n", string(data))
}

func TestEncodedObjectTypeMismatch(t *testing.T) {
	s := newTestStorage(t)
	h := writeBlob(t, s, "content")

	_, err := s.EncodedObject(plumbing.CommitObject, h)
	assert.ErrorIs(t, err, plumbing.ErrObjectTypeMismatch)

	// AnyObject never fails on type.
	obj, err := s.EncodedObject(plumbing.AnyObject, h)
	require.NoError(t, err)
	assert.Equal(t, plumbing.BlobObject, obj.Type())
}

func TestEncodedObjectNotFound(t *testing.T) {
	s := newTestStorage(t)

	missing := plumbing.NewHash("0123456789012345678901234567890123456789")
	_, err := s.EncodedObject(plumbing.AnyObject, missing)
	assert.ErrorIs(t, err, plumbing.ErrObjectNotFound)
	assert.ErrorIs(t, s.HasEncodedObject(missing), plumbing.ErrObjectNotFound)
}

func TestReferenceStorage(t *testing.T) {
	s := newTestStorage(t)

	hash := plumbing.NewHash("6ecf0ef2c2dffb796033e5a02219af86ec6584e5")
	require.NoError(t, s.SetReference(plumbing.NewHashReference("refs/heads/main", hash)))
	require.NoError(t, s.SetReference(plumbing.NewSymbolicReference("HEAD", "refs/heads/main")))

	ref, err := s.Reference("refs/heads/main")
	require.NoError(t, err)
	assert.Equal(t, hash, ref.Hash())

	head, err := s.Reference("HEAD")
	require.NoError(t, err)
	assert.Equal(t, plumbing.SymbolicReference, head.Type())
	assert.Equal(t, plumbing.ReferenceName("refs/heads/main"), head.Target())

	_, err = s.Reference("refs/heads/missing")
	assert.ErrorIs(t, err, plumbing.ErrReferenceNotFound)

	refs, err := s.IterReferences()
	require.NoError(t, err)
	assert.Len(t, refs, 2)

	require.NoError(t, s.RemoveReference("refs/heads/main"))
	_, err = s.Reference("refs/heads/main")
	assert.ErrorIs(t, err, plumbing.ErrReferenceNotFound)
}

func TestPackedRefs(t *testing.T) {
	fs := memfs.New()
	s := NewStorage(fs, cache.NewObjectLRUDefault())
	require.NoError(t, s.Init())

	f, err := fs.Create("packed-refs")
	require.NoError(t, err)
	_, err = f.Write([]byte(
		"# pack-refs with: peeled fully-peeled sorted \n" +
			"6ecf0ef2c2dffb796033e5a02219af86ec6584e5 refs/heads/packed\n" +
			"e8d3ffab552895c19b9fcf7aa264d277cde33881 refs/tags/v1\n" +
			"^6ecf0ef2c2dffb796033e5a02219af86ec6584e5\n"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	ref, err := s.Reference("refs/heads/packed")
	require.NoError(t, err)
	assert.Equal(t, plumbing.NewHash("6ecf0ef2c2dffb796033e5a02219af86ec6584e5"), ref.Hash())

	// A loose ref shadows the packed one.
	loose := plumbing.NewHash("e8d3ffab552895c19b9fcf7aa264d277cde33881")
	require.NoError(t, s.SetReference(plumbing.NewHashReference("refs/heads/packed", loose)))

	ref, err = s.Reference("refs/heads/packed")
	require.NoError(t, err)
	assert.Equal(t, loose, ref.Hash())

	// Removal drops both the loose file and the packed table row.
	require.NoError(t, s.RemoveReference("refs/heads/packed"))
	_, err = s.Reference("refs/heads/packed")
	assert.ErrorIs(t, err, plumbing.ErrReferenceNotFound)
}

func TestIndexUpdate(t *testing.T) {
	fs := memfs.New()
	s := NewStorage(fs, cache.NewObjectLRUDefault())
	require.NoError(t, s.Init())

	// A repository with no index yields an empty one.
	idx, err := s.Index()
	require.NoError(t, err)
	assert.Empty(t, idx.Entries)

	hash := plumbing.NewHash("6ecf0ef2c2dffb796033e5a02219af86ec6584e5")
	err = s.Update(func(idx *index.Index) error {
		e := idx.Add("foo")
		e.Hash = hash
		return nil
	})
	require.NoError(t, err)

	// The lock is released and the mutation persisted.
	_, err = fs.Stat("index.lock")
	assert.True(t, os.IsNotExist(err))

	idx, err = s.Index()
	require.NoError(t, err)
	require.Len(t, idx.Entries, 1)
	assert.Equal(t, "foo", idx.Entries[0].Name)
	assert.Equal(t, hash, idx.Entries[0].Hash)
}

func TestIndexUpdateAborts(t *testing.T) {
	fs := memfs.New()
	s := NewStorage(fs, cache.NewObjectLRUDefault())
	require.NoError(t, s.Init())

	boom := errors.New("boom")
	err := s.Update(func(idx *index.Index) error {
		idx.Add("foo")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// Nothing was written and the lock is gone.
	idx, err := s.Index()
	require.NoError(t, err)
	assert.Empty(t, idx.Entries)

	_, err = fs.Stat("index.lock")
	assert.Error(t, err)

	// A later update still succeeds.
	require.NoError(t, s.Update(func(idx *index.Index) error { return nil }))
}

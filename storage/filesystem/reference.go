package filesystem

import (
	"github.com/grit-vcs/grit/plumbing"
	"github.com/grit-vcs/grit/storage/filesystem/dotgit"
)

// ReferenceStorage reads and writes references through the repository
// directory, loose refs taking precedence over the packed-refs table.
type ReferenceStorage struct {
	dir *dotgit.DotGit
}

func (r *ReferenceStorage) SetReference(ref *plumbing.Reference) error {
	return r.dir.SetRef(ref)
}

func (r *ReferenceStorage) Reference(n plumbing.ReferenceName) (*plumbing.Reference, error) {
	return r.dir.Ref(n)
}

func (r *ReferenceStorage) IterReferences() ([]*plumbing.Reference, error) {
	return r.dir.Refs()
}

func (r *ReferenceStorage) RemoveReference(n plumbing.ReferenceName) error {
	return r.dir.RemoveRef(n)
}

// Package filesystem implements storage backed by a .git directory on any
// billy filesystem.
package filesystem

import (
	"github.com/go-git/go-billy/v5"

	"github.com/grit-vcs/grit/plumbing/cache"
	"github.com/grit-vcs/grit/storage/filesystem/dotgit"
)

// Storage is an implementation of the storer interfaces for local
// repositories, backed by a billy filesystem rooted at the .git directory.
type Storage struct {
	fs  billy.Filesystem
	dir *dotgit.DotGit

	ObjectStorage
	ReferenceStorage
	IndexStorage
	ConfigStorage
}

// NewStorage returns a new Storage backed by a given .git directory. All
// read operations are cached in the given cache, if any.
func NewStorage(fs billy.Filesystem, c cache.Object) *Storage {
	if c == nil {
		c = cache.NewObjectLRUDefault()
	}

	dir := dotgit.New(fs)
	return &Storage{
		fs:  fs,
		dir: dir,

		ObjectStorage:    *NewObjectStorage(dir, c),
		ReferenceStorage: ReferenceStorage{dir: dir},
		IndexStorage:     IndexStorage{dir: dir},
		ConfigStorage:    ConfigStorage{dir: dir},
	}
}

// Filesystem returns the underlying filesystem of the .git directory.
func (s *Storage) Filesystem() billy.Filesystem {
	return s.fs
}

// Init creates the .git directory scaffolding.
func (s *Storage) Init() error {
	return s.dir.Initialize()
}

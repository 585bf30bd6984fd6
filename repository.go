// Package grit implements the checkout engine of a git-compatible version
// control system: content-addressed object storage, ref resolution and safe
// reconciliation of the working directory, the staging index and two commit
// trees during a branch switch.
package grit

import (
	"errors"
	"fmt"

	"github.com/go-git/go-billy/v5"

	"github.com/grit-vcs/grit/config"
	"github.com/grit-vcs/grit/plumbing"
	"github.com/grit-vcs/grit/plumbing/cache"
	"github.com/grit-vcs/grit/plumbing/object"
	"github.com/grit-vcs/grit/plumbing/storer"
	"github.com/grit-vcs/grit/storage/filesystem"
)

var (
	// ErrRepositoryNotExists is returned by Open when the .git directory is
	// missing.
	ErrRepositoryNotExists = errors.New("repository does not exist")
	// ErrIsBareRepository is returned by Worktree on a repository without a
	// working directory.
	ErrIsBareRepository = errors.New("worktree not available in a bare repository")
	// ErrDetachedHEAD is returned by CurrentBranch when HEAD points directly
	// at a commit instead of a branch.
	ErrDetachedHEAD = errors.New("HEAD is detached")
	// ErrCommitNotFetched is returned when the object a checkout target
	// resolves to is absent from storage, which usually means the commit was
	// never fetched.
	ErrCommitNotFetched = errors.New("commit not fetched")
)

// Repository is a local git repository: a storage backend plus an optional
// working tree.
type Repository struct {
	Storer *filesystem.Storage

	wt billy.Filesystem
}

// Init creates an empty repository, storing its metadata in the dotgit
// filesystem and using wt as working tree.
func Init(dotgit, wt billy.Filesystem) (*Repository, error) {
	s := filesystem.NewStorage(dotgit, cache.NewObjectLRUDefault())
	if err := s.Init(); err != nil {
		return nil, err
	}

	r := &Repository{Storer: s, wt: wt}

	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.Master)
	if err := s.SetReference(head); err != nil {
		return nil, err
	}

	return r, nil
}

// Open opens an existing repository stored in the dotgit filesystem, using
// wt as working tree.
func Open(dotgit, wt billy.Filesystem) (*Repository, error) {
	s := filesystem.NewStorage(dotgit, cache.NewObjectLRUDefault())
	if _, err := s.Reference(plumbing.HEAD); err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return nil, ErrRepositoryNotExists
		}

		return nil, err
	}

	return &Repository{Storer: s, wt: wt}, nil
}

// Config returns the repository configuration.
func (r *Repository) Config() (*config.Config, error) {
	return r.Storer.Config()
}

// SetConfig validates and persists the repository configuration.
func (r *Repository) SetConfig(cfg *config.Config) error {
	return r.Storer.SetConfig(cfg)
}

// Head returns the reference where HEAD is pointing to, fully resolved to a
// hash reference.
func (r *Repository) Head() (*plumbing.Reference, error) {
	return storer.ResolveReference(r.Storer, plumbing.HEAD)
}

// Reference returns the reference with the given name. When resolved is
// true, symbolic references are followed to a hash reference.
func (r *Repository) Reference(name plumbing.ReferenceName, resolved bool) (*plumbing.Reference, error) {
	if resolved {
		return storer.ResolveReference(r.Storer, name)
	}

	return r.Storer.Reference(name)
}

// CurrentBranch returns the name of the branch HEAD points to, the full
// reference name when full is true and the abbreviated form otherwise. On a
// detached HEAD the returned error unwraps to ErrDetachedHEAD.
func (r *Repository) CurrentBranch(full bool) (string, error) {
	name, err := r.currentBranch(full)
	if err != nil {
		return "", fmt.Errorf("current-branch: %w", err)
	}

	return name, nil
}

func (r *Repository) currentBranch(full bool) (string, error) {
	head, err := r.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", err
	}

	if head.Type() != plumbing.SymbolicReference {
		return "", ErrDetachedHEAD
	}

	if full {
		return head.Target().String(), nil
	}

	return head.Target().Short(), nil
}

// Worktree returns the working tree of the repository.
func (r *Repository) Worktree() (*Worktree, error) {
	if r.wt == nil {
		return nil, ErrIsBareRepository
	}

	return &Worktree{r: r, Filesystem: r.wt}, nil
}

// ExpandReference turns a short reference name into its full name, trying
// the same fixed prefix precedence git uses for rev-parse. It fails with
// plumbing.ErrReferenceNotFound when no expansion names an existing
// reference.
func (r *Repository) ExpandReference(name string) (*plumbing.Reference, error) {
	for _, rule := range plumbing.RefRevParseRules {
		n := plumbing.ReferenceName(fmt.Sprintf(rule, name))

		ref, err := r.Storer.Reference(n)
		if err == nil {
			return ref, nil
		}

		if err != plumbing.ErrReferenceNotFound {
			return nil, err
		}
	}

	return nil, plumbing.ErrReferenceNotFound
}

// resolveToCommit turns a hash into the commit it names, peeling annotated
// tags along the way. A missing object is reported as ErrCommitNotFetched,
// since the hash was explicitly requested as a checkout target.
func (r *Repository) resolveToCommit(h plumbing.Hash) (*object.Commit, error) {
	obj, err := object.GetObject(r.Storer, h)
	if err != nil {
		if err == plumbing.ErrObjectNotFound {
			return nil, fmt.Errorf("%w: %s", ErrCommitNotFetched, h)
		}

		return nil, err
	}

	for {
		switch o := obj.(type) {
		case *object.Commit:
			return o, nil
		case *object.Tag:
			obj, err = o.Object()
			if err != nil {
				return nil, err
			}
		default:
			return nil, plumbing.ErrObjectTypeMismatch
		}
	}
}

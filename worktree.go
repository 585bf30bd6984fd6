package grit

import (
	"errors"
	"fmt"

	"github.com/go-git/go-billy/v5"

	"github.com/grit-vcs/grit/config"
	"github.com/grit-vcs/grit/plumbing"
	"github.com/grit-vcs/grit/plumbing/format/index"
	"github.com/grit-vcs/grit/plumbing/object"
	"github.com/grit-vcs/grit/plumbing/storer"
)

const gitDirName = ".git"

// Worktree is the working tree of a repository: the real files on disk plus
// the staging index describing what they are expected to contain.
type Worktree struct {
	// Filesystem is the filesystem the working tree lives in.
	Filesystem billy.Filesystem

	r *Repository
}

// Checkout switches the working tree to the target named in opts, writing
// and deleting files so the tree matches it and rebuilding the staging
// index. When local changes would be lost the whole operation is refused
// before any mutation and the returned error unwraps to a
// *CheckoutConflictsError listing every conflicting path.
func (w *Worktree) Checkout(opts *CheckoutOptions) error {
	if err := w.checkout(opts); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}

	return nil
}

func (w *Worktree) checkout(opts *CheckoutOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	target, head, err := w.resolveTarget(opts)
	if err != nil {
		return err
	}

	commit, err := w.r.resolveToCommit(target)
	if err != nil {
		return err
	}

	newTree, err := commit.Tree()
	if err != nil {
		return err
	}

	oldTree, err := w.headTree()
	if err != nil {
		return err
	}

	idx, err := w.r.Storer.Index()
	if err != nil {
		return err
	}

	ops, conflicts, err := w.reconcile(oldTree, newTree, idx)
	if err != nil {
		return err
	}

	if len(conflicts) > 0 {
		return &CheckoutConflictsError{Conflicts: conflicts}
	}

	return w.r.Storer.Update(func(idx *index.Index) error {
		if err := w.applyOperations(ops); err != nil {
			return err
		}

		if err := w.resetIndex(idx, newTree); err != nil {
			return err
		}

		return w.r.Storer.SetReference(head)
	})
}

// resolveTarget turns the checkout target into the hash to materialize and
// the reference HEAD should be rewritten to afterwards: a symbolic
// reference for branches, a detached hash reference for everything else.
func (w *Worktree) resolveTarget(opts *CheckoutOptions) (plumbing.Hash, *plumbing.Reference, error) {
	if h := opts.Hash(); !h.IsZero() {
		return h, plumbing.NewHashReference(plumbing.HEAD, h), nil
	}

	ref, err := w.r.ExpandReference(opts.Branch)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		ref, err = w.trackRemoteBranch(opts)
	}

	if err != nil {
		return plumbing.ZeroHash, nil, err
	}

	resolved, err := storer.ResolveReference(w.r.Storer, ref.Name())
	if err != nil {
		return plumbing.ZeroHash, nil, err
	}

	var head *plumbing.Reference
	if ref.Name().IsBranch() {
		head = plumbing.NewSymbolicReference(plumbing.HEAD, ref.Name())
	} else {
		head = plumbing.NewHashReference(plumbing.HEAD, resolved.Hash())
	}

	return resolved.Hash(), head, nil
}

// trackRemoteBranch creates a local branch for a remote-tracking one: when
// "feature" does not exist but "refs/remotes/origin/feature" does, a
// "refs/heads/feature" is created at the same hash and the branch is
// configured to track the remote.
func (w *Worktree) trackRemoteBranch(opts *CheckoutOptions) (*plumbing.Reference, error) {
	remote := plumbing.NewRemoteReferenceName(opts.Remote, opts.Branch)
	resolved, err := storer.ResolveReference(w.r.Storer, remote)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, fmt.Errorf("%w: %s", plumbing.ErrReferenceNotFound, opts.Branch)
		}

		return nil, err
	}

	branch := plumbing.NewHashReference(
		plumbing.NewBranchReferenceName(opts.Branch), resolved.Hash())
	if err := w.r.Storer.SetReference(branch); err != nil {
		return nil, err
	}

	cfg, err := w.r.Config()
	if err != nil {
		return nil, err
	}

	cfg.Branches[opts.Branch] = &config.Branch{
		Name:   opts.Branch,
		Remote: opts.Remote,
		Merge:  branch.Name(),
	}

	if err := w.r.SetConfig(cfg); err != nil {
		return nil, err
	}

	return branch, nil
}

// headTree returns the tree of the commit HEAD points to, or nil on an
// unborn HEAD.
func (w *Worktree) headTree() (*object.Tree, error) {
	head, err := w.r.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}

		return nil, err
	}

	commit, err := object.GetCommit(w.r.Storer, head.Hash())
	if err != nil {
		return nil, err
	}

	return commit.Tree()
}

package grit

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/grit-vcs/grit/plumbing"
	"github.com/grit-vcs/grit/plumbing/filemode"
	"github.com/grit-vcs/grit/plumbing/format/index"
	"github.com/grit-vcs/grit/plumbing/object"
	"github.com/grit-vcs/grit/utils/ioutil"
)

// Conflict is a path where local and incoming changes cannot be reconciled
// automatically. Conflicts are collected, not thrown: a checkout gathers
// every conflicting path before refusing to run.
type Conflict struct {
	Path   string
	Reason string
}

// CheckoutConflictsError is returned by Worktree.Checkout when one or more
// paths conflict. No file or index mutation has happened when it is
// returned.
type CheckoutConflictsError struct {
	Conflicts []Conflict
}

func (e *CheckoutConflictsError) Error() string {
	paths := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		paths[i] = c.Path
	}

	return fmt.Sprintf("local changes to %s would be overwritten", strings.Join(paths, ", "))
}

const (
	reasonLocalVsDelete = "local changes would be lost by upstream deletion"
	reasonUntrackedAdd  = "untracked file collides with incoming add"
	reasonEditVsEdit    = "local edit conflicts with upstream edit"
)

type checkoutOp int

const (
	opWrite checkoutOp = iota
	opDelete
)

// checkoutOperation is a queued mutation intent. Nothing is touched until
// every path has been classified without conflict.
type checkoutOperation struct {
	op   checkoutOp
	path string
	hash plumbing.Hash
	mode filemode.FileMode
}

// reconcile walks workdir, index, old tree and new tree in lockstep and
// classifies every path into a no-op, a queued write or delete, or a
// conflict. It performs no mutation.
func (w *Worktree) reconcile(oldTree, newTree *object.Tree, idx *index.Index) ([]checkoutOperation, []Conflict, error) {
	workdir, err := newWorkdirSource(w.Filesystem)
	if err != nil {
		return nil, nil, err
	}

	sources := []walkSource{
		workdir,
		newIndexSource(idx),
		newTreeSource(oldTree),
		newTreeSource(newTree),
	}

	var ops []checkoutOperation
	var conflicts []Conflict
	err = syncWalk(sources, func(path string, entries []*walkEntry) error {
		op, conflict, err := classify(path, entries[0], entries[1], entries[2], entries[3])
		if err != nil {
			return err
		}

		if conflict != nil {
			conflicts = append(conflicts, *conflict)
			return nil
		}

		if op != nil {
			ops = append(ops, *op)
		}

		return nil
	})

	if err != nil {
		return nil, nil, err
	}

	return ops, conflicts, nil
}

// classify decides the fate of a single path from the old tree (head), the
// new tree (next) and the working directory view of it. A path never moves
// silently between classifications: divergence is always a conflict.
func classify(path string, wd, staged, head, next *walkEntry) (*checkoutOperation, *Conflict, error) {
	if isSubmodule(wd, head, next) {
		log.Printf("checkout: submodule %s not implemented, skipping", path)
		return nil, nil, nil
	}

	switch {
	case head == nil && next == nil:
		// Untracked on both sides, leave it alone.
		return nil, nil, nil

	case head != nil && next == nil:
		if wd == nil {
			// Already deleted locally.
			return nil, nil, nil
		}

		h, err := workdirHash(wd, staged)
		if err != nil {
			return nil, nil, err
		}

		if h == head.hash {
			return &checkoutOperation{op: opDelete, path: path}, nil, nil
		}

		return nil, &Conflict{Path: path, Reason: reasonLocalVsDelete}, nil

	case head == nil && next != nil:
		if wd == nil {
			return writeOp(path, next), nil, nil
		}

		h, err := workdirHash(wd, staged)
		if err != nil {
			return nil, nil, err
		}

		if h == next.hash {
			// Already matches the incoming content.
			return nil, nil, nil
		}

		return nil, &Conflict{Path: path, Reason: reasonUntrackedAdd}, nil

	default:
		if head.hash == next.hash && head.mode == next.mode {
			return nil, nil, nil
		}

		if wd == nil {
			// Locally missing, restorable without data loss.
			return writeOp(path, next), nil, nil
		}

		h, err := workdirHash(wd, staged)
		if err != nil {
			return nil, nil, err
		}

		switch h {
		case next.hash:
			// Comparison is by content hash alone: when only the mode
			// changed between head and next, the file is left as is.
			// git would chmod here.
			return nil, nil, nil
		case head.hash:
			return writeOp(path, next), nil, nil
		default:
			return nil, &Conflict{Path: path, Reason: reasonEditVsEdit}, nil
		}
	}
}

func writeOp(path string, next *walkEntry) *checkoutOperation {
	return &checkoutOperation{op: opWrite, path: path, hash: next.hash, mode: next.mode}
}

func isSubmodule(entries ...*walkEntry) bool {
	for _, e := range entries {
		if e != nil && e.mode == filemode.Submodule {
			return true
		}
	}

	return false
}

// workdirHash returns the content hash of a working directory entry. When
// the staging index holds an entry whose cached stat still matches, its
// recorded hash stands in and the file is not read at all.
func workdirHash(wd, staged *walkEntry) (plumbing.Hash, error) {
	if staged != nil && staged.idx != nil && wd.stat != nil &&
		staged.idx.Size == uint32(wd.stat.Size()) &&
		staged.idx.ModifiedAt.Equal(wd.stat.ModTime()) {
		return staged.idx.Hash, nil
	}

	return wd.Hash()
}

// applyOperations mutates the working directory: all deletes first, then
// all writes, so a path freed by a delete can be reused by a write in the
// same run. There is no rollback: a mid-apply failure leaves the tree
// partially switched.
func (w *Worktree) applyOperations(ops []checkoutOperation) error {
	for _, op := range ops {
		if op.op != opDelete {
			continue
		}

		if err := w.Filesystem.Remove(op.path); err != nil && !os.IsNotExist(err) {
			return err
		}

		w.pruneEmptyParents(op.path)
	}

	for _, op := range ops {
		if op.op != opWrite {
			continue
		}

		if err := w.checkoutFile(op.path, op.hash, op.mode); err != nil {
			return err
		}
	}

	return nil
}

// pruneEmptyParents removes the directories a deletion emptied, walking up
// until a non-empty parent or the tree root.
func (w *Worktree) pruneEmptyParents(path string) {
	for {
		i := strings.LastIndexByte(path, '/')
		if i < 0 {
			return
		}

		path = path[:i]
		infos, err := w.Filesystem.ReadDir(path)
		if err != nil || len(infos) > 0 {
			return
		}

		if err := w.Filesystem.Remove(path); err != nil {
			return
		}
	}
}

// checkoutFile materializes one blob in the working directory, translating
// the git mode into permissions or a symlink.
func (w *Worktree) checkoutFile(path string, hash plumbing.Hash, mode filemode.FileMode) (err error) {
	if mode == filemode.Submodule {
		log.Printf("checkout: submodule %s not implemented, skipping", path)
		return nil
	}

	blob, err := object.GetBlob(w.r.Storer, hash)
	if err != nil {
		return err
	}

	if dir := parentDir(path); dir != "" {
		if err := w.Filesystem.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	if mode == filemode.Symlink {
		target, err := blob.Bytes()
		if err != nil {
			return err
		}

		if err := w.Filesystem.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}

		return w.Filesystem.Symlink(string(target), path)
	}

	perm, err := mode.ToOSFileMode()
	if err != nil {
		return fmt.Errorf("unreachable file mode %s for %s: %w", mode, path, err)
	}

	f, err := w.Filesystem.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer ioutil.CheckClose(f, &err)

	r, err := blob.Reader()
	if err != nil {
		return err
	}
	defer ioutil.CheckClose(r, &err)

	_, err = io.Copy(f, r)
	return err
}

// resetIndex rebuilds the staging index from scratch out of a second
// synchronized walk over the new tree and the post-apply working
// directory, materializing any tracked file still missing and recording
// fresh stat data so later status checks can trust the cached hashes.
func (w *Worktree) resetIndex(idx *index.Index, newTree *object.Tree) error {
	idx.Version = 2
	idx.Entries = nil

	workdir, err := newWorkdirSource(w.Filesystem)
	if err != nil {
		return err
	}

	sources := []walkSource{workdir, newTreeSource(newTree)}
	return syncWalk(sources, func(path string, entries []*walkEntry) error {
		wd, tree := entries[0], entries[1]
		if tree == nil || tree.mode == filemode.Submodule {
			return nil
		}

		if wd == nil {
			if err := w.checkoutFile(path, tree.hash, tree.mode); err != nil {
				return err
			}
		}

		fi, err := w.Filesystem.Lstat(path)
		if err != nil {
			return err
		}

		e := idx.Add(path)
		e.Hash = tree.hash
		e.Mode = tree.mode
		e.CreatedAt = fi.ModTime()
		e.ModifiedAt = fi.ModTime()
		e.Size = uint32(fi.Size())
		return nil
	})
}

func parentDir(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return ""
	}

	return path[:i]
}

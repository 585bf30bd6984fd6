package grit

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/suite"

	"github.com/grit-vcs/grit/plumbing"
	"github.com/grit-vcs/grit/plumbing/filemode"
	"github.com/grit-vcs/grit/plumbing/object"
)

type WorktreeSuite struct {
	suite.Suite

	repo *Repository
	wt   billy.Filesystem
}

func TestWorktreeSuite(t *testing.T) {
	suite.Run(t, new(WorktreeSuite))
}

func (s *WorktreeSuite) SetupTest() {
	s.wt = memfs.New()

	var err error
	s.repo, err = Init(memfs.New(), s.wt)
	s.Require().NoError(err)
}

func (s *WorktreeSuite) blob(content string) plumbing.Hash {
	obj := s.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)

	w, err := obj.Writer()
	s.Require().NoError(err)
	_, err = w.Write([]byte(content))
	s.Require().NoError(err)
	s.Require().NoError(w.Close())

	h, err := s.repo.Storer.SetEncodedObject(obj)
	s.Require().NoError(err)
	return h
}

func (s *WorktreeSuite) tree(entries ...object.TreeEntry) plumbing.Hash {
	t := &object.Tree{Entries: entries}
	t.SortEntries()

	obj := s.repo.Storer.NewEncodedObject()
	s.Require().NoError(t.Encode(obj))

	h, err := s.repo.Storer.SetEncodedObject(obj)
	s.Require().NoError(err)
	return h
}

func (s *WorktreeSuite) commit(tree plumbing.Hash, parents ...plumbing.Hash) plumbing.Hash {
	sig := object.Signature{
		Name:  "Rick Sanchez",
		Email: "rick@example.com",
		When:  time.Unix(1609459200, 0).In(time.UTC),
	}

	c := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      "snapshot",
		TreeHash:     tree,
		ParentHashes: parents,
	}

	obj := s.repo.Storer.NewEncodedObject()
	s.Require().NoError(c.Encode(obj))

	h, err := s.repo.Storer.SetEncodedObject(obj)
	s.Require().NoError(err)
	return h
}

func (s *WorktreeSuite) branch(name string, commit plumbing.Hash) {
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), commit)
	s.Require().NoError(s.repo.Storer.SetReference(ref))
}

func (s *WorktreeSuite) worktree() *Worktree {
	w, err := s.repo.Worktree()
	s.Require().NoError(err)
	return w
}

func (s *WorktreeSuite) readFile(path string) string {
	f, err := s.wt.Open(path)
	s.Require().NoError(err)
	defer f.Close()

	b, err := io.ReadAll(f)
	s.Require().NoError(err)
	return string(b)
}

func (s *WorktreeSuite) writeFile(path, content string) {
	f, err := s.wt.Create(path)
	s.Require().NoError(err)
	_, err = f.Write([]byte(content))
	s.Require().NoError(err)
	s.Require().NoError(f.Close())
}

// twoBranches builds master{a.txt, b.txt, dir/c.txt} and
// feature{a.txt, dir/c.txt', d.txt} and returns the feature commit.
func (s *WorktreeSuite) twoBranches() plumbing.Hash {
	a := s.blob("alpha\n")
	b := s.blob("beta\n")
	c1 := s.blob("gamma v1\n")
	c2 := s.blob("gamma v2\n")
	d := s.blob("delta\n")

	masterDir := s.tree(object.TreeEntry{Name: "c.txt", Mode: filemode.Regular, Hash: c1})
	masterTree := s.tree(
		object.TreeEntry{Name: "a.txt", Mode: filemode.Regular, Hash: a},
		object.TreeEntry{Name: "b.txt", Mode: filemode.Regular, Hash: b},
		object.TreeEntry{Name: "dir", Mode: filemode.Dir, Hash: masterDir},
	)
	master := s.commit(masterTree)

	featureDir := s.tree(object.TreeEntry{Name: "c.txt", Mode: filemode.Regular, Hash: c2})
	featureTree := s.tree(
		object.TreeEntry{Name: "a.txt", Mode: filemode.Regular, Hash: a},
		object.TreeEntry{Name: "d.txt", Mode: filemode.Regular, Hash: d},
		object.TreeEntry{Name: "dir", Mode: filemode.Dir, Hash: featureDir},
	)
	feature := s.commit(featureTree, master)

	s.branch("master", master)
	s.branch("feature", feature)
	return feature
}

func (s *WorktreeSuite) TestCheckoutMaterializesTree() {
	s.twoBranches()
	w := s.worktree()

	s.Require().NoError(w.Checkout(&CheckoutOptions{Branch: "master"}))

	s.Equal("alpha\n", s.readFile("a.txt"))
	s.Equal("beta\n", s.readFile("b.txt"))
	s.Equal("gamma v1\n", s.readFile("dir/c.txt"))

	idx, err := s.repo.Storer.Index()
	s.Require().NoError(err)
	s.Len(idx.Entries, 3)
}

func (s *WorktreeSuite) TestCheckoutIdenticalIsNoop() {
	s.twoBranches()
	w := s.worktree()

	s.Require().NoError(w.Checkout(&CheckoutOptions{Branch: "master"}))
	s.Require().NoError(w.Checkout(&CheckoutOptions{Branch: "master"}))

	s.Equal("alpha\n", s.readFile("a.txt"))
	s.Equal("beta\n", s.readFile("b.txt"))
}

func (s *WorktreeSuite) TestCheckoutSwitchWritesAndDeletes() {
	s.twoBranches()
	w := s.worktree()

	s.Require().NoError(w.Checkout(&CheckoutOptions{Branch: "master"}))
	s.Require().NoError(w.Checkout(&CheckoutOptions{Branch: "feature"}))

	s.Equal("alpha\n", s.readFile("a.txt"))
	s.Equal("gamma v2\n", s.readFile("dir/c.txt"))
	s.Equal("delta\n", s.readFile("d.txt"))

	_, err := s.wt.Lstat("b.txt")
	s.Error(err)

	name, err := s.repo.CurrentBranch(true)
	s.Require().NoError(err)
	s.Equal("refs/heads/feature", name)
}

func (s *WorktreeSuite) TestCheckoutHashesAgreeAfterSuccess() {
	feature := s.twoBranches()
	w := s.worktree()

	s.Require().NoError(w.Checkout(&CheckoutOptions{Branch: "master"}))
	s.Require().NoError(w.Checkout(&CheckoutOptions{Branch: "feature"}))

	commit, err := object.GetCommit(s.repo.Storer, feature)
	s.Require().NoError(err)
	tree, err := commit.Tree()
	s.Require().NoError(err)

	idx, err := s.repo.Storer.Index()
	s.Require().NoError(err)

	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()
	for {
		name, entry, err := walker.Next()
		if err == io.EOF {
			break
		}
		s.Require().NoError(err)

		if entry.Mode == filemode.Dir {
			continue
		}

		content := s.readFile(name)
		s.Equal(entry.Hash, plumbing.ComputeHash(plumbing.BlobObject, []byte(content)), name)

		ie, err := idx.Entry(name)
		s.Require().NoError(err)
		s.Equal(entry.Hash, ie.Hash, name)
	}
}

func (s *WorktreeSuite) TestCheckoutConflictLocalEdit() {
	s.twoBranches()
	w := s.worktree()

	s.Require().NoError(w.Checkout(&CheckoutOptions{Branch: "master"}))
	s.writeFile("dir/c.txt", "local edit\n")

	err := w.Checkout(&CheckoutOptions{Branch: "feature"})
	s.Require().Error(err)

	var conflicts *CheckoutConflictsError
	s.Require().True(errors.As(err, &conflicts))
	s.Require().Len(conflicts.Conflicts, 1)
	s.Equal("dir/c.txt", conflicts.Conflicts[0].Path)
	s.Equal(reasonEditVsEdit, conflicts.Conflicts[0].Reason)

	// All-or-nothing: no other queued mutation ran either.
	s.Equal("local edit\n", s.readFile("dir/c.txt"))
	s.Equal("beta\n", s.readFile("b.txt"))
	_, lerr := s.wt.Lstat("d.txt")
	s.Error(lerr)

	name, err := s.repo.CurrentBranch(true)
	s.Require().NoError(err)
	s.Equal("refs/heads/master", name)
}

func (s *WorktreeSuite) TestCheckoutConflictModifiedThenDeleted() {
	s.twoBranches()
	w := s.worktree()

	s.Require().NoError(w.Checkout(&CheckoutOptions{Branch: "master"}))
	s.writeFile("b.txt", "keep me\n")

	err := w.Checkout(&CheckoutOptions{Branch: "feature"})
	s.Require().Error(err)

	var conflicts *CheckoutConflictsError
	s.Require().True(errors.As(err, &conflicts))
	s.Require().Len(conflicts.Conflicts, 1)
	s.Equal("b.txt", conflicts.Conflicts[0].Path)
	s.Equal(reasonLocalVsDelete, conflicts.Conflicts[0].Reason)
	s.Equal("keep me\n", s.readFile("b.txt"))
}

func (s *WorktreeSuite) TestCheckoutConflictUntrackedCollision() {
	s.twoBranches()
	w := s.worktree()

	s.Require().NoError(w.Checkout(&CheckoutOptions{Branch: "master"}))
	s.writeFile("d.txt", "already here\n")

	err := w.Checkout(&CheckoutOptions{Branch: "feature"})
	s.Require().Error(err)

	var conflicts *CheckoutConflictsError
	s.Require().True(errors.As(err, &conflicts))
	s.Require().Len(conflicts.Conflicts, 1)
	s.Equal("d.txt", conflicts.Conflicts[0].Path)
	s.Equal(reasonUntrackedAdd, conflicts.Conflicts[0].Reason)
}

func (s *WorktreeSuite) TestCheckoutUntrackedIdenticalContent() {
	s.twoBranches()
	w := s.worktree()

	s.Require().NoError(w.Checkout(&CheckoutOptions{Branch: "master"}))

	// The incoming add already matches what is on disk.
	s.writeFile("d.txt", "delta\n")
	s.Require().NoError(w.Checkout(&CheckoutOptions{Branch: "feature"}))
	s.Equal("delta\n", s.readFile("d.txt"))
}

func (s *WorktreeSuite) TestCheckoutGathersAllConflicts() {
	s.twoBranches()
	w := s.worktree()

	s.Require().NoError(w.Checkout(&CheckoutOptions{Branch: "master"}))
	s.writeFile("b.txt", "local b\n")
	s.writeFile("dir/c.txt", "local c\n")

	err := w.Checkout(&CheckoutOptions{Branch: "feature"})
	s.Require().Error(err)

	var conflicts *CheckoutConflictsError
	s.Require().True(errors.As(err, &conflicts))
	s.Len(conflicts.Conflicts, 2)
}

func (s *WorktreeSuite) TestCheckoutTracksRemoteBranch() {
	feature := s.twoBranches()
	s.Require().NoError(s.repo.Storer.RemoveReference("refs/heads/feature"))

	remote := plumbing.NewHashReference(
		plumbing.NewRemoteReferenceName("origin", "feature"), feature)
	s.Require().NoError(s.repo.Storer.SetReference(remote))

	w := s.worktree()
	s.Require().NoError(w.Checkout(&CheckoutOptions{Branch: "feature"}))

	local, err := s.repo.Reference("refs/heads/feature", false)
	s.Require().NoError(err)
	s.Equal(feature, local.Hash())

	cfg, err := s.repo.Config()
	s.Require().NoError(err)
	branch := cfg.Branches["feature"]
	s.Require().NotNil(branch)
	s.Equal("origin", branch.Remote)
	s.Equal(plumbing.ReferenceName("refs/heads/feature"), branch.Merge)

	name, err := s.repo.CurrentBranch(false)
	s.Require().NoError(err)
	s.Equal("feature", name)
}

func (s *WorktreeSuite) TestCheckoutDetachedByHash() {
	feature := s.twoBranches()
	w := s.worktree()

	s.Require().NoError(w.Checkout(&CheckoutOptions{Branch: feature.String()}))
	s.Equal("delta\n", s.readFile("d.txt"))

	_, err := s.repo.CurrentBranch(true)
	s.ErrorIs(err, ErrDetachedHEAD)
	s.ErrorContains(err, "current-branch")

	head, err := s.repo.Head()
	s.Require().NoError(err)
	s.Equal(feature, head.Hash())
}

func (s *WorktreeSuite) TestCheckoutMissingBranch() {
	s.twoBranches()
	w := s.worktree()

	err := w.Checkout(&CheckoutOptions{Branch: "nope"})
	s.ErrorIs(err, plumbing.ErrReferenceNotFound)
}

func (s *WorktreeSuite) TestCheckoutMissingParameter() {
	s.twoBranches()
	w := s.worktree()

	err := w.Checkout(&CheckoutOptions{})
	s.ErrorIs(err, ErrMissingParameter)
}

func (s *WorktreeSuite) TestCheckoutUnfetchedCommit() {
	s.twoBranches()

	ghost := plumbing.NewHash("0123456789012345678901234567890123456789")
	s.branch("ghost", ghost)

	w := s.worktree()
	err := w.Checkout(&CheckoutOptions{Branch: "ghost"})
	s.ErrorIs(err, ErrCommitNotFetched)
}

func (s *WorktreeSuite) TestCheckoutSymlink() {
	target := s.blob("alpha\n")
	link := s.blob("a.txt")
	tree := s.tree(
		object.TreeEntry{Name: "a.txt", Mode: filemode.Regular, Hash: target},
		object.TreeEntry{Name: "ln", Mode: filemode.Symlink, Hash: link},
	)
	s.branch("master", s.commit(tree))

	w := s.worktree()
	s.Require().NoError(w.Checkout(&CheckoutOptions{Branch: "master"}))

	got, err := s.wt.Readlink("ln")
	s.Require().NoError(err)
	s.Equal("a.txt", got)
}

func (s *WorktreeSuite) TestCheckoutSkipsSubmodule() {
	a := s.blob("alpha\n")

	// The submodule commit is deliberately absent from storage.
	sub := plumbing.NewHash("0123456789012345678901234567890123456789")
	tree := s.tree(
		object.TreeEntry{Name: "a.txt", Mode: filemode.Regular, Hash: a},
		object.TreeEntry{Name: "vendor", Mode: filemode.Submodule, Hash: sub},
	)
	s.branch("master", s.commit(tree))

	w := s.worktree()
	s.Require().NoError(w.Checkout(&CheckoutOptions{Branch: "master"}))

	s.Equal("alpha\n", s.readFile("a.txt"))
	_, err := s.wt.Lstat("vendor")
	s.Error(err)

	idx, err := s.repo.Storer.Index()
	s.Require().NoError(err)
	s.Require().Len(idx.Entries, 1)
	s.Equal("a.txt", idx.Entries[0].Name)
}

func (s *WorktreeSuite) TestCheckoutExecutableMode() {
	script := s.blob("#!/bin/sh\nexit 0\n")
	tree := s.tree(object.TreeEntry{Name: "run.sh", Mode: filemode.Executable, Hash: script})
	s.branch("master", s.commit(tree))

	w := s.worktree()
	s.Require().NoError(w.Checkout(&CheckoutOptions{Branch: "master"}))

	fi, err := s.wt.Lstat("run.sh")
	s.Require().NoError(err)
	s.NotZero(fi.Mode() & 0100)

	idx, err := s.repo.Storer.Index()
	s.Require().NoError(err)
	e, err := idx.Entry("run.sh")
	s.Require().NoError(err)
	s.Equal(filemode.Executable, e.Mode)
}

func (s *WorktreeSuite) TestCheckoutModeOnlyChange() {
	script := s.blob("#!/bin/sh\nexit 0\n")
	plain := s.tree(object.TreeEntry{Name: "run.sh", Mode: filemode.Regular, Hash: script})
	exec := s.tree(object.TreeEntry{Name: "run.sh", Mode: filemode.Executable, Hash: script})

	first := s.commit(plain)
	s.branch("master", first)
	s.branch("exec", s.commit(exec, first))

	w := s.worktree()
	s.Require().NoError(w.Checkout(&CheckoutOptions{Branch: "master"}))
	s.Require().NoError(w.Checkout(&CheckoutOptions{Branch: "exec"}))

	// Same blob on both sides: classification compares content hashes, so
	// the file is not rewritten and keeps its old permissions. The index
	// still records the new mode.
	fi, err := s.wt.Lstat("run.sh")
	s.Require().NoError(err)
	s.Zero(fi.Mode() & 0100)

	idx, err := s.repo.Storer.Index()
	s.Require().NoError(err)
	e, err := idx.Entry("run.sh")
	s.Require().NoError(err)
	s.Equal(filemode.Executable, e.Mode)
}

func (s *WorktreeSuite) TestCurrentBranch() {
	a := s.blob("alpha\n")
	tree := s.tree(object.TreeEntry{Name: "a.txt", Mode: filemode.Regular, Hash: a})
	main := s.commit(tree)

	s.branch("main", main)
	w := s.worktree()
	s.Require().NoError(w.Checkout(&CheckoutOptions{Branch: "main"}))

	full, err := s.repo.CurrentBranch(true)
	s.Require().NoError(err)
	s.Equal("refs/heads/main", full)

	short, err := s.repo.CurrentBranch(false)
	s.Require().NoError(err)
	s.Equal("main", short)
}

func (s *WorktreeSuite) TestCheckoutRestoresLocallyDeletedFile() {
	s.twoBranches()
	w := s.worktree()

	s.Require().NoError(w.Checkout(&CheckoutOptions{Branch: "master"}))
	s.Require().NoError(s.wt.Remove("a.txt"))

	s.Require().NoError(w.Checkout(&CheckoutOptions{Branch: "master"}))
	s.Equal("alpha\n", s.readFile("a.txt"))
}

func (s *WorktreeSuite) TestCheckoutPrunesEmptyDirectories() {
	a := s.blob("alpha\n")
	c := s.blob("gamma\n")

	dir := s.tree(object.TreeEntry{Name: "c.txt", Mode: filemode.Regular, Hash: c})
	withDir := s.tree(
		object.TreeEntry{Name: "a.txt", Mode: filemode.Regular, Hash: a},
		object.TreeEntry{Name: "dir", Mode: filemode.Dir, Hash: dir},
	)
	without := s.tree(object.TreeEntry{Name: "a.txt", Mode: filemode.Regular, Hash: a})

	first := s.commit(withDir)
	second := s.commit(without, first)
	s.branch("master", first)
	s.branch("flat", second)

	w := s.worktree()
	s.Require().NoError(w.Checkout(&CheckoutOptions{Branch: "master"}))
	s.Require().NoError(w.Checkout(&CheckoutOptions{Branch: "flat"}))

	_, err := s.wt.Lstat("dir/c.txt")
	s.Error(err)
	_, err = s.wt.Lstat("dir")
	s.Error(err)
}

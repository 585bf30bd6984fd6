package grit

import (
	"io"
	"os"
	"sort"
	"strings"

	"github.com/emirpasic/gods/trees/binaryheap"
	"github.com/go-git/go-billy/v5"

	"github.com/grit-vcs/grit/plumbing"
	"github.com/grit-vcs/grit/plumbing/filemode"
	"github.com/grit-vcs/grit/plumbing/format/index"
	"github.com/grit-vcs/grit/plumbing/object"
)

// walkEntry is one source's view of a file during a synchronized walk. The
// path and mode are known up front, the content hash is populated lazily by
// Hash and kept once computed.
type walkEntry struct {
	path string
	mode filemode.FileMode

	// stat is only set for working directory entries.
	stat os.FileInfo
	// idx is only set for staging index entries.
	idx *index.Entry

	hashed bool
	hash   plumbing.Hash
	load   func() (plumbing.Hash, error)
}

// Hash returns the content hash of the entry, computing it on first use.
func (e *walkEntry) Hash() (plumbing.Hash, error) {
	if e.hashed {
		return e.hash, nil
	}

	h, err := e.load()
	if err != nil {
		return plumbing.ZeroHash, err
	}

	e.hash = h
	e.hashed = true
	return e.hash, nil
}

// walkSource yields the files of one tree-like source, one entry per call,
// in ascending full-path order. It returns io.EOF after the last entry.
// Directory traversal is the walker's job: sources only ever yield files.
type walkSource interface {
	Next() (*walkEntry, error)
}

// syncWalk drives the sources in lockstep over the ascending union of their
// paths. fn is called once per distinct path with one slot per source, nil
// where that source has no entry for the path.
func syncWalk(sources []walkSource, fn func(path string, entries []*walkEntry) error) error {
	type head struct {
		entry *walkEntry
		src   int
	}

	heap := binaryheap.NewWith(func(a, b interface{}) int {
		ha, hb := a.(*head), b.(*head)
		if c := strings.Compare(ha.entry.path, hb.entry.path); c != 0 {
			return c
		}

		return ha.src - hb.src
	})

	advance := func(src int) error {
		e, err := sources[src].Next()
		if err == io.EOF {
			return nil
		}

		if err != nil {
			return err
		}

		heap.Push(&head{entry: e, src: src})
		return nil
	}

	for i := range sources {
		if err := advance(i); err != nil {
			return err
		}
	}

	slots := make([]*walkEntry, len(sources))
	var current []int
	for {
		v, ok := heap.Peek()
		if !ok {
			return nil
		}

		path := v.(*head).entry.path
		for i := range slots {
			slots[i] = nil
		}

		current = current[:0]
		for {
			v, ok := heap.Peek()
			if !ok || v.(*head).entry.path != path {
				break
			}

			heap.Pop()
			h := v.(*head)
			slots[h.src] = h.entry
			current = append(current, h.src)
		}

		if err := fn(path, slots); err != nil {
			return err
		}

		for _, src := range current {
			if err := advance(src); err != nil {
				return err
			}
		}
	}
}

// treeSource yields the files of a git tree. Tree iteration already visits
// entries in path order, directories sorting as if suffixed with a slash,
// which for the emitted file paths coincides with plain string order.
type treeSource struct {
	w *object.TreeWalker
}

func newTreeSource(t *object.Tree) *treeSource {
	if t == nil {
		return &treeSource{}
	}

	return &treeSource{w: object.NewTreeWalker(t, true, nil)}
}

func (s *treeSource) Next() (*walkEntry, error) {
	if s.w == nil {
		return nil, io.EOF
	}

	for {
		name, entry, err := s.w.Next()
		if err != nil {
			return nil, err
		}

		if entry.Mode == filemode.Dir {
			continue
		}

		return &walkEntry{
			path:   name,
			mode:   entry.Mode,
			hashed: true,
			hash:   entry.Hash,
		}, nil
	}
}

// indexSource yields the staging index entries in path order. Hashes are
// already known, so population is free.
type indexSource struct {
	entries []*index.Entry
	pos     int
}

func newIndexSource(idx *index.Index) *indexSource {
	entries := make([]*index.Entry, len(idx.Entries))
	copy(entries, idx.Entries)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	})

	return &indexSource{entries: entries}
}

func (s *indexSource) Next() (*walkEntry, error) {
	if s.pos >= len(s.entries) {
		return nil, io.EOF
	}

	e := s.entries[s.pos]
	s.pos++

	return &walkEntry{
		path:   e.Name,
		mode:   e.Mode,
		idx:    e,
		hashed: true,
		hash:   e.Hash,
	}, nil
}

// workdirSource yields the files of the working directory, walking it depth
// first with each listing sorted the way git sorts tree entries. Absence of
// a path is represented by the walker as a nil slot, never as an error, and
// hashing is deferred until a classification actually needs it.
type workdirSource struct {
	fs    billy.Filesystem
	stack []*workdirFrame
}

type workdirFrame struct {
	dir   string
	infos []os.FileInfo
	pos   int
}

func newWorkdirSource(fs billy.Filesystem) (*workdirSource, error) {
	s := &workdirSource{fs: fs}
	if err := s.push(""); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *workdirSource) push(dir string) error {
	name := dir
	if name == "" {
		name = "."
	}

	infos, err := s.fs.ReadDir(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}

	sort.Slice(infos, func(i, j int) bool {
		return dirSortKey(infos[i]) < dirSortKey(infos[j])
	})

	s.stack = append(s.stack, &workdirFrame{dir: dir, infos: infos})
	return nil
}

// dirSortKey gives directories a trailing slash so siblings sort the same
// way git tree entries do.
func dirSortKey(fi os.FileInfo) string {
	if fi.IsDir() {
		return fi.Name() + "/"
	}

	return fi.Name()
}

func (s *workdirSource) Next() (*walkEntry, error) {
	for len(s.stack) > 0 {
		frame := s.stack[len(s.stack)-1]
		if frame.pos >= len(frame.infos) {
			s.stack = s.stack[:len(s.stack)-1]
			continue
		}

		fi := frame.infos[frame.pos]
		frame.pos++

		if frame.dir == "" && fi.Name() == gitDirName {
			continue
		}

		path := fi.Name()
		if frame.dir != "" {
			path = frame.dir + "/" + fi.Name()
		}

		if fi.IsDir() {
			if err := s.push(path); err != nil {
				return nil, err
			}

			continue
		}

		mode, err := filemode.NewFromOSFileMode(fi.Mode())
		if err != nil {
			// Sockets, pipes and devices have no git equivalent.
			continue
		}

		entry := &walkEntry{
			path: path,
			mode: mode,
			stat: fi,
		}
		entry.load = func() (plumbing.Hash, error) {
			return s.hashFile(entry.path, entry.mode, fi.Size())
		}

		return entry, nil
	}

	return nil, io.EOF
}

// hashFile computes the blob hash of a working directory file, reading the
// link target instead of file content for symlinks.
func (s *workdirSource) hashFile(path string, mode filemode.FileMode, size int64) (plumbing.Hash, error) {
	if mode == filemode.Symlink {
		target, err := s.fs.Readlink(path)
		if err != nil {
			return plumbing.ZeroHash, err
		}

		return plumbing.ComputeHash(plumbing.BlobObject, []byte(target)), nil
	}

	f, err := s.fs.Open(path)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	defer f.Close()

	h := plumbing.NewHasher(plumbing.BlobObject, size)
	if _, err := io.Copy(h, f); err != nil {
		return plumbing.ZeroHash, err
	}

	return h.Sum(), nil
}

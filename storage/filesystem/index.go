package filesystem

import (
	"os"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/grit-vcs/grit/plumbing/format/index"
	"github.com/grit-vcs/grit/storage/filesystem/dotgit"
	"github.com/grit-vcs/grit/utils/ioutil"
)

const (
	indexPath     = "index"
	indexLockPath = "index.lock"

	// lockRetryInterval is how long to wait before re-probing a lock file
	// held by another process.
	lockRetryInterval = 50 * time.Millisecond
)

// IndexStorage reads and writes the index file. All mutation happens under
// an exclusive lock: an index.lock file guards against other processes, and
// an in-process mutex guards against other goroutines. The new index is
// written to the lock file and moved over the real index in a single rename,
// so readers never observe a partially written index.
type IndexStorage struct {
	dir *dotgit.DotGit

	m sync.Mutex
}

// Index returns the current index. A repository with no index file yet
// yields an empty index.
func (s *IndexStorage) Index() (i *index.Index, err error) {
	idx := &index.Index{
		Version: 2,
	}

	f, err := s.dir.Index()
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}

		return nil, err
	}

	defer ioutil.CheckClose(f, &err)

	d := index.NewDecoder(f)
	err = d.Decode(idx)
	return idx, err
}

// SetIndex replaces the index wholesale. It takes and releases the
// exclusive lock around the write.
func (s *IndexStorage) SetIndex(i *index.Index) error {
	return s.update(func(old *index.Index) (*index.Index, error) {
		return i, nil
	})
}

// Update runs fn with the current index under the exclusive lock and
// persists the mutated index afterwards. If fn returns an error nothing is
// written and the lock is released.
func (s *IndexStorage) Update(fn func(*index.Index) error) error {
	return s.update(func(idx *index.Index) (*index.Index, error) {
		if err := fn(idx); err != nil {
			return nil, err
		}

		return idx, nil
	})
}

func (s *IndexStorage) update(fn func(*index.Index) (*index.Index, error)) (err error) {
	s.m.Lock()
	defer s.m.Unlock()

	f, err := s.takeLock()
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if !committed {
			if rerr := s.releaseLock(f); err == nil {
				err = rerr
			}
		}
	}()

	idx, err := s.Index()
	if err != nil {
		return err
	}

	idx, err = fn(idx)
	if err != nil {
		return err
	}

	e := index.NewEncoder(f)
	if err := e.Encode(idx); err != nil {
		return err
	}

	if err := f.Close(); err != nil {
		return err
	}

	committed = true
	return s.dir.Filesystem().Rename(indexLockPath, indexPath)
}

// takeLock creates the index.lock file, blocking while another process
// holds it.
func (s *IndexStorage) takeLock() (billy.File, error) {
	fs := s.dir.Filesystem()
	for {
		f, err := fs.OpenFile(indexLockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return f, nil
		}

		if !os.IsExist(err) {
			return nil, err
		}

		time.Sleep(lockRetryInterval)
	}
}

func (s *IndexStorage) releaseLock(f billy.File) error {
	_ = f.Close()
	err := s.dir.Filesystem().Remove(indexLockPath)
	if os.IsNotExist(err) {
		return nil
	}

	return err
}

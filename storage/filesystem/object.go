package filesystem

import (
	"io"
	"os"

	"github.com/grit-vcs/grit/plumbing"
	"github.com/grit-vcs/grit/plumbing/cache"
	"github.com/grit-vcs/grit/plumbing/format/idxfile"
	"github.com/grit-vcs/grit/plumbing/format/objfile"
	"github.com/grit-vcs/grit/plumbing/format/packfile"
	"github.com/grit-vcs/grit/storage/filesystem/dotgit"
	"github.com/grit-vcs/grit/utils/ioutil"
)

// ObjectStorage resolves objects against the loose object directory first
// and the packfiles second, keeping decoded objects and delta bases in a
// shared LRU cache.
type ObjectStorage struct {
	dir   *dotgit.DotGit
	cache cache.Object

	packs map[plumbing.Hash]*packfile.Packfile
}

// NewObjectStorage returns a new ObjectStorage backed by the given repository
// directory and object cache.
func NewObjectStorage(dir *dotgit.DotGit, c cache.Object) *ObjectStorage {
	return &ObjectStorage{
		dir:   dir,
		cache: c,
		packs: make(map[plumbing.Hash]*packfile.Packfile),
	}
}

// NewEncodedObject returns a new plumbing.MemoryObject.
func (s *ObjectStorage) NewEncodedObject() plumbing.EncodedObject {
	return &plumbing.MemoryObject{}
}

// SetEncodedObject adds a new object to the storage as a loose object.
func (s *ObjectStorage) SetEncodedObject(o plumbing.EncodedObject) (h plumbing.Hash, err error) {
	if o.Type() == plumbing.OFSDeltaObject || o.Type() == plumbing.REFDeltaObject {
		return plumbing.ZeroHash, plumbing.ErrInvalidType
	}

	ow, err := s.dir.NewObject()
	if err != nil {
		return plumbing.ZeroHash, err
	}

	defer ioutil.CheckClose(ow, &err)

	or, err := o.Reader()
	if err != nil {
		return plumbing.ZeroHash, err
	}

	defer ioutil.CheckClose(or, &err)

	if err = ow.WriteHeader(o.Type(), o.Size()); err != nil {
		return plumbing.ZeroHash, err
	}

	if _, err = io.Copy(ow, or); err != nil {
		return plumbing.ZeroHash, err
	}

	return o.Hash(), err
}

// HasEncodedObject returns nil if the object exists, without actually
// reading the object data from storage.
func (s *ObjectStorage) HasEncodedObject(h plumbing.Hash) (err error) {
	if s.dir.HasObject(h) {
		return nil
	}

	packs, err := s.packfiles()
	if err != nil {
		return err
	}

	for _, p := range packs {
		if p.Has(h) {
			return nil
		}
	}

	return plumbing.ErrObjectNotFound
}

// EncodedObjectSize returns the plaintext size of the given object, without
// actually reading the full object data from storage.
func (s *ObjectStorage) EncodedObjectSize(h plumbing.Hash) (int64, error) {
	o, err := s.EncodedObject(plumbing.AnyObject, h)
	if err != nil {
		return 0, err
	}

	return o.Size(), nil
}

// EncodedObject returns the object with the given hash. When t is not
// plumbing.AnyObject and the stored object has a different type,
// plumbing.ErrObjectTypeMismatch is returned.
func (s *ObjectStorage) EncodedObject(t plumbing.ObjectType, h plumbing.Hash) (plumbing.EncodedObject, error) {
	obj, err := s.getFromUnpacked(h)
	if err == plumbing.ErrObjectNotFound {
		obj, err = s.getFromPackfile(h)
	}

	if err != nil {
		return nil, err
	}

	if plumbing.AnyObject != t && obj.Type() != t {
		return nil, plumbing.ErrObjectTypeMismatch
	}

	return obj, nil
}

func (s *ObjectStorage) getFromUnpacked(h plumbing.Hash) (obj plumbing.EncodedObject, err error) {
	if cacheObj, found := s.cache.Get(h); found {
		return cacheObj, nil
	}

	f, err := s.dir.Object(h)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, plumbing.ErrObjectNotFound
		}

		return nil, err
	}

	defer ioutil.CheckClose(f, &err)

	obj = s.NewEncodedObject()
	r, err := objfile.NewReader(f)
	if err != nil {
		return nil, err
	}

	defer ioutil.CheckClose(r, &err)

	t, size, err := r.Header()
	if err != nil {
		return nil, err
	}

	obj.SetType(t)
	obj.SetSize(size)
	w, err := obj.Writer()
	if err != nil {
		return nil, err
	}

	defer ioutil.CheckClose(w, &err)

	if _, err = io.Copy(w, r); err != nil {
		return nil, err
	}

	s.cache.Put(obj)
	return obj, err
}

func (s *ObjectStorage) getFromPackfile(h plumbing.Hash) (plumbing.EncodedObject, error) {
	packs, err := s.packfiles()
	if err != nil {
		return nil, err
	}

	for _, p := range packs {
		if !p.Has(h) {
			continue
		}

		return p.Get(h)
	}

	return nil, plumbing.ErrObjectNotFound
}

// packfiles opens every pack under objects/pack, decoding each idx once and
// memoizing the open packfile for the lifetime of the storage.
func (s *ObjectStorage) packfiles() ([]*packfile.Packfile, error) {
	hashes, err := s.dir.ObjectPacks()
	if err != nil {
		return nil, err
	}

	result := make([]*packfile.Packfile, 0, len(hashes))
	for _, h := range hashes {
		p, ok := s.packs[h]
		if !ok {
			p, err = s.openPackfile(h)
			if err != nil {
				return nil, err
			}

			s.packs[h] = p
		}

		result = append(result, p)
	}

	return result, nil
}

func (s *ObjectStorage) openPackfile(h plumbing.Hash) (p *packfile.Packfile, err error) {
	idxf, err := s.dir.ObjectPackIdx(h)
	if err != nil {
		return nil, err
	}

	defer ioutil.CheckClose(idxf, &err)

	idx := idxfile.NewMemoryIndex()
	if err = idxfile.NewDecoder(idxf).Decode(idx); err != nil {
		return nil, err
	}

	pack, err := s.dir.ObjectPack(h)
	if err != nil {
		return nil, err
	}

	return packfile.NewPackfile(idx, pack, s.cache), err
}

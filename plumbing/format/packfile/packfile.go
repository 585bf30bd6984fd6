// Package packfile implements a reader for packed git objects.
//
// Only decoding is supported: given a packfile and its idx, single objects
// are inflated on demand, resolving ofs-delta and ref-delta chains against
// their base objects. Packfile encoding is out of scope.
package packfile

import (
	"bufio"
	"compress/zlib"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/grit-vcs/grit/plumbing"
	"github.com/grit-vcs/grit/plumbing/cache"
	"github.com/grit-vcs/grit/plumbing/format/idxfile"
	"github.com/grit-vcs/grit/utils/ioutil"
)

var (
	// ErrInvalidObject is returned by Decode when an invalid object is
	// found in the packfile.
	ErrInvalidObject = NewError("invalid git object")
	// ErrZLib is returned by Decode when there was an error unzipping
	// the packfile contents.
	ErrZLib = NewError("zlib reading error")
)

// Packfile allows retrieving information from inside a packfile.
type Packfile struct {
	idx   *idxfile.MemoryIndex
	file  io.ReaderAt
	cache cache.Object

	m sync.Mutex
}

// NewPackfile returns a packfile representation for the given packfile and
// packfile idx. Delta bases resolved along the way are stored in the given
// cache, if any.
func NewPackfile(idx *idxfile.MemoryIndex, file io.ReaderAt, c cache.Object) *Packfile {
	if c == nil {
		c = cache.NewObjectLRUDefault()
	}

	return &Packfile{
		idx:   idx,
		file:  file,
		cache: c,
	}
}

// Get retrieves the encoded object in the packfile with the given hash.
func (p *Packfile) Get(h plumbing.Hash) (plumbing.EncodedObject, error) {
	if obj, ok := p.cache.Get(h); ok {
		return obj, nil
	}

	offset, err := p.idx.FindOffset(h)
	if err != nil {
		return nil, err
	}

	p.m.Lock()
	defer p.m.Unlock()

	obj, err := p.objectAtOffset(offset)
	if err != nil {
		return nil, err
	}

	p.cache.Put(obj)
	return obj, nil
}

// Has reports whether the packfile contains the object with the given hash.
func (p *Packfile) Has(h plumbing.Hash) bool {
	return p.idx.Contains(h)
}

// Hashes returns every object hash contained in the packfile, in hash order.
func (p *Packfile) Hashes() []plumbing.Hash {
	return p.idx.Hashes()
}

// objectAtOffset parses and inflates the object stored at the given pack
// offset, recursively resolving delta bases.
func (p *Packfile) objectAtOffset(offset int64) (plumbing.EncodedObject, error) {
	r := bufio.NewReader(io.NewSectionReader(p.file, offset, math.MaxInt64-offset))

	typ, size, err := readObjectHeader(r)
	if err != nil {
		return nil, err
	}

	switch typ {
	case plumbing.CommitObject, plumbing.TreeObject, plumbing.BlobObject, plumbing.TagObject:
		return p.inflateObject(typ, size, r)
	case plumbing.OFSDeltaObject:
		negOffset, err := readNegativeOffset(r)
		if err != nil {
			return nil, err
		}

		base, err := p.objectAtOffset(offset - negOffset)
		if err != nil {
			return nil, err
		}

		return p.patchObject(base, size, r)
	case plumbing.REFDeltaObject:
		var baseHash plumbing.Hash
		if _, err := io.ReadFull(r, baseHash[:]); err != nil {
			return nil, err
		}

		baseOffset, err := p.idx.FindOffset(baseHash)
		if err != nil {
			return nil, err
		}

		base, err := p.objectAtOffset(baseOffset)
		if err != nil {
			return nil, err
		}

		return p.patchObject(base, size, r)
	default:
		return nil, ErrInvalidObject.AddDetails("tag %q", typ)
	}
}

func (p *Packfile) inflateObject(typ plumbing.ObjectType, size int64, r io.Reader) (plumbing.EncodedObject, error) {
	obj := &plumbing.MemoryObject{}
	obj.SetType(typ)

	data, err := inflate(r, size)
	if err != nil {
		return nil, err
	}

	if _, err := obj.Write(data); err != nil {
		return nil, err
	}

	return obj, nil
}

func (p *Packfile) patchObject(base plumbing.EncodedObject, deltaSize int64, r io.Reader) (obj plumbing.EncodedObject, err error) {
	delta, err := inflate(r, deltaSize)
	if err != nil {
		return nil, err
	}

	br, err := base.Reader()
	if err != nil {
		return nil, err
	}
	defer ioutil.CheckClose(br, &err)

	src, err := io.ReadAll(br)
	if err != nil {
		return nil, err
	}

	patched, err := PatchDelta(src, delta)
	if err != nil {
		return nil, err
	}

	target := &plumbing.MemoryObject{}
	target.SetType(base.Type())
	if _, err := target.Write(patched); err != nil {
		return nil, err
	}

	return target, nil
}

func inflate(r io.Reader, size int64) (data []byte, err error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, ErrZLib.AddDetails(err.Error())
	}
	defer ioutil.CheckClose(zr, &err)

	data = make([]byte, size)
	if _, err := io.ReadFull(zr, data); err != nil {
		return nil, err
	}

	return data, nil
}

// readObjectHeader reads the type and inflated size of the object starting
// at the reader. The header is a variable length integer with the type
// packed into bits 4-6 of the first byte.
func readObjectHeader(r io.ByteReader) (plumbing.ObjectType, int64, error) {
	b, err := r.ReadByte()
	if err != nil {
		return plumbing.InvalidObject, 0, err
	}

	typ := plumbing.ObjectType((b >> 4) & 0x07)
	size := int64(b & 0x0f)
	shift := uint(4)
	for b&continuation != 0 {
		if b, err = r.ReadByte(); err != nil {
			return plumbing.InvalidObject, 0, err
		}

		size += int64(b&payload) << shift
		shift += 7
	}

	if !typ.Valid() {
		return typ, size, fmt.Errorf("%w: invalid object type %d", ErrInvalidObject, typ)
	}

	return typ, size, nil
}

// readNegativeOffset reads the base offset of an ofs-delta object, encoded
// in git's modified variable length format.
func readNegativeOffset(r io.ByteReader) (int64, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}

	var offset = int64(b & payload)
	for b&continuation != 0 {
		offset++
		if b, err = r.ReadByte(); err != nil {
			return 0, err
		}

		offset = (offset << 7) + int64(b&payload)
	}

	return offset, nil
}

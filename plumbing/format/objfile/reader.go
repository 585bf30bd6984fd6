// Package objfile implements the loose object on-disk format: a zlib
// compressed stream holding a "<type> <size>\x00" header followed by the
// object content.
package objfile

import (
	"compress/zlib"
	"errors"
	"io"
	"strconv"

	"github.com/grit-vcs/grit/plumbing"
	"github.com/grit-vcs/grit/utils/binary"
)

var (
	// ErrClosed is returned when the objfile Reader or Writer is already
	// closed.
	ErrClosed = errors.New("objfile: already closed")
	// ErrHeader is returned when the objfile has an invalid header.
	ErrHeader = errors.New("objfile: invalid header")
	// ErrNegativeSize is returned when a negative object size is declared.
	ErrNegativeSize = errors.New("objfile: negative size")
)

// Reader reads and decodes compressed objfile data from a provided io.Reader.
// Reader implements io.ReadCloser. Close should be called when finished with
// the Reader. Close will not close the underlying io.Reader.
type Reader struct {
	multi  io.Reader
	zlib   io.ReadCloser
	hasher plumbing.Hasher
	closed bool
}

// NewReader returns a new Reader reading from r.
func NewReader(r io.Reader) (*Reader, error) {
	zlib, err := zlib.NewReader(r)
	if err != nil {
		return nil, err
	}

	return &Reader{
		zlib: zlib,
	}, nil
}

// Header reads the type and the size of object, and prepares the reader for
// reading the object content.
func (r *Reader) Header() (t plumbing.ObjectType, size int64, err error) {
	var raw []byte
	raw, err = binary.ReadUntil(r.zlib, ' ')
	if err != nil {
		return
	}

	t, err = plumbing.ParseObjectType(string(raw))
	if err != nil {
		return
	}

	raw, err = binary.ReadUntil(r.zlib, 0)
	if err != nil {
		return
	}

	size, err = strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		err = ErrHeader
		return
	}

	if size < 0 {
		err = ErrNegativeSize
		return
	}

	defer r.prepareForRead(t, size)
	return
}

// prepareForRead tees the content stream through a hasher, so that Hash
// reflects what has been read so far.
func (r *Reader) prepareForRead(t plumbing.ObjectType, size int64) {
	r.hasher = plumbing.NewHasher(t, size)
	r.multi = io.TeeReader(r.zlib, r.hasher)
}

// Read reads the objfile object content.
func (r *Reader) Read(p []byte) (n int, err error) {
	return r.multi.Read(p)
}

// Hash returns the hash of the object data stream that has been read so far.
func (r *Reader) Hash() plumbing.Hash {
	return r.hasher.Sum()
}

// Close releases any resources consumed by the Reader. Calling Close does
// not close the wrapped io.Reader originally passed to NewReader.
func (r *Reader) Close() (err error) {
	if r.closed {
		return ErrClosed
	}

	if err := r.zlib.Close(); err != nil {
		return err
	}

	r.closed = true
	return nil
}

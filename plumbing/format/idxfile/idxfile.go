// Package idxfile implements a reader for pack index (.idx) files,
// version 2.
//
// The index maps object hashes to byte offsets inside the corresponding
// packfile, so single objects can be inflated without scanning the whole
// pack.
package idxfile

import (
	"bytes"
	"sort"

	"github.com/grit-vcs/grit/plumbing"
)

const (
	// VersionSupported is the only idx version supported.
	VersionSupported = 2

	fanoutSize = 256
)

var (
	idxHeader = []byte{255, 't', 'O', 'c'}
)

// MemoryIndex is an in-memory representation of a pack index. Entries are
// kept in hash order, mirroring the on-disk layout, which makes lookups a
// binary search within the fanout bucket.
type MemoryIndex struct {
	Version uint32
	Fanout  [fanoutSize]uint32
	// Names is the concatenation of every object hash, in ascending order.
	Names []byte
	// CRC32 of the packed representation of every object, aligned with Names.
	CRC32 []uint32
	// Offset32 holds the 31-bit pack offsets, aligned with Names. Entries
	// with the high bit set index into Offset64.
	Offset32 []uint32
	// Offset64 holds offsets that do not fit in 31 bits.
	Offset64 []uint64

	// PackfileChecksum is the trailing checksum of the packfile this index
	// belongs to.
	PackfileChecksum plumbing.Hash
	// IdxChecksum is the checksum of the index itself.
	IdxChecksum plumbing.Hash
}

// NewMemoryIndex returns an instance of a new MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{Version: VersionSupported}
}

// Count returns the number of objects described by the index.
func (idx *MemoryIndex) Count() int {
	return int(idx.Fanout[fanoutSize-1])
}

// Contains checks whether the given hash is in the index.
func (idx *MemoryIndex) Contains(h plumbing.Hash) bool {
	return idx.findHashIndex(h) >= 0
}

// FindOffset finds the offset in the packfile for the object with the given
// hash. It returns plumbing.ErrObjectNotFound when the pack does not contain
// the object.
func (idx *MemoryIndex) FindOffset(h plumbing.Hash) (int64, error) {
	pos := idx.findHashIndex(h)
	if pos < 0 {
		return 0, plumbing.ErrObjectNotFound
	}

	offset := idx.Offset32[pos]
	if offset&(1<<31) != 0 {
		return int64(idx.Offset64[offset&^(1<<31)]), nil
	}

	return int64(offset), nil
}

// FindCRC32 finds the recorded CRC32 for the object with the given hash.
func (idx *MemoryIndex) FindCRC32(h plumbing.Hash) (uint32, error) {
	pos := idx.findHashIndex(h)
	if pos < 0 {
		return 0, plumbing.ErrObjectNotFound
	}

	return idx.CRC32[pos], nil
}

// Hashes returns every object hash in the index, in ascending order.
func (idx *MemoryIndex) Hashes() []plumbing.Hash {
	count := idx.Count()
	hashes := make([]plumbing.Hash, count)
	for i := 0; i < count; i++ {
		copy(hashes[i][:], idx.Names[i*20:])
	}

	return hashes
}

// findHashIndex returns the position of the hash in the Names table, or -1
// when absent. The fanout table bounds the binary search to the bucket of
// the hash's first byte.
func (idx *MemoryIndex) findHashIndex(h plumbing.Hash) int {
	var low uint32
	if h[0] > 0 {
		low = idx.Fanout[h[0]-1]
	}
	high := idx.Fanout[h[0]]

	pos := sort.Search(int(high-low), func(i int) bool {
		offset := (int(low) + i) * 20
		return bytes.Compare(h[:], idx.Names[offset:offset+20]) <= 0
	})

	pos += int(low)
	if pos >= int(high) {
		return -1
	}

	if !bytes.Equal(h[:], idx.Names[pos*20:pos*20+20]) {
		return -1
	}

	return pos
}

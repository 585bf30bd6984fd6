package idxfile

import (
	"bufio"
	"bytes"
	"errors"
	"io"

	"github.com/grit-vcs/grit/utils/binary"
)

var (
	// ErrUnsupportedVersion is returned by Decode when the idx file version
	// is not supported.
	ErrUnsupportedVersion = errors.New("unsupported version")
	// ErrMalformedIdxFile is returned by Decode when the idx file is corrupted.
	ErrMalformedIdxFile = errors.New("malformed IDX file")
)

// Decoder reads and decodes idx files from an input stream.
type Decoder struct {
	*bufio.Reader
}

// NewDecoder builds a new idx stream decoder, that reads from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{bufio.NewReader(r)}
}

// Decode reads from the stream and decode the content into the MemoryIndex struct.
func (d *Decoder) Decode(idx *MemoryIndex) error {
	if err := validateHeader(d); err != nil {
		return err
	}

	flow := []func(*MemoryIndex, io.Reader) error{
		readVersion,
		readFanout,
		readObjectNames,
		readCRC32,
		readOffsets,
		readChecksums,
	}

	for _, f := range flow {
		if err := f(idx, d); err != nil {
			return err
		}
	}

	return nil
}

func validateHeader(r io.Reader) error {
	var h = make([]byte, 4)
	if _, err := io.ReadFull(r, h); err != nil {
		return err
	}

	if !bytes.Equal(h, idxHeader) {
		return ErrMalformedIdxFile
	}

	return nil
}

func readVersion(idx *MemoryIndex, r io.Reader) error {
	v, err := binary.ReadUint32(r)
	if err != nil {
		return err
	}

	if v > VersionSupported {
		return ErrUnsupportedVersion
	}

	idx.Version = v
	return nil
}

func readFanout(idx *MemoryIndex, r io.Reader) error {
	for k := 0; k < fanoutSize; k++ {
		n, err := binary.ReadUint32(r)
		if err != nil {
			return err
		}

		idx.Fanout[k] = n
	}

	return nil
}

func readObjectNames(idx *MemoryIndex, r io.Reader) error {
	count := idx.Count()

	idx.Names = make([]byte, count*20)
	_, err := io.ReadFull(r, idx.Names)
	return err
}

func readCRC32(idx *MemoryIndex, r io.Reader) error {
	count := idx.Count()

	idx.CRC32 = make([]uint32, count)
	for i := 0; i < count; i++ {
		c, err := binary.ReadUint32(r)
		if err != nil {
			return err
		}

		idx.CRC32[i] = c
	}

	return nil
}

func readOffsets(idx *MemoryIndex, r io.Reader) error {
	count := idx.Count()

	var large int
	idx.Offset32 = make([]uint32, count)
	for i := 0; i < count; i++ {
		o, err := binary.ReadUint32(r)
		if err != nil {
			return err
		}

		idx.Offset32[i] = o
		if o&(1<<31) != 0 {
			large++
		}
	}

	idx.Offset64 = make([]uint64, large)
	for i := 0; i < large; i++ {
		o, err := binary.ReadUint64(r)
		if err != nil {
			return err
		}

		idx.Offset64[i] = o
	}

	return nil
}

func readChecksums(idx *MemoryIndex, r io.Reader) error {
	if _, err := io.ReadFull(r, idx.PackfileChecksum[:]); err != nil {
		return err
	}

	if _, err := io.ReadFull(r, idx.IdxChecksum[:]); err != nil {
		return err
	}

	return nil
}

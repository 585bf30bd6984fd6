package index

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grit-vcs/grit/plumbing"
	"github.com/grit-vcs/grit/plumbing/filemode"
)

func testEntry(name, hash string) *Entry {
	return &Entry{
		Name:       name,
		Hash:       plumbing.NewHash(hash),
		Mode:       filemode.Regular,
		CreatedAt:  time.Unix(1234567890, 0),
		ModifiedAt: time.Unix(1234567890, 0),
		Size:       42,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	idx := &Index{
		Version: 2,
		Entries: []*Entry{
			testEntry("quux/bar", "e25b29c8946e0e192fae2edc1dabf7be71e8ecf3"),
			testEntry("foo", "6ecf0ef2c2dffb796033e5a02219af86ec6584e5"),
		},
	}

	buf := bytes.NewBuffer(nil)
	require.NoError(t, NewEncoder(buf).Encode(idx))

	out := &Index{}
	require.NoError(t, NewDecoder(bytes.NewReader(buf.Bytes())).Decode(out))

	assert.Equal(t, uint32(2), out.Version)
	require.Len(t, out.Entries, 2)

	// The encoder sorts entries by name.
	assert.Equal(t, "foo", out.Entries[0].Name)
	assert.Equal(t, "quux/bar", out.Entries[1].Name)

	e := out.Entries[0]
	assert.Equal(t, plumbing.NewHash("6ecf0ef2c2dffb796033e5a02219af86ec6584e5"), e.Hash)
	assert.Equal(t, filemode.Regular, e.Mode)
	assert.Equal(t, uint32(42), e.Size)
	assert.True(t, e.ModifiedAt.Equal(time.Unix(1234567890, 0)))
}

func TestDecodeRejectsCorruptChecksum(t *testing.T) {
	idx := &Index{Version: 2, Entries: []*Entry{
		testEntry("foo", "6ecf0ef2c2dffb796033e5a02219af86ec6584e5"),
	}}

	buf := bytes.NewBuffer(nil)
	require.NoError(t, NewEncoder(buf).Encode(idx))

	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xff

	err := NewDecoder(bytes.NewReader(raw)).Decode(&Index{})
	assert.ErrorIs(t, err, ErrInvalidChecksum)
}

func TestDecodeRejectsBadSignature(t *testing.T) {
	err := NewDecoder(bytes.NewReader([]byte("JUNKJUNKJUNK"))).Decode(&Index{})
	assert.ErrorIs(t, err, ErrMalformedSignature)
}

func TestEncodeRejectsUnsupported(t *testing.T) {
	idx := &Index{Version: 3}
	assert.ErrorIs(t, NewEncoder(bytes.NewBuffer(nil)).Encode(idx), ErrUnsupportedVersion)

	e := testEntry("foo", "6ecf0ef2c2dffb796033e5a02219af86ec6584e5")
	e.IntentToAdd = true
	idx = &Index{Version: 2, Entries: []*Entry{e}}
	assert.ErrorIs(t, NewEncoder(bytes.NewBuffer(nil)).Encode(idx), ErrUnsupportedVersion)
}

func TestIndexEntryLookup(t *testing.T) {
	idx := &Index{Version: 2}
	e := idx.Add("foo")
	e.Hash = plumbing.NewHash("6ecf0ef2c2dffb796033e5a02219af86ec6584e5")

	got, err := idx.Entry("foo")
	require.NoError(t, err)
	assert.Equal(t, e, got)

	_, err = idx.Entry("missing")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	removed, err := idx.Remove("foo")
	require.NoError(t, err)
	assert.Equal(t, e, removed)
	assert.Empty(t, idx.Entries)
}

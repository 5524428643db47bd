package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/linkdb/internal/compress"
	"github.com/hupe1980/linkdb/internal/fs"
)

func sampleEntries() []Entry {
	return []Entry{
		{Slot: 0, Parent: -1, Children: []int64{1, 2, 9000}, Blocks: []uint32{0}, Length: 12},
		{Slot: 1, Parent: 0, Blocks: []uint32{1, 2}, Length: 20},
		{Slot: 2, Parent: 0},
	}
}

func TestDirectory_EncodeDecode(t *testing.T) {
	for _, codec := range []compress.Type{compress.None, compress.LZ4, compress.ZSTD, compress.Snappy} {
		t.Run(codec.String(), func(t *testing.T) {
			data, err := EncodeDirectory(sampleEntries(), codec)
			require.NoError(t, err)

			got, err := DecodeDirectory(data)
			require.NoError(t, err)
			assert.Equal(t, sampleEntries(), got)
		})
	}
}

func TestDirectory_Corrupt(t *testing.T) {
	data, err := EncodeDirectory(sampleEntries(), compress.None)
	require.NoError(t, err)

	flipped := append([]byte(nil), data...)
	flipped[len(flipped)-1] ^= 0xFF
	_, err = DecodeDirectory(flipped)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = DecodeDirectory(data[:len(data)-1])
	assert.ErrorIs(t, err, ErrCorrupt)

	badMagic := append([]byte(nil), data...)
	badMagic[0] = 0
	_, err = DecodeDirectory(badMagic)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = DecodeDirectory(nil)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestDirectory_WriteRead(t *testing.T) {
	dir := t.TempDir()

	p, err := Open[node](fs.Default, dir, 0, 4, 8, nil)
	require.NoError(t, err)

	entries, err := ReadDirectory(fs.Default, p)
	require.NoError(t, err)
	assert.Empty(t, entries)

	blocks, err := p.Store().FitBlockIDs(nil, 20)
	require.NoError(t, err)
	require.NoError(t, p.Store().WriteBlocks(blocks, make([]byte, 20)))

	want := []Entry{{Slot: 3, Parent: -1, Blocks: blocks, Length: 20}}
	require.NoError(t, WriteDirectory(fs.Default, p, want, compress.ZSTD))
	require.NoError(t, p.Close())

	p, err = Open[node](fs.Default, dir, 0, 4, 8, nil)
	require.NoError(t, err)
	defer p.Close()

	got, err := ReadDirectory(fs.Default, p)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 0, p.Store().FreeCount())
}

func TestDirectory_ReadRejectsInconsistentEntries(t *testing.T) {
	dir := t.TempDir()

	p, err := Open[node](fs.Default, dir, 0, 2, 8, nil)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, WriteDirectory(fs.Default, p, []Entry{{Slot: 5, Parent: -1}}, compress.None))
	_, err = ReadDirectory(fs.Default, p)
	assert.ErrorIs(t, err, ErrCorrupt)

	require.NoError(t, WriteDirectory(fs.Default, p, []Entry{{Slot: 0, Parent: -1, Length: 9}}, compress.None))
	_, err = ReadDirectory(fs.Default, p)
	assert.ErrorIs(t, err, ErrCorrupt)
}

package compress

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	compressible := bytes.Repeat([]byte("linkdb page directory "), 200)

	noise := make([]byte, 4096)
	rand.New(rand.NewSource(1)).Read(noise)

	for _, typ := range []Type{None, LZ4, ZSTD, Snappy} {
		t.Run(typ.String(), func(t *testing.T) {
			for _, data := range [][]byte{compressible, noise, {}} {
				enc, err := Encode(typ, data)
				require.NoError(t, err)

				dec, err := Decode(typ, enc)
				require.NoError(t, err)
				assert.Equal(t, len(data), len(dec))
				assert.True(t, bytes.Equal(data, dec))
			}
		})
	}
}

func TestEncode_Shrinks(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 8192)

	for _, typ := range []Type{LZ4, ZSTD, Snappy} {
		enc, err := Encode(typ, data)
		require.NoError(t, err)
		assert.Less(t, len(enc), len(data), typ.String())
		assert.NotZero(t, binary.LittleEndian.Uint32(enc[4:]), typ.String())
	}
}

func TestEncode_IncompressibleStoredRaw(t *testing.T) {
	noise := make([]byte, 1024)
	rand.New(rand.NewSource(2)).Read(noise)

	enc, err := Encode(ZSTD, noise)
	require.NoError(t, err)
	assert.Equal(t, HeaderSize+len(noise), len(enc))
	assert.Zero(t, binary.LittleEndian.Uint32(enc[4:]))
}

func TestDecode_Corrupt(t *testing.T) {
	_, err := Decode(LZ4, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrCorrupt)

	enc, err := Encode(LZ4, bytes.Repeat([]byte("x"), 512))
	require.NoError(t, err)

	_, err = Decode(LZ4, enc[:len(enc)-4])
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Decode(None, enc)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestParse(t *testing.T) {
	for _, typ := range []Type{None, LZ4, ZSTD, Snappy} {
		got, err := Parse(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}

	_, err := Parse("brotli")
	assert.Error(t, err)
	assert.False(t, Type(9).Valid())
}

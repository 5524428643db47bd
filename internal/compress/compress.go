// Package compress wraps the block codecs used for page directories.
//
// Every encoded buffer carries an 8-byte header:
//
//	[uncompressed size u32][compressed size u32][payload...]
//
// A compressed size of zero marks a raw payload. Encode stores raw when the
// codec saves less than 10% so that incompressible data costs only the header.
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type identifies a block codec.
type Type uint8

const (
	// None stores payloads raw.
	None Type = 0
	// LZ4 uses LZ4 block compression.
	LZ4 Type = 1
	// ZSTD uses Zstandard at the default level.
	ZSTD Type = 2
	// Snappy uses Snappy block compression.
	Snappy Type = 3
)

// HeaderSize is the size of the framing header.
const HeaderSize = 8

// ErrCorrupt is returned when a buffer cannot be decoded.
var ErrCorrupt = errors.New("compress: corrupt block")

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	case Snappy:
		return "snappy"
	default:
		return fmt.Sprintf("compress(%d)", uint8(t))
	}
}

// Valid reports whether t is a known codec.
func (t Type) Valid() bool {
	return t <= Snappy
}

// Parse maps a codec name back to its Type.
func Parse(name string) (Type, error) {
	switch name {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return ZSTD, nil
	case "snappy":
		return Snappy, nil
	default:
		return None, fmt.Errorf("compress: unknown codec %q", name)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Encode frames data with t. The result is always decodable by Decode with
// the same Type.
func Encode(t Type, data []byte) ([]byte, error) {
	var (
		compressed []byte
		err        error
	)

	switch t {
	case None:
	case LZ4:
		compressed, err = encodeLZ4(data)
	case ZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	case Snappy:
		compressed = snappy.Encode(nil, data)
	default:
		return nil, fmt.Errorf("compress: unknown codec %d", uint8(t))
	}
	if err != nil {
		return nil, err
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		out := make([]byte, HeaderSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		copy(out[HeaderSize:], data)
		return out, nil
	}

	out := make([]byte, HeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	copy(out[HeaderSize:], compressed)
	return out, nil
}

func encodeLZ4(data []byte) ([]byte, error) {
	buf := make([]byte, lz4.CompressBlockBound(len(data)))

	n, err := lz4.CompressBlock(data, buf, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil // incompressible
	}

	return buf[:n], nil
}

// Decode reverses Encode.
func Decode(t Type, data []byte) ([]byte, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: short header", ErrCorrupt)
	}

	size := binary.LittleEndian.Uint32(data[0:])
	csize := binary.LittleEndian.Uint32(data[4:])
	body := data[HeaderSize:]

	if csize == 0 {
		if uint64(len(body)) < uint64(size) {
			return nil, fmt.Errorf("%w: truncated raw payload", ErrCorrupt)
		}
		return body[:size], nil
	}
	if uint64(len(body)) < uint64(csize) {
		return nil, fmt.Errorf("%w: truncated payload", ErrCorrupt)
	}
	body = body[:csize]

	var (
		out []byte
		err error
	)

	switch t {
	case LZ4:
		out = make([]byte, size)
		var n int
		n, err = lz4.UncompressBlock(body, out)
		out = out[:max(n, 0)]
	case ZSTD:
		dec := getZstdDecoder()
		out, err = dec.DecodeAll(body, make([]byte, 0, size))
		zstdDecoderPool.Put(dec)
	case Snappy:
		out, err = snappy.Decode(make([]byte, size), body)
	default:
		return nil, fmt.Errorf("%w: payload is compressed but codec is %s", ErrCorrupt, t)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if uint32(len(out)) != size {
		return nil, fmt.Errorf("%w: size mismatch", ErrCorrupt)
	}

	return out, nil
}

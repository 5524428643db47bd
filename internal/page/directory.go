package page

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/hupe1980/linkdb/internal/compress"
	"github.com/hupe1980/linkdb/internal/fs"
	"github.com/hupe1980/linkdb/internal/hash"
)

const (
	directoryMagic   = 0x504b444c // "LDKP"
	directoryVersion = 1
	headerSize       = 16
)

// Entry is the persisted state of one occupied slot.
type Entry struct {
	Slot     int
	Parent   int64
	Children []int64
	Blocks   []uint32
	Length   int64
}

// EncodeDirectory serializes entries.
//
// Layout:
//
//	magic      u32
//	version    u16
//	codec      u8   (compress.Type of the frame)
//	reserved   u8
//	checksum   u32  CRC32C of the frame
//	frameLen   u32
//	frame      compress.Encode(codec, payload)
//
// The payload is a uvarint entry count followed by, per entry, the slot, the
// zig-zag parent gid, the child gids, the block ids and the byte length, all
// as varints.
func EncodeDirectory(entries []Entry, codec compress.Type) ([]byte, error) {
	payload := make([]byte, 0, 16+len(entries)*16)
	payload = binary.AppendUvarint(payload, uint64(len(entries)))

	for _, e := range entries {
		payload = binary.AppendUvarint(payload, uint64(e.Slot))
		payload = binary.AppendVarint(payload, e.Parent)

		payload = binary.AppendUvarint(payload, uint64(len(e.Children)))
		for _, c := range e.Children {
			payload = binary.AppendVarint(payload, c)
		}

		payload = binary.AppendUvarint(payload, uint64(len(e.Blocks)))
		for _, b := range e.Blocks {
			payload = binary.AppendUvarint(payload, uint64(b))
		}

		payload = binary.AppendVarint(payload, e.Length)
	}

	frame, err := compress.Encode(codec, payload)
	if err != nil {
		return nil, err
	}

	out := make([]byte, headerSize, headerSize+len(frame))
	binary.LittleEndian.PutUint32(out[0:], directoryMagic)
	binary.LittleEndian.PutUint16(out[4:], directoryVersion)
	out[6] = byte(codec)
	binary.LittleEndian.PutUint32(out[8:], hash.CRC32C(frame))
	binary.LittleEndian.PutUint32(out[12:], uint32(len(frame)))

	return append(out, frame...), nil
}

// DecodeDirectory parses the output of EncodeDirectory.
func DecodeDirectory(data []byte) ([]Entry, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: directory too short", ErrCorrupt)
	}
	if magic := binary.LittleEndian.Uint32(data[0:]); magic != directoryMagic {
		return nil, fmt.Errorf("%w: invalid magic %x", ErrCorrupt, magic)
	}
	if v := binary.LittleEndian.Uint16(data[4:]); v != directoryVersion {
		return nil, fmt.Errorf("%w: unsupported directory version %d", ErrCorrupt, v)
	}

	codec := compress.Type(data[6])
	checksum := binary.LittleEndian.Uint32(data[8:])
	frameLen := binary.LittleEndian.Uint32(data[12:])

	frame := data[headerSize:]
	if uint64(len(frame)) != uint64(frameLen) {
		return nil, fmt.Errorf("%w: directory frame length mismatch", ErrCorrupt)
	}
	if hash.CRC32C(frame) != checksum {
		return nil, fmt.Errorf("%w: directory checksum mismatch", ErrCorrupt)
	}

	payload, err := compress.Decode(codec, frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	r := reader{buf: payload}
	n := r.uvarint()
	if n > uint64(len(payload)) {
		return nil, fmt.Errorf("%w: implausible entry count %d", ErrCorrupt, n)
	}

	entries := make([]Entry, 0, n)
	for i := uint64(0); i < n && r.err == nil; i++ {
		var e Entry
		e.Slot = int(r.uvarint())
		e.Parent = r.varint()

		if nc := r.count(); nc > 0 {
			e.Children = make([]int64, nc)
			for j := range e.Children {
				e.Children[j] = r.varint()
			}
		}
		if nb := r.count(); nb > 0 {
			e.Blocks = make([]uint32, nb)
			for j := range e.Blocks {
				e.Blocks[j] = uint32(r.uvarint())
			}
		}
		e.Length = r.varint()

		entries = append(entries, e)
	}

	if r.err != nil {
		return nil, r.err
	}
	return entries, nil
}

type reader struct {
	buf []byte
	err error
}

func (r *reader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf)
	if n <= 0 {
		r.err = fmt.Errorf("%w: truncated directory entry", ErrCorrupt)
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

func (r *reader) varint() int64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.buf)
	if n <= 0 {
		r.err = fmt.Errorf("%w: truncated directory entry", ErrCorrupt)
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

// count reads a length prefix, bounded by the remaining bytes.
func (r *reader) count() int {
	n := r.uvarint()
	if n > uint64(len(r.buf)) {
		if r.err == nil {
			r.err = fmt.Errorf("%w: implausible length %d", ErrCorrupt, n)
		}
		return 0
	}
	return int(n)
}

// WriteDirectory atomically replaces the directory file of p.
func WriteDirectory[T any](fsys fs.FileSystem, p *Page[T], entries []Entry, codec compress.Type) error {
	data, err := EncodeDirectory(entries, codec)
	if err != nil {
		return err
	}
	if err := fs.WriteFileAtomic(fsys, p.DirectoryPath(), data); err != nil {
		return &IOError{Page: p.id, Op: "write directory", Err: err}
	}
	return nil
}

// ReadDirectory reads the directory file of p and claims every listed block
// in p's store. A missing file yields no entries; a page whose directory was
// never written has no live slots.
func ReadDirectory[T any](fsys fs.FileSystem, p *Page[T]) ([]Entry, error) {
	if _, err := fsys.Stat(p.DirectoryPath()); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &IOError{Page: p.id, Op: "stat directory", Err: err}
	}

	data, err := fs.ReadFile(fsys, p.DirectoryPath())
	if err != nil {
		return nil, &IOError{Page: p.id, Op: "read directory", Err: err}
	}

	entries, err := DecodeDirectory(data)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", p.id, err)
	}

	for _, e := range entries {
		if e.Slot < 0 || e.Slot >= p.capacity {
			return nil, fmt.Errorf("%w: page %d slot %d beyond capacity %d", ErrCorrupt, p.id, e.Slot, p.capacity)
		}
		if e.Length < 0 || p.store.BlocksFor(e.Length) != len(e.Blocks) {
			return nil, fmt.Errorf("%w: page %d slot %d length %d does not match %d blocks", ErrCorrupt, p.id, e.Slot, e.Length, len(e.Blocks))
		}
		if err := p.store.Reserve(e.Blocks); err != nil {
			return nil, err
		}
	}

	return entries, nil
}

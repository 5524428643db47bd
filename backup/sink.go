package backup

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/hupe1980/linkdb/internal/fs"
)

// Sink stores a finished archive under name.
type Sink interface {
	Put(ctx context.Context, name string, r io.Reader) error
}

// FileSink writes archives to the local file system. name is a file path.
type FileSink struct {
	fs fs.FileSystem
}

// NewFileSink returns a FileSink on fsys, or on the local file system if
// fsys is nil.
func NewFileSink(fsys fs.FileSystem) *FileSink {
	if fsys == nil {
		fsys = fs.Default
	}
	return &FileSink{fs: fsys}
}

// Put writes r to a temporary sibling of name and renames it into place.
func (s *FileSink) Put(ctx context.Context, name string, r io.Reader) error {
	if err := s.fs.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return err
	}

	tmp := name + ".tmp"
	f, err := s.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	fail := func(err error) error {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return err
	}

	if _, err := io.Copy(f, ctxReader{ctx: ctx, r: r}); err != nil {
		return fail(err)
	}
	if err := f.Sync(); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	return s.fs.Rename(tmp, name)
}

// ctxReader stops reading once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

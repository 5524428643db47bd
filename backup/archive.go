package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"

	"github.com/hupe1980/linkdb/internal/fs"
)

// ErrNotEmpty is returned by Restore when the target directory has files.
var ErrNotEmpty = errors.New("backup: target directory is not empty")

// skipped reports whether a directory entry is left out of archives.
func skipped(name string) bool {
	return name == "LOCK" || strings.HasSuffix(name, ".tmp")
}

// Archive writes every regular file of dir into a zip archive on w and
// returns the number of files written.
func Archive(ctx context.Context, fsys fs.FileSystem, dir string, w io.Writer) (int, error) {
	if fsys == nil {
		fsys = fs.Default
	}

	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor(zstd.WithEncoderLevel(zstd.SpeedDefault)))

	files := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return files, err
		}
		if !e.Type().IsRegular() || skipped(e.Name()) {
			continue
		}

		if err := addFile(zw, fsys, dir, e.Name()); err != nil {
			return files, fmt.Errorf("backup: %s: %w", e.Name(), err)
		}
		files++
	}

	if err := zw.Close(); err != nil {
		return files, err
	}
	return files, nil
}

func addFile(zw *zip.Writer, fsys fs.FileSystem, dir, name string) error {
	f, err := fsys.OpenFile(path.Join(dir, name), os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	hdr := &zip.FileHeader{
		Name:   name,
		Method: zstd.ZipMethodWinZip,
	}
	hdr.Modified = info.ModTime()
	hdr.SetMode(info.Mode())

	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}

	_, err = io.Copy(dst, f)
	return err
}

// Restore unpacks an archive produced by Archive into dir, which must be
// empty or absent. It returns the number of files restored.
func Restore(ctx context.Context, fsys fs.FileSystem, r io.ReaderAt, size int64, dir string) (int, error) {
	if fsys == nil {
		fsys = fs.Default
	}

	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	existing, err := fsys.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, ErrNotEmpty
	}

	zr, err := zip.NewReader(r, size)
	if err != nil {
		return 0, err
	}
	zr.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())

	files := 0
	for _, zf := range zr.File {
		if err := ctx.Err(); err != nil {
			return files, err
		}

		name := zf.Name
		if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
			return files, fmt.Errorf("backup: invalid entry name %q", name)
		}

		if err := extractFile(fsys, zf, path.Join(dir, name)); err != nil {
			return files, fmt.Errorf("backup: %s: %w", name, err)
		}
		files++
	}
	return files, nil
}

func extractFile(fsys fs.FileSystem, zf *zip.File, target string) error {
	src, err := zf.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := fsys.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return err
	}
	if err := dst.Sync(); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

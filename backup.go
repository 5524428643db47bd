package linkdb

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/linkdb/backup"
	"github.com/hupe1980/linkdb/internal/resource"
)

// SaveAndBackup saves the database and writes a zip archive of its
// directory to path. No other operation runs until the archive is complete.
func (db *DB) SaveAndBackup(ctx context.Context, path string) error {
	return db.SaveAndBackupTo(ctx, backup.NewFileSink(db.fs), path)
}

// SaveAndBackupTo is like SaveAndBackup but streams the archive to sink
// under name.
func (db *DB) SaveAndBackupTo(ctx context.Context, sink backup.Sink, name string) error {
	release := db.coord.Maintenance()
	defer release()

	if db.closed.Load() {
		return ErrClosed
	}

	if err := db.saveLocked(); err != nil {
		return &DatabaseError{Op: "backup", Dir: db.dir, Err: err}
	}

	start := time.Now()
	n, err := db.archive(ctx, sink, name)

	db.metrics.OnBackup(time.Since(start), n, err)
	db.logger.LogBackup(ctx, name, n, err)

	if err != nil {
		return &DatabaseError{Op: "backup", Dir: db.dir, Err: err}
	}
	return nil
}

func (db *DB) archive(ctx context.Context, sink backup.Sink, name string) (int64, error) {
	pr, pw := io.Pipe()
	cw := &countingWriter{w: resource.NewRateLimitedWriter(ctx, pw, db.rc)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := backup.Archive(gctx, db.fs, db.dir, cw)
		_ = pw.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		err := sink.Put(gctx, name, pr)
		_ = pr.CloseWithError(err)
		return err
	})

	err := g.Wait()
	return cw.n.Load(), err
}

type countingWriter struct {
	w io.Writer
	n atomic.Int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n.Add(int64(n))
	return n, err
}

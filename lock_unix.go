//go:build unix

package linkdb

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/hupe1980/linkdb/internal/fs"
)

// LockFileName is the lock file inside a database directory.
const LockFileName = "LOCK"

// dirLock holds an exclusive advisory lock on a database directory.
type dirLock struct {
	f  fs.File
	fd int
}

// lockDir takes the directory lock without blocking. The lock file is
// opened through fsys; a file system whose files have no OS descriptor
// gets no advisory lock.
func lockDir(fsys fs.FileSystem, dir string) (*dirLock, error) {
	f, err := fsys.OpenFile(filepath.Join(dir, LockFileName), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	fd, ok := fs.Fd(f)
	if !ok {
		return &dirLock{f: f, fd: -1}, nil
	}

	if err := unix.Flock(int(fd), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("lock %s: %w", dir, err)
	}

	return &dirLock{f: f, fd: int(fd)}, nil
}

func (l *dirLock) release() error {
	if l == nil || l.f == nil {
		return nil
	}
	if l.fd >= 0 {
		_ = unix.Flock(l.fd, unix.LOCK_UN)
	}
	err := l.f.Close()
	l.f = nil
	return err
}

//go:build !unix

package linkdb

import "github.com/hupe1980/linkdb/internal/fs"

// LockFileName is the lock file inside a database directory.
const LockFileName = "LOCK"

// dirLock is a no-op on platforms without flock.
type dirLock struct{}

func lockDir(fs.FileSystem, string) (*dirLock, error) { return &dirLock{}, nil }

func (*dirLock) release() error { return nil }

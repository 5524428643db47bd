//go:build unix

package linkdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/linkdb/internal/fs"
)

func TestDirectoryLock(t *testing.T) {
	db, dir := newTestDB(t, 4, 32, 1024)

	_, err := Open(dir)
	assert.ErrorIs(t, err, ErrLocked)

	_, err = Create(dir, 4, 32, 1024)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, db.Close())

	db, err = Open(dir)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestDirectoryLock_ThroughFileSystem(t *testing.T) {
	db, dir := newTestDB(t, 4, 32, 1024)
	require.NoError(t, db.Close())

	faulty := fs.NewFaultyFS(nil)
	faulty.AddRule(LockFileName, fs.Fault{FailAfterBytes: -1, FailOnOpen: true})

	_, err := Open(dir, WithFileSystem(faulty))
	require.ErrorIs(t, err, fs.ErrInjected)
	assert.Equal(t, int64(1), faulty.Injected())

	// A wrapped lock file still holds the OS lock.
	faulty.ClearRules()
	db, err = Open(dir, WithFileSystem(faulty))
	require.NoError(t, err)

	_, err = Open(dir)
	assert.ErrorIs(t, err, ErrLocked)
	require.NoError(t, db.Close())
}

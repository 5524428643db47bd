package linkdb

import (
	"errors"
	"fmt"

	"github.com/hupe1980/linkdb/internal/compress"
	"github.com/hupe1980/linkdb/internal/page"
)

var (
	// ErrClosed is returned by every operation on a closed database.
	ErrClosed = errors.New("linkdb: database closed")
	// ErrNotExist is returned by Open when the directory holds no database.
	ErrNotExist = errors.New("linkdb: database does not exist")
	// ErrExist is returned by Create when the directory already holds a database.
	ErrExist = errors.New("linkdb: database already exists")
	// ErrRemoved is returned by operations on a removed link.
	ErrRemoved = errors.New("linkdb: link removed")
	// ErrRootLink is returned when removing the root link.
	ErrRootLink = errors.New("linkdb: root link cannot be removed")
	// ErrUnknownType is returned when an item type or tag is not registered.
	ErrUnknownType = errors.New("linkdb: unknown item type")
	// ErrCorrupt is returned when persisted state cannot be decoded.
	ErrCorrupt = errors.New("linkdb: corrupt data")
	// ErrInvalidConfig is returned for invalid creation parameters or a
	// configuration document that does not match the options.
	ErrInvalidConfig = errors.New("linkdb: invalid configuration")
	// ErrInvalidRegistration is returned by Registry.Register.
	ErrInvalidRegistration = errors.New("linkdb: invalid item registration")
	// ErrLocked is returned when another instance holds the directory.
	ErrLocked = errors.New("linkdb: database directory is locked")
)

// DatabaseError is a whole-database failure (open, create, save, close,
// backup).
type DatabaseError struct {
	Op  string
	Dir string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("linkdb: %s %s: %v", e.Op, e.Dir, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// AllocationError is a failure while creating a link.
type AllocationError struct {
	GID  int64
	Page int
	Err  error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("linkdb: allocate gid %d on page %d: %v", e.GID, e.Page, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }

// BlockError is a read or write failure against a page block file.
type BlockError struct {
	Page int
	Op   string
	Err  error
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("linkdb: page %d: block %s: %v", e.Page, e.Op, e.Err)
}

func (e *BlockError) Unwrap() error { return e.Err }

// ItemError is an item codec failure.
type ItemError struct {
	GID int64
	Tag string
	Err error
}

func (e *ItemError) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("linkdb: item %d: %v", e.GID, e.Err)
	}
	return fmt.Sprintf("linkdb: item %d (%s): %v", e.GID, e.Tag, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// translateError maps errors of the internal layers onto the public taxonomy.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var ioErr *page.IOError
	if errors.As(err, &ioErr) {
		return &BlockError{Page: ioErr.Page, Op: ioErr.Op, Err: err}
	}

	if errors.Is(err, page.ErrCorrupt) || errors.Is(err, compress.ErrCorrupt) {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	return err
}

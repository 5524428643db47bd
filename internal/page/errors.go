package page

import (
	"errors"
	"fmt"
)

var (
	// ErrCorrupt is returned when on-disk page state is inconsistent.
	ErrCorrupt = errors.New("page: corrupt")
	// ErrSlotInUse is returned when setting an occupied slot.
	ErrSlotInUse = errors.New("page: slot in use")
	// ErrOutOfRange is returned for slot indices outside the page capacity.
	ErrOutOfRange = errors.New("page: slot out of range")
)

// IOError reports a failure against a page's backing files.
type IOError struct {
	Page int
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("page %d: %s: %v", e.Page, e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

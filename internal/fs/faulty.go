package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrInjected is the default error returned by injected faults.
var ErrInjected = errors.New("injected fault error")

// Fault describes how files matching a rule misbehave.
type Fault struct {
	FailAfterBytes int64 // writes fail once this many bytes were written to the file; -1 disables
	FailOnRead     bool
	FailOnSync     bool
	FailOnClose    bool
	FailOnOpen     bool
	FailOnTruncate bool
	FailOnRename   bool // applies when the rename target matches
	Err            error
}

// FaultyFS wraps a FileSystem and injects faults into files whose path
// contains a rule's pattern. Rules are evaluated when a file is opened or
// renamed; files opened earlier keep the fault they were opened with.
type FaultyFS struct {
	FS FileSystem

	mu       sync.Mutex
	rules    map[string]Fault
	injected atomic.Int64
}

// NewFaultyFS wraps fs, or Default if fs is nil.
func NewFaultyFS(fs FileSystem) *FaultyFS {
	if fs == nil {
		fs = Default
	}
	return &FaultyFS{
		FS:    fs,
		rules: make(map[string]Fault),
	}
}

// AddRule injects fault into files whose path contains pattern.
func (f *FaultyFS) AddRule(pattern string, fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules[pattern] = fault
}

// ClearRules removes all rules.
func (f *FaultyFS) ClearRules() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.rules)
}

// Injected returns the number of faults injected so far.
func (f *FaultyFS) Injected() int64 {
	return f.injected.Load()
}

func (f *FaultyFS) faultFor(name string) Fault {
	f.mu.Lock()
	defer f.mu.Unlock()

	fault := Fault{FailAfterBytes: -1}
	for pattern, rule := range f.rules {
		if strings.Contains(name, pattern) {
			fault = rule
			break
		}
	}
	if fault.Err == nil {
		fault.Err = ErrInjected
	}
	return fault
}

func (f *FaultyFS) inject(err error) error {
	f.injected.Add(1)
	return err
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	fault := f.faultFor(name)
	if fault.FailOnOpen {
		return nil, f.inject(fault.Err)
	}

	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: file, fs: f, fault: fault}, nil
}

func (f *FaultyFS) Rename(oldpath, newpath string) error {
	if fault := f.faultFor(newpath); fault.FailOnRename {
		return f.inject(fault.Err)
	}
	return f.FS.Rename(oldpath, newpath)
}

func (f *FaultyFS) Remove(name string) error                     { return f.FS.Remove(name) }
func (f *FaultyFS) Stat(name string) (os.FileInfo, error)        { return f.FS.Stat(name) }
func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error { return f.FS.MkdirAll(path, perm) }
func (f *FaultyFS) ReadDir(name string) ([]os.DirEntry, error)   { return f.FS.ReadDir(name) }

type faultyFile struct {
	File
	fs    *FaultyFS
	fault Fault

	written atomic.Int64
}

// Unwrap returns the wrapped file.
func (ff *faultyFile) Unwrap() File { return ff.File }

func (ff *faultyFile) checkWrite(n int) error {
	if ff.fault.FailAfterBytes < 0 {
		return nil
	}
	if ff.written.Add(int64(n)) > ff.fault.FailAfterBytes {
		ff.written.Add(-int64(n))
		return ff.fs.inject(ff.fault.Err)
	}
	return nil
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	if err := ff.checkWrite(len(p)); err != nil {
		return 0, err
	}
	return ff.File.Write(p)
}

func (ff *faultyFile) WriteAt(p []byte, off int64) (int, error) {
	if err := ff.checkWrite(len(p)); err != nil {
		return 0, err
	}
	return ff.File.WriteAt(p, off)
}

func (ff *faultyFile) Read(p []byte) (int, error) {
	if ff.fault.FailOnRead {
		return 0, ff.fs.inject(ff.fault.Err)
	}
	return ff.File.Read(p)
}

func (ff *faultyFile) ReadAt(p []byte, off int64) (int, error) {
	if ff.fault.FailOnRead {
		return 0, ff.fs.inject(ff.fault.Err)
	}
	return ff.File.ReadAt(p, off)
}

func (ff *faultyFile) Truncate(size int64) error {
	if ff.fault.FailOnTruncate {
		return ff.fs.inject(ff.fault.Err)
	}
	return ff.File.Truncate(size)
}

func (ff *faultyFile) Sync() error {
	if ff.fault.FailOnSync {
		return ff.fs.inject(ff.fault.Err)
	}
	return ff.File.Sync()
}

func (ff *faultyFile) Close() error {
	err := ff.File.Close()
	if ff.fault.FailOnClose {
		return ff.fs.inject(ff.fault.Err)
	}
	return err
}

package ioutils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// EnsureDir creates a directory and all parent directories if they don't exist.
//
// Directories are created with mode 0755 (rwxr-xr-x).
// If the directory already exists, no error is returned.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// EnsureWritableDir creates path if needed and proves it accepts new files
// by creating and removing a probe file.
func EnsureWritableDir(path string) error {
	if err := EnsureDir(path); err != nil {
		return err
	}
	probe, err := os.CreateTemp(path, ".probe-*")
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %w", path, err)
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}

// FileSize returns the size of a regular file, or false if path is missing
// or not a regular file.
func FileSize(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return 0, false
	}
	return info.Size(), true
}

// AtomicFile is a temporary file that replaces its destination only on Commit.
// Readers of the destination never observe a partially written file.
//
// Example:
//
//	f, err := NewAtomicFile("/media/abc.jpg")
//	if err != nil { ... }
//	defer f.Abort()
//	if _, err := io.Copy(f, body); err != nil { return err }
//	return f.Commit()
type AtomicFile struct {
	*os.File
	dest string
	done bool
}

// NewAtomicFile creates a temporary file next to dest.
func NewAtomicFile(dest string) (*AtomicFile, error) {
	dir := filepath.Dir(dest)
	if err := EnsureDir(dir); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return nil, err
	}
	return &AtomicFile{File: f, dest: dest}, nil
}

// Commit flushes the temporary file and renames it over the destination.
func (f *AtomicFile) Commit() error {
	if f.done {
		return os.ErrClosed
	}
	f.done = true

	if err := f.File.Sync(); err != nil {
		f.File.Close()
		os.Remove(f.File.Name())
		return err
	}
	if err := f.File.Close(); err != nil {
		os.Remove(f.File.Name())
		return err
	}
	if err := os.Chmod(f.File.Name(), 0644); err != nil {
		os.Remove(f.File.Name())
		return err
	}
	if err := os.Rename(f.File.Name(), f.dest); err != nil {
		os.Remove(f.File.Name())
		return err
	}
	return nil
}

// Abort discards the temporary file. It is a no-op after Commit.
func (f *AtomicFile) Abort() {
	if f.done {
		return
	}
	f.done = true
	f.File.Close()
	os.Remove(f.File.Name())
}

// WriteFileAtomic writes data to path through an AtomicFile.
func WriteFileAtomic(path string, data []byte) error {
	f, err := NewAtomicFile(path)
	if err != nil {
		return err
	}
	defer f.Abort()

	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Commit()
}

// CopyAtomic streams r into path through an AtomicFile and returns the byte count.
func CopyAtomic(path string, r io.Reader) (int64, error) {
	f, err := NewAtomicFile(path)
	if err != nil {
		return 0, err
	}
	defer f.Abort()

	n, err := io.Copy(f, r)
	if err != nil {
		return n, err
	}
	return n, f.Commit()
}

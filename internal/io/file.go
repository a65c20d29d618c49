package ioutils

import (
	"errors"
	"io/fs"
	"os"
)

// EnsureDir creates a directory and all parent directories if they don't exist.
//
// Directories are created with mode 0755 (rwxr-xr-x).
// If the directory already exists, no error is returned.
//
// Example:
//
//	err := EnsureDir("/downloads/gallery-1234")
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// ErrNotRegular is returned by IsRegularFile when path exists but is not a
// regular file.
var ErrNotRegular = errors.New("not a regular file")

// IsRegularFile reports whether a regular file exists at path.
//
// A missing path yields false and no error. A directory or other special
// file yields ErrNotRegular, and any other stat failure is returned as is,
// so callers never mistake a path they could not inspect for a finished
// download.
func IsRegularFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if !info.Mode().IsRegular() {
		return false, &fs.PathError{Op: "stat", Path: path, Err: ErrNotRegular}
	}
	return true, nil
}

// RemoveIfExists deletes path, ignoring a missing file.
func RemoveIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

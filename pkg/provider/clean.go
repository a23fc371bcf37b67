package provider

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Clean empties path. A regular file is deleted. A directory has its contents
// removed children-first: every file not starting with "." is deleted and
// every subdirectory is removed once emptied. The directory itself is kept.
// Anything else, including a path that does not exist, is left alone.
//
// A failure on one entry does not stop the walk: every other entry is still
// visited, and the failures are joined into the returned error. A
// subdirectory holding a hidden file cannot be removed, so cleaning it fails.
func Clean(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	switch {
	case info.Mode().IsRegular():
		return os.Remove(path)
	case info.IsDir():
		return cleanDir(path)
	}
	return nil
}

// Rm removes path entirely: Clean, then remove the directory itself. When
// hidden files survive the clean, removing the directory fails with the
// underlying "directory not empty" error.
func Rm(path string) error {
	if err := Clean(path); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil
	}
	return os.Remove(path)
}

func cleanDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var errs []error
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if err = cleanDir(path); err != nil {
				errs = append(errs, err)
			}
			if err = os.Remove(path); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		// Symlinks are unlinked, never followed.
		if !entry.Type().IsRegular() && entry.Type()&os.ModeSymlink == 0 {
			continue
		}
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if err = os.Remove(path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

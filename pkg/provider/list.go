package provider

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

// GetList returns the names of all templates under the root, relative to it,
// slash-separated and sorted. Files and directories whose name begins with a
// dot are skipped. If extensions are given ("tpl" or ".tpl"), only names with
// one of those extensions are returned. Symlinks are listed only when they
// resolve to a regular file inside the root. Subdirectories that cannot be
// read for lack of permission are skipped.
func (p *Provider) GetList(extensions ...string) ([]string, error) {
	suffixes := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
		if ext != "" {
			suffixes = append(suffixes, "."+ext)
		}
	}

	names := []string{}
	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path != p.root && errors.Is(err, fs.ErrPermission) {
				p.logger.Debug("Skipping unreadable path", "path", path, "error", err)
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			return err
		}
		if path == p.root {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(p.root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if !hasSuffix(name, suffixes) {
			return nil
		}

		switch {
		case d.Type().IsRegular():
			names = append(names, name)
		case d.Type()&fs.ModeSymlink != 0:
			if _, _, err := p.resolve(rel); err == nil {
				names = append(names, name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list templates in %s: %w", p.root, err)
	}

	slices.Sort(names)
	return names, nil
}

func hasSuffix(name string, suffixes []string) bool {
	if len(suffixes) == 0 {
		return true
	}
	for _, suffix := range suffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// Package fsutil provides file system utility functions.
package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

// ErrEmptyExtension is returned when no extension is given.
var ErrEmptyExtension = errors.New("extension must not be empty")

// FindFilesByExtension recursively searches root for files ending with
// extension and returns their paths in lexical order. A root that is itself
// a matching file is returned as the only result.
func FindFilesByExtension(root string, extension string) ([]string, error) {
	if extension == "" {
		return nil, ErrEmptyExtension
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), extension) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(files)
	return files, nil
}

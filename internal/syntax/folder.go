package syntax

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// loadConcurrency bounds how many syntax files are parsed at once.
const loadConcurrency = 8

// AddFromFolder loads every `.sublime-syntax` under folder into the
// builder. Files are parsed concurrently but added in path order, so the
// resulting set is deterministic.
func (b *Builder) AddFromFolder(folder string, linesIncludeNewline bool) error {
	var paths []string
	err := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".sublime-syntax") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(paths)

	defs := make([]*Definition, len(paths))
	var g errgroup.Group
	g.SetLimit(loadConcurrency)
	for i, path := range paths {
		g.Go(func() error {
			def, err := LoadDefinitionFile(path, linesIncludeNewline)
			if err != nil {
				return err
			}
			defs[i] = def
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, def := range defs {
		b.AddWithPath(def, filepath.ToSlash(paths[i]))
	}
	return nil
}

// LoadDefinitionFile reads and parses one syntax file; the file stem is
// the fallback name for grammars without a name key.
func LoadDefinitionFile(path string, linesIncludeNewline bool) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	def, err := loadDefinition(string(data), linesIncludeNewline, stem)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// LoadSetFromFolder is the convenience path: builder, folder, plain text
// fallback, build.
func LoadSetFromFolder(folder string, linesIncludeNewline bool) (*Set, error) {
	b := NewBuilder()
	if err := b.AddPlainTextSyntax(); err != nil {
		return nil, err
	}
	if err := b.AddFromFolder(folder, linesIncludeNewline); err != nil {
		return nil, err
	}
	return b.Build()
}

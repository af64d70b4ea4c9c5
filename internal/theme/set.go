package theme

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Set is a collection of themes keyed by file stem.
type Set struct {
	Themes map[string]*Theme
}

// LoadFile parses one `.tmTheme` file.
func LoadFile(path string) (*Theme, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// LoadSetFromFolder loads every `.tmTheme` under folder, keyed by file
// stem.
func LoadSetFromFolder(folder string) (*Set, error) {
	var paths []string
	err := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".tmTheme") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	themes := make([]*Theme, len(paths))
	var g errgroup.Group
	g.SetLimit(8)
	for i, path := range paths {
		g.Go(func() error {
			t, err := LoadFile(path)
			if err != nil {
				return err
			}
			themes[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	set := &Set{Themes: make(map[string]*Theme, len(paths))}
	for i, path := range paths {
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		set.Themes[stem] = themes[i]
	}
	return set, nil
}

// Names lists the theme keys in sorted order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.Themes))
	for name := range s.Themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package session

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// FileExt is the extension of saved agent files.
const FileExt = ".bot"

// FileStore keeps each save as "<dir>/<name>.bot".
type FileStore struct {
	fs  afero.Fs
	dir string
}

// NewFileStore creates a store rooted at dir on fsys.
func NewFileStore(fsys afero.Fs, dir string) *FileStore {
	if dir == "" {
		dir = "."
	}
	return &FileStore{fs: fsys, dir: dir}
}

func (s *FileStore) path(name string) string {
	return path.Join(s.dir, strings.TrimSuffix(name, FileExt)+FileExt)
}

// Save writes data to the file for name, creating the directory if needed.
func (s *FileStore) Save(name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.path(name), data, 0o644); err != nil {
		return fmt.Errorf("write session %s: %w", name, err)
	}
	return nil
}

// Load reads the file for name. Both "name" and "name.bot" are accepted.
func (s *FileStore) Load(name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", name, err)
	}
	return data, nil
}

// List returns the saved names, without extension, in lexical order.
func (s *FileStore) List() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), FileExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), FileExt))
	}
	sort.Strings(names)
	return names, nil
}

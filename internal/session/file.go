package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

var errNoPath = errors.New("session file path is empty")

// FileBackend stores State as JSON in a user-only file.
type FileBackend struct {
	path string
}

// DefaultPath is $XDG_CONFIG_HOME/ewaste/session.json (or the OS equivalent).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "ewaste", "session.json"), nil
}

func NewFileBackend(path string) (*FileBackend, error) {
	if path == "" {
		return nil, errNoPath
	}
	return &FileBackend{path: path}, nil
}

func (f *FileBackend) Path() string { return f.path }

// Load returns the empty state when the file does not exist yet.
func (f *FileBackend) Load() (State, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, err
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return State{}, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return st, nil
}

// Save writes through a temp file and rename so a crash never leaves a
// truncated session behind.
func (f *FileBackend) Save(st State) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

func (f *FileBackend) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

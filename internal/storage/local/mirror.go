// Package local mirrors harvested documents into a directory tree.
package local

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultDirMode matches the permissions of directories in the mirror.
	DefaultDirMode os.FileMode = 0o755
	// DefaultFileMode is used for written documents.
	DefaultFileMode os.FileMode = 0o644
)

// ErrPathEscapesRoot is returned for paths resolving outside the mirror root.
var ErrPathEscapesRoot = errors.New("path escapes mirror root")

// Config captures the parameters for the mirror.
type Config struct {
	// Root is the directory documents are written below.
	Root     string `mapstructure:"root"`
	DirMode  os.FileMode
	FileMode os.FileMode
}

// Mirror writes documents below a root directory.
type Mirror struct {
	root     string
	dirMode  os.FileMode
	fileMode os.FileMode
}

// New creates the root directory if needed. Re-using an existing root is fine.
func New(cfg Config) (*Mirror, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	dirMode := cfg.DirMode
	if dirMode == 0 {
		dirMode = DefaultDirMode
	}
	fileMode := cfg.FileMode
	if fileMode == 0 {
		fileMode = DefaultFileMode
	}

	if err := os.MkdirAll(cfg.Root, dirMode); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}
	info, err := os.Stat(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory")
	}

	return &Mirror{
		root:     filepath.Clean(cfg.Root),
		dirMode:  dirMode,
		fileMode: fileMode,
	}, nil
}

// Root returns the cleaned root directory.
func (m *Mirror) Root() string {
	return m.root
}

// EnsureDir creates dir below the root and returns its full path.
func (m *Mirror) EnsureDir(dir string) (string, error) {
	full, err := m.resolve(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(full, m.dirMode); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	return full, nil
}

// WriteFile writes data to path below the root, replacing any previous file.
// The parent directory must already exist.
func (m *Mirror) WriteFile(path string, data []byte) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	full, err := m.resolve(path)
	if err != nil {
		return "", err
	}
	if full == m.root {
		return "", fmt.Errorf("path is required")
	}
	if err := os.WriteFile(full, data, m.fileMode); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return full, nil
}

func (m *Mirror) resolve(rel string) (string, error) {
	full := filepath.Clean(filepath.Join(m.root, rel))
	if full != m.root && !strings.HasPrefix(full, m.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathEscapesRoot, rel)
	}
	return full, nil
}

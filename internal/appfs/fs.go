// Package appfs lays out qrscan's files under the application directory,
// ~/.config/qrscan by default.
package appfs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	ConfigDir      = ".config/qrscan"
	ConfigFile     = "config.yaml"
	DefaultDBFile  = "scans.db"
	DefaultExports = "exports"
	LogFile        = "qrscan.log"
)

// AppFS is a filesystem rooted at the application directory.
type AppFS struct {
	root string
}

// New creates an AppFS rooted at ~/.config/qrscan, creating it if needed.
func New() (*AppFS, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}

	root := filepath.Join(homeDir, ConfigDir)
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", root, err)
	}
	return &AppFS{root: root}, nil
}

// NewWithRoot creates an AppFS with a custom root (for testing)
func NewWithRoot(root string) *AppFS {
	return &AppFS{root: root}
}

// Root returns the root directory path
func (a *AppFS) Root() string {
	return a.root
}

// Resolve maps a configured path to a real one. Empty uses def under the root,
// an absolute path is used as is, and a relative path is taken as relative to
// the root.
func (a *AppFS) Resolve(p, def string) string {
	switch {
	case p == "":
		return filepath.Join(a.root, def)
	case strings.HasPrefix(p, "~/"):
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
		return filepath.Join(a.root, p[2:])
	case filepath.IsAbs(p):
		return p
	default:
		return filepath.Join(a.root, p)
	}
}

// ConfigPath returns the config file path.
func (a *AppFS) ConfigPath() string {
	return filepath.Join(a.root, ConfigFile)
}

// DBPath returns the SQLite database path for a configured value and makes
// sure its directory exists.
func (a *AppFS) DBPath(configured string) (string, error) {
	p := a.Resolve(configured, DefaultDBFile)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	return p, nil
}

// ExportDir returns the export directory for a configured value and makes
// sure it exists.
func (a *AppFS) ExportDir(configured string) (string, error) {
	p := a.Resolve(configured, DefaultExports)
	if err := os.MkdirAll(p, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	return p, nil
}

// OpenLog opens the log file for appending.
func (a *AppFS) OpenLog() (*os.File, error) {
	if err := os.MkdirAll(a.root, 0755); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(a.root, LogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

// Exports lists exported files in dir, newest name last.
func (a *AppFS) Exports(dir string) ([]string, error) {
	entries, err := fs.ReadDir(os.DirFS(dir), ".")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read export directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Package dotdir resolves the .recall/ directory that holds config.toml and,
// by default, the memory index database.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the recall directory.
	dirName = ".recall"

	// dbName is the default database file inside the directory.
	dbName = "recall.sqlite"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .recall/ directory.
// Order of precedence is as follows:
//  1. Provided override
//  2. Local ./.recall/ dir
//  3. Home ~/.recall/ dir, created when missing
func (m *Manager) Target(overrideDir string) (string, error) {
	var dir string

	switch {
	case overrideDir != "":
		dir = overrideDir

	case m.localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, dirName)

	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, dirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating recall directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// DatabasePath returns the default sqlite path inside the resolved directory.
func (m *Manager) DatabasePath(overrideDir string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, dbName), nil
}

// localDirExists checks whether a .recall/ directory exists in the current
// working directory.
func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, dirName))
	return err == nil && info.IsDir()
}

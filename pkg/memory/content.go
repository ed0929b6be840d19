package memory

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Files resolves record file paths against a root directory. With a Root
// set, paths must stay inside it: relative paths may not climb out and
// absolute paths must point below Root. Without a Root paths are used as
// given, which is how one-shot CLI commands address files.
type Files struct {
	Root string
}

// Resolve returns the on-disk path for a record's FilePath, or an invalid
// argument error when it escapes Root.
func (f Files) Resolve(path string) (string, error) {
	if f.Root == "" {
		return filepath.Clean(path), nil
	}
	rel, err := f.local(path)
	if err != nil {
		return "", err
	}
	return filepath.Join(f.Root, rel), nil
}

// Validate reports whether path may be stored for later reads.
func (f Files) Validate(path string) error {
	_, err := f.Resolve(path)
	return err
}

// Read returns the content at path. With a Root set the file is opened
// through an os.Root, so symlinks cannot lead outside it either.
func (f Files) Read(path string) (string, error) {
	if f.Root == "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return "", fmt.Errorf("reading memory file %q: %w", path, err)
		}
		return string(data), nil
	}

	rel, err := f.local(path)
	if err != nil {
		return "", err
	}
	root, err := os.OpenRoot(f.Root)
	if err != nil {
		return "", fmt.Errorf("opening memory root: %w", err)
	}
	defer root.Close()

	file, err := root.Open(rel)
	if err != nil {
		return "", fmt.Errorf("reading memory file %q: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", fmt.Errorf("reading memory file %q: %w", path, err)
	}
	return string(data), nil
}

// local returns path relative to Root.
func (f Files) local(path string) (string, error) {
	rel := path
	if filepath.IsAbs(path) {
		root, err := filepath.Abs(f.Root)
		if err != nil {
			return "", fmt.Errorf("resolving memory root: %w", err)
		}
		if rel, err = filepath.Rel(root, path); err != nil {
			return "", InvalidArgumentf("memory file %q is outside the memory root", path)
		}
	}
	if !filepath.IsLocal(rel) {
		return "", InvalidArgumentf("memory file %q is outside the memory root", path)
	}
	return rel, nil
}

// EmbeddingText is the text embedded for a record: its title, its trigger
// phrases and, when available, its content.
func EmbeddingText(rec *Record, content string) string {
	parts := make([]string, 0, 3)
	if t := strings.TrimSpace(rec.Title); t != "" {
		parts = append(parts, t)
	}
	if len(rec.TriggerPhrases) > 0 {
		parts = append(parts, strings.Join(rec.TriggerPhrases, ", "))
	}
	if c := strings.TrimSpace(content); c != "" {
		parts = append(parts, c)
	}
	return strings.Join(parts, "\n\n")
}

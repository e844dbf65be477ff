// Package filex contains filesystem helpers for the import scratch
// directory and for disposing of sensitive files.
package filex

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir creates dir (and parents) if it does not exist yet and
// returns the absolute path.
func EnsureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", abs, err)
	}
	return abs, nil
}

// ResolveInside joins name onto dir, rejecting anything that would escape
// it. Only the base name of the input is used, so path traversal via
// "../" or absolute paths is not possible.
func ResolveInside(dir, name string) (string, error) {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) || base == "" {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	abs, err := filepath.Abs(filepath.Join(dir, base))
	if err != nil {
		return "", err
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(abs, root+string(filepath.Separator)) {
		return "", fmt.Errorf("file %q escapes directory %q", name, dir)
	}
	return abs, nil
}

// SecureDelete overwrites the file with random bytes before unlinking it,
// so that imported database material does not linger on disk. If the
// overwrite fails the file is still unlinked.
func SecureDelete(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := overwrite(path, info.Size()); err != nil {
		// fall through to plain removal
		_ = os.Remove(path)
		return fmt.Errorf("overwrite %s: %w", path, err)
	}

	return os.Remove(path)
}

func overwrite(path string, size int64) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	junk := make([]byte, size)
	if _, err := rand.Read(junk); err != nil {
		return err
	}
	if _, err := f.WriteAt(junk, 0); err != nil {
		return err
	}
	return f.Sync()
}

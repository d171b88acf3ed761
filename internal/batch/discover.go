package batch

import (
	"os"
	"path/filepath"

	"github.com/LdDl/spotmate/internal/stack"
	"github.com/pkg/errors"
)

// Discover lists stack files directly inside dir, sorted by name. Subdirectories are not visited.
func Discover(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrap(err, "can't read folder")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%q is not a folder", dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "can't list folder")
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !stack.IsStack(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	return paths, nil
}

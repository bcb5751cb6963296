package plugins

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidPlugInPath is returned when a plug-in path fails validation.
var ErrInvalidPlugInPath = errors.New("invalid plug-in path")

// ValidatePath checks that path is safe to execute as a plug-in:
// - no path traversal (..)
// - a regular file, or a symlink to one
// - inside one of allowedDirs, when any are given; symlink targets too
func ValidatePath(path string, allowedDirs []string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidPlugInPath)
	}

	for _, elem := range strings.Split(filepath.ToSlash(path), "/") {
		if elem == ".." {
			return fmt.Errorf("%w: path traversal detected", ErrInvalidPlugInPath)
		}
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: failed to resolve absolute path: %v", ErrInvalidPlugInPath, err)
	}

	info, err := os.Lstat(absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: plug-in file not found", ErrInvalidPlugInPath)
		}
		return fmt.Errorf("%w: failed to stat plug-in file: %v", ErrInvalidPlugInPath, err)
	}

	if info.Mode()&os.ModeSymlink != 0 {
		realPath, err := filepath.EvalSymlinks(absPath)
		if err != nil {
			return fmt.Errorf("%w: failed to resolve symlink: %v", ErrInvalidPlugInPath, err)
		}
		if err := checkAllowedDir(realPath, allowedDirs); err != nil {
			return fmt.Errorf("%w: symlink target failed validation", err)
		}
		if info, err = os.Stat(realPath); err != nil {
			return fmt.Errorf("%w: failed to stat symlink target: %v", ErrInvalidPlugInPath, err)
		}
	}

	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: not a regular file", ErrInvalidPlugInPath)
	}

	return checkAllowedDir(absPath, allowedDirs)
}

// checkAllowedDir reports whether absPath lies within one of dirs. No dirs
// means no restriction.
func checkAllowedDir(absPath string, dirs []string) error {
	if len(dirs) == 0 {
		return nil
	}
	for _, dir := range dirs {
		absDir, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		if resolved, err := filepath.EvalSymlinks(absDir); err == nil {
			if rel, err := filepath.Rel(resolved, absPath); err == nil && !escapes(rel) {
				return nil
			}
		}
		rel, err := filepath.Rel(absDir, absPath)
		if err != nil {
			continue
		}
		if !escapes(rel) {
			return nil
		}
	}
	return fmt.Errorf("%w: path not in plug-in directories", ErrInvalidPlugInPath)
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideWorkspace is returned when a restricted sandbox path resolves
// outside its workspace root, including via a symlink.
var ErrOutsideWorkspace = errors.New("sandbox: path escapes workspace")

// ValidatePath resolves path against workspace and, when restrict is true,
// confirms the resolved path (symlinks included) stays within workspace.
func ValidatePath(path, workspace string, restrict bool) (string, error) {
	if !restrict {
		if filepath.IsAbs(path) {
			return path, nil
		}
		return filepath.Join(workspace, path), nil
	}

	if strings.TrimSpace(workspace) == "" {
		return "", errors.New("sandbox: restricted mode requires a workspace root")
	}

	var candidate string
	if filepath.IsAbs(path) {
		candidate = filepath.Clean(path)
	} else {
		candidate = filepath.Join(workspace, path)
	}

	if !isWithinWorkspace(candidate, workspace) {
		return "", ErrOutsideWorkspace
	}

	resolved, err := resolveSymlinks(candidate)
	if err != nil {
		return "", err
	}
	if !isWithinWorkspace(resolved, workspace) {
		return "", ErrOutsideWorkspace
	}

	return candidate, nil
}

// isWithinWorkspace reports whether path is workspace itself or a
// descendant of it, using a lexical (not symlink-resolved) comparison.
func isWithinWorkspace(path, workspace string) bool {
	if workspace == "" {
		return false
	}
	absWorkspace, err := filepath.Abs(workspace)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}

	rel, err := filepath.Rel(absWorkspace, absPath)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && rel != "..")
}

// resolveSymlinks resolves the deepest existing ancestor of path via
// filepath.EvalSymlinks, so callers can check escapes introduced by a
// symlinked leaf even when the leaf itself does not yet exist.
func resolveSymlinks(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	dir := filepath.Dir(path)
	if dir == path {
		return "", err
	}
	resolvedDir, dirErr := resolveSymlinks(dir)
	if dirErr != nil {
		return "", dirErr
	}
	return filepath.Join(resolvedDir, filepath.Base(path)), nil
}

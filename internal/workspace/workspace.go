// Package workspace resolves tool-supplied paths against a request-scoped
// root directory and refuses paths that escape it or touch sensitive files.
package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrPathEscape marks a path that resolves outside the workspace root.
	ErrPathEscape = errors.New("path escapes workspace root")
	// ErrSensitivePath marks a path touching protected names (.env, data dirs).
	ErrSensitivePath = errors.New("sensitive path")
	// ErrOutsideAllowlist marks a project path not under any configured root.
	ErrOutsideAllowlist = errors.New("path outside projects allowlist")
)

// Basenames of env files that are documented samples and safe to read.
var sampleEnvNames = map[string]bool{
	".env.example":  true,
	".env.sample":   true,
	".env.template": true,
}

// Directory segments that hold server state and are never tool-visible.
var protectedSegments = map[string]bool{
	".aistaff":     true,
	".jetlinks-ai": true,
	".codesk":      true,
}

// Resolve translates rel (or an absolute path) against root and validates
// the result. Symlinks are resolved to canonical form before the boundary
// check so a link pointing outside the root is rejected, not followed.
func Resolve(root, rel string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("workspace root not set")
	}

	var candidate string
	if filepath.IsAbs(rel) {
		candidate = filepath.Clean(rel)
	} else {
		candidate = filepath.Clean(filepath.Join(root, rel))
	}

	rootReal := canonical(root)
	real, err := canonicalTarget(candidate)
	if err != nil {
		slog.Warn("security.path_resolve_failed", "path", rel, "error", err)
		return "", ErrPathEscape
	}

	if !isPathInside(real, rootReal) {
		slog.Warn("security.path_escape", "path", rel, "resolved", real, "root", rootReal)
		return "", ErrPathEscape
	}
	if err := checkSensitive(real, rootReal); err != nil {
		slog.Warn("security.sensitive_path", "path", rel, "resolved", real)
		return "", err
	}
	return real, nil
}

// RelativeTo inverts Resolve: it returns the path of abs relative to root,
// failing when abs does not live under root.
func RelativeTo(root, abs string) (string, error) {
	rootReal := canonical(root)
	real, err := canonicalTarget(abs)
	if err != nil {
		return "", ErrPathEscape
	}
	if !isPathInside(real, rootReal) {
		return "", ErrPathEscape
	}
	rel, err := filepath.Rel(rootReal, real)
	if err != nil {
		return "", ErrPathEscape
	}
	return rel, nil
}

// CheckAllowlisted verifies that path lies under one of the configured
// project roots. Used when registering or selecting team projects.
func CheckAllowlisted(path string, roots []string) (string, error) {
	real, err := canonicalTarget(filepath.Clean(path))
	if err != nil {
		return "", ErrOutsideAllowlist
	}
	for _, r := range roots {
		if isPathInside(real, canonical(r)) {
			return real, nil
		}
	}
	return "", ErrOutsideAllowlist
}

// checkSensitive rejects env files (except documented samples) and paths
// traversing protected state directories.
func checkSensitive(abs, root string) error {
	base := filepath.Base(abs)
	if base == ".env" || (strings.HasPrefix(base, ".env.") && !sampleEnvNames[base]) {
		return ErrSensitivePath
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return ErrSensitivePath
	}
	for _, seg := range strings.Split(rel, string(filepath.Separator)) {
		if protectedSegments[seg] {
			return ErrSensitivePath
		}
	}
	return nil
}

// canonical resolves a directory that is expected to exist; falls back to
// the absolute path when it does not (fresh workspaces).
func canonical(path string) string {
	abs, _ := filepath.Abs(path)
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return abs
	}
	return real
}

// canonicalTarget resolves a target path to canonical form, tolerating a
// non-existent final component (writes create it) but not broken symlinks.
func canonicalTarget(candidate string) (string, error) {
	abs, _ := filepath.Abs(candidate)
	real, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return real, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}
	// The path itself may be a dangling symlink; resolve its target so an
	// escape through a broken link is still caught.
	if info, lerr := os.Lstat(abs); lerr == nil && info.Mode()&os.ModeSymlink != 0 {
		target, rerr := os.Readlink(abs)
		if rerr != nil {
			return "", fmt.Errorf("cannot resolve symlink")
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(abs), target)
		}
		return canonicalTarget(target)
	}
	parentReal, perr := filepath.EvalSymlinks(filepath.Dir(abs))
	if perr != nil {
		return "", fmt.Errorf("cannot resolve parent")
	}
	return filepath.Join(parentReal, filepath.Base(abs)), nil
}

func isPathInside(child, parent string) bool {
	if child == parent {
		return true
	}
	return strings.HasPrefix(child, parent+string(filepath.Separator))
}

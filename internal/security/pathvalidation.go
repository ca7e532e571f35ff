// Package security guards filesystem paths built from request-supplied
// identifiers, such as blob chunk directories and export destinations.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory ensures filePath resolves to a location inside
// safeDir. Symlinks are resolved before comparison so a link planted inside
// safeDir cannot redirect writes elsewhere. For paths that do not exist yet,
// the nearest existing ancestor is resolved instead.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("resolve safe directory: %w", err)
	}

	canonicalPath := canonicalize(absPath)

	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return fmt.Errorf("resolve safe directory symlinks: %w", err)
	}

	relPath, err := filepath.Rel(canonicalSafeDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) || filepath.IsAbs(relPath) {
		return fmt.Errorf("path traversal detected: %s escapes %s", filePath, safeDir)
	}
	return nil
}

// canonicalize resolves symlinks in absPath. When absPath does not exist it
// resolves the nearest existing ancestor and rejoins the remaining
// components, so a dangling tail cannot hide a symlinked parent.
func canonicalize(absPath string) string {
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved
	}
	checkPath := absPath
	for {
		parentDir := filepath.Dir(checkPath)
		if parentDir == checkPath {
			return absPath
		}
		if resolved, err := filepath.EvalSymlinks(parentDir); err == nil {
			relToParent, _ := filepath.Rel(parentDir, absPath)
			return filepath.Join(resolved, relToParent)
		}
		checkPath = parentDir
	}
}

// ValidatePathWithinAllowedDirs accepts filePath if it is inside any of the
// allowed directories.
func ValidatePathWithinAllowedDirs(filePath string, allowedDirs []string) error {
	if len(allowedDirs) == 0 {
		return fmt.Errorf("no allowed directories specified")
	}
	for _, dir := range allowedDirs {
		if err := ValidatePathWithinDirectory(filePath, dir); err == nil {
			return nil
		}
	}
	return fmt.Errorf("path must be within one of the allowed directories: %v", allowedDirs)
}

// ValidateExportPath validates a destination for files written on behalf of
// a user, restricting it to the temp directory or the current working
// directory.
func ValidateExportPath(filePath string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	return ValidatePathWithinAllowedDirs(filePath, []string{os.TempDir(), cwd})
}

// SanitizeFilename makes a safe filename from an arbitrary string, such as
// an uploaded file's original name. Characters outside ASCII letters,
// digits, dot, underscore and dash become underscores, runs of underscores
// collapse, and the result is capped at a reasonable length.
func SanitizeFilename(s string) string {
	if s == "" {
		return "unknown"
	}
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}

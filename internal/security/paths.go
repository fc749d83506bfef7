// Package security guards the file paths that report and export tooling
// writes to.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a path resolves outside every allowed root.
var ErrOutsideRoot = errors.New("path escapes allowed roots")

// maxNameLen bounds names derived from run IDs and similar identifiers.
const maxNameLen = 96

// resolve returns the canonical absolute form of p. Paths that do not exist
// yet are resolved through their nearest existing ancestor so a symlinked
// parent cannot redirect a new file.
func resolve(p string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", err
	}
	rest := ""
	cur := abs
	for {
		if real, err := filepath.EvalSymlinks(cur); err == nil {
			return filepath.Join(real, rest), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(cur), rest)
		cur = parent
	}
}

// WithinRoot reports an error unless path resolves to root or somewhere
// beneath it.
func WithinRoot(path, root string) error {
	p, err := resolve(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	r, err := resolve(root)
	if err != nil {
		return fmt.Errorf("resolve root %s: %w", root, err)
	}
	rel, err := filepath.Rel(r, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s is outside %s", ErrOutsideRoot, path, root)
	}
	return nil
}

// ValidateOutputPath accepts path when it lies under any of roots. With no
// roots given, the working directory and the system temp directory are used.
func ValidateOutputPath(path string, roots ...string) error {
	if len(roots) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("working directory: %w", err)
		}
		roots = []string{cwd, os.TempDir()}
	}
	for _, r := range roots {
		if WithinRoot(path, r) == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: %s not under %v", ErrOutsideRoot, path, roots)
}

// SanitizeFilename maps an arbitrary identifier onto [A-Za-z0-9._-],
// collapsing runs of other characters into one underscore.
func SanitizeFilename(s string) string {
	var b strings.Builder
	under := false
	for _, r := range s {
		if b.Len() >= maxNameLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
			under = r == '_'
		case !under:
			b.WriteByte('_')
			under = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}

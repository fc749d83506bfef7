package security

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithinRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "plots"), 0o755))

	tests := []struct {
		name string
		path string
		ok   bool
	}{
		{"root itself", root, true},
		{"existing child", filepath.Join(root, "plots"), true},
		{"new nested child", filepath.Join(root, "a", "b", "c.png"), true},
		{"dot dot escape", filepath.Join(root, "plots", "..", "..", "x"), false},
		{"sibling", root + "-other", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WithinRoot(tt.path, root)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrOutsideRoot), "err = %v", err)
			}
		})
	}
}

func TestWithinRootSymlinkedParent(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(root, "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	err := WithinRoot(filepath.Join(link, "new", "file.png"), root)
	assert.True(t, errors.Is(err, ErrOutsideRoot))
}

func TestValidateOutputPath(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	assert.NoError(t, ValidateOutputPath(filepath.Join(b, "out"), a, b))
	assert.Error(t, ValidateOutputPath(filepath.Join(a, "..", "elsewhere"), a))

	// Default roots include the temp directory.
	assert.NoError(t, ValidateOutputPath(filepath.Join(os.TempDir(), "sim-report")))
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"":                 "unknown",
		"run-01.a":         "run-01.a",
		"../../etc/passwd": "etc_passwd",
		"a  b//c":          "a_b_c",
		"__x__":            "x",
		"héllo wörld":      "h_llo_w_rld",
		"...":              "unknown",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeFilename(in), "input %q", in)
	}
	assert.LessOrEqual(t, len(SanitizeFilename(strings.Repeat("z", 500))), maxNameLen)
}

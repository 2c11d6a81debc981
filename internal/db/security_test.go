package db

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfinePath(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	files := filepath.Join(t.TempDir(), "files")

	tests := []struct {
		name        string
		path        string
		shouldError bool
	}{
		{"inside output", filepath.Join(out, "a.html"), false},
		{"inside second root", filepath.Join(files, "report.pdf"), false},
		{"nested", filepath.Join(out, "attachments", "x.bin"), false},
		{"hidden file", filepath.Join(out, ".hidden"), false},
		{"traversal", filepath.Join(out, "..", "..", "etc", "passwd"), true},
		{"absolute elsewhere", "/etc/passwd", true},
		{"sibling with shared prefix", out + "-evil/a.html", true},
		{"file named like parent", filepath.Join(out, "..foo"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolved, err := ConfinePath(tt.path, out, "", files)
			if tt.shouldError {
				assert.True(t, errors.Is(err, ErrPathTraversal), "got %v", err)
				return
			}
			assert.NoError(t, err)
			assert.True(t, filepath.IsAbs(resolved))
		})
	}
}

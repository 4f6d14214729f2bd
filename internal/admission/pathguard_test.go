package admission_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fetchbox/internal/admission"
)

func TestGuardPathAcceptsChild(t *testing.T) {
	dir := t.TempDir()
	got, err := admission.GuardPath(dir, "file.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "file.txt"), got)
}

func TestGuardPathRejectsEscapes(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name     string
		filename string
	}{
		{"parent traversal", "../outside.txt"},
		{"deep traversal", "../../../../etc/passwd"},
		{"folder itself", "."},
		{"traversal after subdir", "sub/../.."},
		{"bare dotdot", ".."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := admission.GuardPath(dir, tc.filename)
			requireReason(t, err, admission.ReasonPathTraversal)
		})
	}
}

func TestGuardPathEmptyFilename(t *testing.T) {
	dir := t.TempDir()
	_, err := admission.GuardPath(dir, "")
	requireReason(t, err, admission.ReasonPathTraversal)
}

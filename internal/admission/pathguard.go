package admission

import (
	"path/filepath"
	"strings"
)

// GuardPath joins folder and filename and proves the result is a strict
// descendant of folder. Sanitization should already make escapes
// impossible; this re-check runs on the resolved absolute paths so a name
// that slipped past it still cannot leave the folder.
func GuardPath(folder, filename string) (string, error) {
	base, err := filepath.Abs(filepath.Clean(folder))
	if err != nil {
		return "", reject(ReasonPathTraversal, "resolve folder: %v", err)
	}
	if resolved, rerr := filepath.EvalSymlinks(base); rerr == nil {
		base = resolved
	}

	full := filepath.Clean(filepath.Join(base, filename))
	rel, err := filepath.Rel(base, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", reject(ReasonPathTraversal, "%q escapes folder %q", filename, folder)
	}
	return full, nil
}

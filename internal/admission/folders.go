package admission

import (
	"path/filepath"
	"sort"
	"strings"
)

// Folders maps a folder key to the absolute directory downloads for that
// key are written into. The table is built once from configuration and is
// read-only afterwards.
type Folders map[string]string

// ParseFolders builds the folder table from a raw "key:path;key:path"
// configuration string. Only the first ':' of an entry separates key from
// path, so the path itself may contain colons. Entries with a missing key
// or path are skipped rather than treated as fatal.
func ParseFolders(raw string) Folders {
	folders := make(Folders)
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		path := strings.TrimSpace(parts[1])
		if key == "" || path == "" {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		folders[key] = abs
	}
	return folders
}

// Resolve returns the destination directory configured for key.
func (f Folders) Resolve(key string) (string, bool) {
	path, ok := f[key]
	return path, ok
}

// Keys returns the configured folder keys in stable order.
func (f Folders) Keys() []string {
	keys := make([]string, 0, len(f))
	for key := range f {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

package admission

import "strings"

// fallbackFilename substitutes for names that sanitize down to nothing.
const fallbackFilename = "download"

// maxFilenameLength caps sanitized names at a length every common
// filesystem accepts.
const maxFilenameLength = 255

// SanitizeFilename normalizes an untrusted filename so it can be joined
// under a destination folder: ".." sequences and path separators are
// stripped until none remain, every character outside [A-Za-z0-9._-]
// becomes '_', and the result is truncated to 255 characters. An empty
// result is replaced by a fixed placeholder.
func SanitizeFilename(name string) string {
	// Deleting a separator can fuse two dots into a fresh "..", so the
	// strip repeats until the name is stable.
	for {
		prev := name
		name = strings.ReplaceAll(name, "..", "")
		name = strings.ReplaceAll(name, "/", "")
		name = strings.ReplaceAll(name, "\\", "")
		if name == prev {
			break
		}
	}

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	out := b.String()
	if len(out) > maxFilenameLength {
		out = out[:maxFilenameLength]
	}
	if out == "" {
		return fallbackFilename
	}
	return out
}

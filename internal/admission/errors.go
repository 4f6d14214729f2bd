package admission

import "fmt"

// Reason classifies why a retrieval request was refused before a job was
// created. Rejections are synchronous and non-retryable: the request
// itself has to change.
type Reason string

const (
	ReasonMissingField         Reason = "missing_field"
	ReasonInvalidURLFormat     Reason = "invalid_url_format"
	ReasonDisallowedScheme     Reason = "disallowed_scheme"
	ReasonDisallowedOrigin     Reason = "disallowed_origin"
	ReasonUnknownFolderKey     Reason = "unknown_folder_key"
	ReasonPathTraversal        Reason = "path_traversal"
	ReasonMissingExtension     Reason = "missing_extension"
	ReasonDisallowedExtension  Reason = "disallowed_extension"
	ReasonPayloadTooLarge      Reason = "payload_too_large"
	ReasonInvalidTorrentSource Reason = "invalid_torrent_source"
)

// Error is a rejection raised by an admission check.
type Error struct {
	Reason Reason
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

// NewError builds a rejection with the given reason and detail text.
func NewError(reason Reason, detail string) *Error {
	return &Error{Reason: reason, Detail: detail}
}

func reject(reason Reason, format string, args ...any) *Error {
	return &Error{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

package admission

import (
	"net/url"
	"path"
	"strings"
)

// Resolved is the outcome of a successful admission: everything the job
// registry needs to create the record.
type Resolved struct {
	FolderKey string
	Folder    string
	Filename  string
	Path      string
}

// Pipeline runs every check a retrieval request must pass before a job is
// created: folder resolution, origin guard, filename sanitization, path
// guard, and the extension allow-list. The first failing check decides the
// rejection the caller sees.
type Pipeline struct {
	folders    Folders
	extensions []string
	uploadCap  int64
}

// NewPipeline builds a pipeline over the configured folder table.
// extensions is the allow-list ("jpg" and ".jpg" both work, case does not
// matter); an empty list admits every extension. uploadCap bounds the
// payload size AdmitUpload accepts; zero means unlimited.
func NewPipeline(folders Folders, extensions []string, uploadCap int64) *Pipeline {
	normalized := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	return &Pipeline{
		folders:    folders,
		extensions: normalized,
		uploadCap:  uploadCap,
	}
}

// Folders returns the configured folder keys.
func (p *Pipeline) Folders() []string {
	return p.folders.Keys()
}

// AdmitHTTP validates a URL download request. When no filename override is
// given the last path segment of the URL names the download.
func (p *Pipeline) AdmitHTTP(rawURL, folderKey, override string) (Resolved, error) {
	if strings.TrimSpace(rawURL) == "" {
		return Resolved{}, reject(ReasonMissingField, "url is required")
	}
	folder, err := p.resolveFolder(folderKey)
	if err != nil {
		return Resolved{}, err
	}
	if err := CheckOrigin(rawURL); err != nil {
		return Resolved{}, err
	}
	name := strings.TrimSpace(override)
	if name == "" {
		name = filenameFromURL(rawURL)
	}
	return p.finish(folderKey, folder, name)
}

// AdmitUpload validates an upload request of size bytes.
func (p *Pipeline) AdmitUpload(size int64, originalName, folderKey, override string) (Resolved, error) {
	if p.uploadCap > 0 && size > p.uploadCap {
		return Resolved{}, reject(ReasonPayloadTooLarge, "upload of %d bytes exceeds the %d byte cap", size, p.uploadCap)
	}
	folder, err := p.resolveFolder(folderKey)
	if err != nil {
		return Resolved{}, err
	}
	name := strings.TrimSpace(override)
	if name == "" {
		name = originalName
	}
	return p.finish(folderKey, folder, name)
}

// AdmitTorrent validates a torrent request. The filename stays unresolved
// (metadata only arrives once peers are found) and the extension
// allow-list does not apply: the content cannot be known yet.
func (p *Pipeline) AdmitTorrent(magnet string, metaInfo []byte, folderKey string) (TorrentSource, Resolved, error) {
	source, err := ValidateTorrentSource(magnet, metaInfo)
	if err != nil {
		return TorrentSource{}, Resolved{}, err
	}
	folder, err := p.resolveFolder(folderKey)
	if err != nil {
		return TorrentSource{}, Resolved{}, err
	}
	return source, Resolved{FolderKey: folderKey, Folder: folder}, nil
}

func (p *Pipeline) resolveFolder(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", reject(ReasonMissingField, "folder key is required")
	}
	folder, ok := p.folders.Resolve(key)
	if !ok {
		return "", reject(ReasonUnknownFolderKey, "folder %q is not configured", key)
	}
	return folder, nil
}

func (p *Pipeline) finish(folderKey, folder, name string) (Resolved, error) {
	safe := SanitizeFilename(name)
	full, err := GuardPath(folder, safe)
	if err != nil {
		return Resolved{}, err
	}
	if err := p.checkExtension(safe); err != nil {
		return Resolved{}, err
	}
	return Resolved{
		FolderKey: folderKey,
		Folder:    folder,
		Filename:  safe,
		Path:      full,
	}, nil
}

func (p *Pipeline) checkExtension(name string) error {
	if len(p.extensions) == 0 {
		return nil
	}
	ext := strings.ToLower(path.Ext(name))
	if ext == "" || ext == "." {
		return reject(ReasonMissingExtension, "filename %q has no extension", name)
	}
	for _, allowed := range p.extensions {
		if ext == allowed {
			return nil
		}
	}
	return reject(ReasonDisallowedExtension, "extension %q is not allowed", ext)
}

func filenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return ""
	}
	return path.Base(u.Path)
}

package admission

import (
	"bytes"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/anacrolix/torrent/metainfo"
)

// TorrentSource is a validated torrent job source: either a magnet link or
// the raw bytes of a .torrent file, never both.
type TorrentSource struct {
	Magnet   string
	MetaInfo []byte
}

// ValidateTorrentSource checks that a usable source form is present and
// well formed. A magnet link must carry a btih info hash; torrent-file
// bytes must parse as bencoded metainfo. When both are supplied the magnet
// wins.
func ValidateTorrentSource(magnet string, metaInfo []byte) (TorrentSource, error) {
	magnet = strings.TrimSpace(magnet)
	switch {
	case magnet != "":
		if _, err := InfoHashFromMagnet(magnet); err != nil {
			return TorrentSource{}, reject(ReasonInvalidTorrentSource, "%v", err)
		}
		return TorrentSource{Magnet: magnet}, nil
	case len(metaInfo) > 0:
		if _, err := metainfo.Load(bytes.NewReader(metaInfo)); err != nil {
			return TorrentSource{}, reject(ReasonInvalidTorrentSource, "parse torrent file: %v", err)
		}
		return TorrentSource{MetaInfo: metaInfo}, nil
	default:
		return TorrentSource{}, reject(ReasonMissingField, "magnet link or torrent file is required")
	}
}

// InfoHashFromMagnet extracts the hex-encoded btih info hash from a magnet
// URI, accepting both the 40-char hex and the 32-char base32 encodings.
func InfoHashFromMagnet(uri string) (string, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "magnet" {
		return "", fmt.Errorf("invalid magnet URI scheme")
	}
	values, err := url.ParseQuery(parsed.RawQuery)
	if err != nil {
		return "", err
	}

	for _, xt := range values["xt"] {
		if !strings.HasPrefix(strings.ToLower(xt), "urn:btih:") {
			continue
		}
		hash := strings.TrimSpace(xt[len("urn:btih:"):])
		if len(hash) == 0 {
			continue
		}
		if len(hash) == 40 {
			if _, err := hex.DecodeString(hash); err == nil {
				return strings.ToLower(hash), nil
			}
		}

		encoding := base32.StdEncoding.WithPadding(base32.NoPadding)
		base32Value := strings.TrimRight(strings.ToUpper(hash), "=")
		decoded, err := encoding.DecodeString(base32Value)
		if err != nil || len(decoded) != 20 {
			continue
		}
		return hex.EncodeToString(decoded), nil
	}

	return "", fmt.Errorf("btih magnet xt not present")
}

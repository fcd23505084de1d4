package media

import (
	"net/url"
	"strings"

	"github.com/kbukum/mediascribe/errors"
)

// SourceKind distinguishes remote URLs from pre-uploaded objects.
type SourceKind string

const (
	SourceURL    SourceKind = "url"
	SourceUpload SourceKind = "upload"
)

// UploadScheme prefixes references to objects in upload storage.
const UploadScheme = "upload://"

// Source is a parsed job source reference.
type Source struct {
	Kind      SourceKind
	Raw       string
	URL       *url.URL
	UploadKey string
}

// ParseSource validates a raw reference. Only http(s) URLs with a host and
// upload:// keys are accepted.
func ParseSource(raw string) (Source, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Source{}, errors.UnsupportedSource(raw, "empty reference")
	}

	if key, ok := strings.CutPrefix(raw, UploadScheme); ok {
		if key == "" || strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
			return Source{}, errors.UnsupportedSource(raw, "invalid upload key")
		}
		return Source{Kind: SourceUpload, Raw: raw, UploadKey: key}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Source{}, errors.UnsupportedSource(raw, "malformed URL")
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return Source{}, errors.UnsupportedSource(raw, "scheme must be http or https")
	}
	if u.Hostname() == "" {
		return Source{}, errors.UnsupportedSource(raw, "URL has no host")
	}
	if u.User != nil {
		return Source{}, errors.UnsupportedSource(raw, "credentials in URL are not accepted")
	}
	return Source{Kind: SourceURL, Raw: raw, URL: u}, nil
}

// Host returns the lower-cased host of a URL source.
func (s Source) Host() string {
	if s.URL == nil {
		return ""
	}
	return strings.ToLower(s.URL.Hostname())
}

func (s Source) String() string { return s.Raw }

// UploadRef builds the source reference for an uploaded object.
func UploadRef(key string) string { return UploadScheme + key }

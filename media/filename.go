package media

import (
	"path/filepath"
	"regexp"
	"slices"
	"strings"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeFilename reduces a client-supplied name to a safe base name.
func SafeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = unsafeFilenameChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		return "media"
	}
	if len(base) > 128 {
		ext := filepath.Ext(base)
		if len(ext) > 16 {
			ext = ""
		}
		base = base[:128-len(ext)] + ext
	}
	return base
}

// AllowedUploadExtensions lists extensions accepted by the upload endpoint.
var AllowedUploadExtensions = []string{".mp3", ".wav", ".m4a", ".flac", ".ogg", ".wma", ".aac", ".opus", ".mp4", ".webm", ".mkv", ".mov"}

// HasAllowedExtension reports whether name ends in an accepted extension.
func HasAllowedExtension(name string) bool {
	return slices.Contains(AllowedUploadExtensions, strings.ToLower(filepath.Ext(name)))
}

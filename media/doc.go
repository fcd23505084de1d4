// Package media holds the value types passed between pipeline stages: the
// parsed source reference, the fetched local file, and the canonical PCM
// audio together with its content fingerprint.
package media

// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Upload constants
const (
	// MaxUploadSize is the maximum image upload size in bytes (10MB)
	MaxUploadSize = 10 << 20
)

// Enrollment constants
const (
	// MaxEnrollImageBytes is the maximum size of a single enrollment photo
	// read from disk by the directory-based enrollment flow
	MaxEnrollImageBytes = 10 << 20
)

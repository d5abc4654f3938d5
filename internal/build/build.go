// Package build holds build-time metadata injected via -ldflags.
package build

var (
	// Slug is the short program name used for paths and env prefixes.
	Slug = "flowrun"

	// Version is the semantic version of the binary.
	Version = "0.1.0"
)

package driver

import (
	"path/filepath"
)

// Path normalization shared by both transports, so the models they emit
// agree on absolute artifact paths and relative source membership.

// AbsoluteFrom resolves p against base when relative and cleans it.
func AbsoluteFrom(base, p string) string {
	if p == "" {
		return ""
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	return filepath.Clean(p)
}

// SourceRelative re-expresses abs relative to the target's source directory
// with forward slashes. When no relative form exists (different volume on
// Windows) the absolute path is kept, slash normalized.
func SourceRelative(targetSourceDir, abs string) string {
	rel, err := filepath.Rel(targetSourceDir, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

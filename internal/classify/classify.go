// Package classify decides what kind of media a reference string points at
// without touching the network or the cache.
package classify

import (
	"net/url"
	"strings"
)

// HandleScheme prefixes every ephemeral object reference minted by the cache.
const HandleScheme = "blob:"

var videoExtensions = map[string]struct{}{
	"mp4":  {},
	"webm": {},
	"ogg":  {},
	"mov":  {},
}

// IsHandle reports whether ref is an ephemeral local reference.
func IsHandle(ref string) bool {
	return strings.HasPrefix(strings.TrimSpace(ref), HandleScheme)
}

// IsAbsolute reports whether ref is an absolute or protocol-relative URL.
func IsAbsolute(ref string) bool {
	return strings.HasPrefix(ref, "http://") ||
		strings.HasPrefix(ref, "https://") ||
		strings.HasPrefix(ref, "//")
}

// IsDataURI reports whether ref carries its payload inline.
func IsDataURI(ref string) bool {
	return strings.HasPrefix(ref, "data:")
}

// HasVideoExtension reports whether the path component of ref ends in a
// playable video extension. Handles are never classified here: their kind
// lives in the cache registry, not in the string.
func HasVideoExtension(ref string) bool {
	ref = strings.TrimSpace(ref)
	if ref == "" || IsHandle(ref) {
		return false
	}
	_, ok := videoExtensions[Extension(ref)]
	return ok
}

// Extension returns the lower-cased text after the last dot of ref's path,
// or "" when there is none.
func Extension(ref string) string {
	p := pathOf(ref)
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	i := strings.LastIndex(p, ".")
	if i < 0 {
		return ""
	}
	return strings.ToLower(p[i+1:])
}

func pathOf(ref string) string {
	if u, err := url.Parse(ref); err == nil {
		if u.Opaque != "" {
			return ""
		}
		return u.Path
	}
	// Malformed input: drop query and fragment by hand.
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	return ref
}

// Package urlpath turns object keys into URL path segments.
package urlpath

import (
	"net/url"
	"strings"
)

// Escape percent-encodes every "/"-separated segment of key.
func Escape(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// Join appends the escaped key to base.
func Join(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + Escape(strings.TrimLeft(key, "/"))
}

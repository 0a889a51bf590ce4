// Package slug derives URL-safe tokens from display names.
package slug

import "strings"

// Make lowercases the name, maps every non-alphanumeric run to a single
// hyphen and trims leading/trailing hyphens. An empty or all-symbol name
// yields an empty slug; callers decide whether that is acceptable.
func Make(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}

	return strings.TrimSuffix(b.String(), "-")
}

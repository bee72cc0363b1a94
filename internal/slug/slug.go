// Package slug validates and normalizes the snake_case codes used for
// transaction and dictionary categories.
package slug

import (
	"regexp"
	"strings"
)

const maxLen = 40

var reSlug = regexp.MustCompile(`^[a-z0-9_]{2,40}$`)

// IsSlug reports whether s is a valid category code: lowercase alphanumerics
// and underscores, 2 to 40 characters.
func IsSlug(s string) bool {
	return reSlug.MatchString(s)
}

// Slugify converts free text to a code: lowercase, runs of other characters
// collapse to a single '_', trimmed to the length limit and of edge
// underscores. Slugify("Eating Out!") == "eating_out".
func Slugify(s string) string {
	if s == "" {
		return s
	}
	out := make([]rune, 0, len(s))
	prevUnderscore := false
	for _, r := range strings.ToLower(s) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			out = append(out, r)
			prevUnderscore = false
		default:
			if !prevUnderscore {
				out = append(out, '_')
				prevUnderscore = true
			}
		}
		if len(out) >= maxLen {
			break
		}
	}
	return strings.Trim(string(out), "_")
}

package session

import (
	"html"
	"regexp"
	"strings"
)

const (
	// MaxDisplayNameLength is the maximum number of characters kept from a submitted display name.
	MaxDisplayNameLength = 50

	// DefaultDisplayName substitutes a missing or fully-stripped display name.
	DefaultDisplayName = "Anonymous"
)

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// SanitizeDisplayName strips markup from a submitted display name, escapes the
// remaining special characters, and truncates the result. An empty result after
// stripping falls back to the default name.
func SanitizeDisplayName(raw string) string {
	name := strings.TrimSpace(raw)
	name = htmlTagPattern.ReplaceAllString(name, "")
	name = html.EscapeString(strings.TrimSpace(name))

	if name == "" {
		return DefaultDisplayName
	}

	runes := []rune(name)
	if len(runes) > MaxDisplayNameLength {
		name = string(runes[:MaxDisplayNameLength])
	}

	return name
}

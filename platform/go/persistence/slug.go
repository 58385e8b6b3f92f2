package persistence

import (
	"errors"
	"fmt"
	"strings"
)

// NormalizeSlug trims and lowercases the value and verifies it is a
// URL-safe slug: lowercase alphanumeric groups separated by single
// hyphens. Organizations are keyed by this form.
func NormalizeSlug(input string) (string, error) {
	slug := strings.ToLower(strings.TrimSpace(input))
	if slug == "" {
		return "", errors.New("slug is required")
	}

	for _, group := range strings.Split(slug, "-") {
		if group == "" {
			return "", fmt.Errorf("invalid slug %q: empty hyphen group", input)
		}
		for _, r := range group {
			if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
				return "", fmt.Errorf("invalid slug %q: character %q not allowed", input, r)
			}
		}
	}

	return slug, nil
}

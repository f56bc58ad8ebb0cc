// Package slug produces URL-safe, collision-free identifiers.
package slug

import (
	"fmt"
	"strings"
	"unicode"
)

const fallback = "org"

// maxProbes bounds the allocation loop; the caller's uniqueness scope never
// realistically holds this many collisions for one candidate.
const maxProbes = 10000

// Make normalizes a name into a URL-safe slug candidate: lowercase ASCII
// letters, digits, and single dashes.
func Make(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	candidate := strings.Trim(b.String(), "-")
	if candidate == "" {
		return fallback
	}
	return candidate
}

// Taken reports whether a slug is already in use within the uniqueness scope.
type Taken func(slug string) (bool, error)

// Allocate deterministically probes candidate, candidate-1, candidate-2, …
// until an unused slug is found. The caller must invoke it inside the store
// transaction that persists the winner, so two concurrent allocations for the
// same candidate cannot both succeed with the same slug.
func Allocate(candidate string, taken Taken) (string, error) {
	candidate = Make(candidate)
	if taken == nil {
		return "", fmt.Errorf("taken probe is required")
	}

	inUse, err := taken(candidate)
	if err != nil {
		return "", fmt.Errorf("probe slug %q: %w", candidate, err)
	}
	if !inUse {
		return candidate, nil
	}

	for i := 1; i < maxProbes; i++ {
		probe := fmt.Sprintf("%s-%d", candidate, i)
		inUse, err := taken(probe)
		if err != nil {
			return "", fmt.Errorf("probe slug %q: %w", probe, err)
		}
		if !inUse {
			return probe, nil
		}
	}
	return "", fmt.Errorf("no free slug for %q", candidate)
}

// Package role defines the organization role hierarchy.
package role

import "strings"

// Role names, ordered owner > admin > member.
const (
	Owner  = "owner"
	Admin  = "admin"
	Member = "member"
)

// ranks is the fixed total order used for coarse permission gating.
var ranks = map[string]int{
	Owner:  3,
	Admin:  2,
	Member: 1,
}

// Rank returns the hierarchy rank of a role name, or 0 for unknown roles.
func Rank(name string) int {
	return ranks[Normalize(name)]
}

// IsValid reports whether name is a known organization role.
func IsValid(name string) bool {
	_, ok := ranks[Normalize(name)]
	return ok
}

// HasAtLeast reports whether actual ranks at or above required.
// Unknown roles rank below every known role.
func HasAtLeast(actual, required string) bool {
	actualRank := Rank(actual)
	if actualRank == 0 {
		return false
	}
	return actualRank >= Rank(required)
}

// Normalize lowercases and trims a role name for comparison.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

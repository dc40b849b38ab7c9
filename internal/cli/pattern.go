// Package cli provides shared utilities for CLI commands.
package cli

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ExpandPattern expands a glob pattern against the user's recent partner ids.
// If the pattern contains glob characters (*?[), it performs glob matching.
// Otherwise, it performs exact matching.
func ExpandPattern(pattern string, partnerIDs []string) ([]string, error) {
	// Validate pattern syntax
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
	}

	hasGlob := strings.ContainsAny(pattern, "*?[")

	if !hasGlob {
		// Exact match - verify the partner exists
		for _, id := range partnerIDs {
			if id == pattern {
				return []string{pattern}, nil
			}
		}
		return nil, fmt.Errorf("conversation partner '%s' not found", pattern)
	}

	var matches []string
	for _, id := range partnerIDs {
		matched, err := filepath.Match(pattern, id)
		if err != nil {
			return nil, err
		}
		if matched {
			matches = append(matches, id)
		}
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("no conversation partners match pattern '%s'", pattern)
	}

	return matches, nil
}

// ExpandPatterns expands several patterns and returns the deduplicated,
// sorted union of their matches.
func ExpandPatterns(patterns, partnerIDs []string) ([]string, error) {
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		matches, err := ExpandPattern(pattern, partnerIDs)
		if err != nil {
			return nil, err
		}
		for _, id := range matches {
			seen[id] = true
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

package utils

import "strings"

// SplitScopes splits a space-delimited scope string, dropping empty entries.
func SplitScopes(scopes string) []string {
	return strings.Fields(scopes)
}

// JoinScopes is the inverse of SplitScopes.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

// SplitLines splits a newline-delimited column value, trimming whitespace and dropping blanks.
func SplitLines(s string) []string {
	lines := make([]string, 0)
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func JoinLines(lines []string) string {
	return strings.Join(lines, "\n")
}

package service

import "strings"

// extractJSONObject slices the first top-level object out of judge
// content that may be wrapped in prose or code fences: everything from
// the first '{' to the last '}'. Returns "" when no object is present.
func extractJSONObject(input string) string {
	start := strings.IndexByte(input, '{')
	end := strings.LastIndexByte(input, '}')
	if start == -1 || end == -1 || end < start {
		return ""
	}
	return input[start : end+1]
}

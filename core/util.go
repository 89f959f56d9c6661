package core

import "strings"

// CleanString trims all leading and trailing whitespace in `s`.
func CleanString(s string) string {
	return strings.TrimSpace(s)
}

// CleanValues returns a copy of `values` with trimmed keys and values.
func CleanValues(values map[string]string) map[string]string {
	if values == nil {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[CleanString(k)] = CleanString(v)
	}
	return out
}

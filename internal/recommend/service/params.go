package service

import "strings"

// CleanList trims entries, drops empty ones and duplicates, and keeps the
// first-seen order.
func CleanList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// SplitList parses a comma-separated query value.
func SplitList(raw string) []string {
	if raw == "" {
		return nil
	}
	return CleanList(strings.Split(raw, ","))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

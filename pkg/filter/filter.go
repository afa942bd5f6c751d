// Package filter decides whether text is worth a reply.
package filter

import "strings"

// ShouldRespond reports whether text warrants a reply.
// An empty keyword list disables filtering and matches everything.
func ShouldRespond(text string, keywords []string) bool {
	if !hasKeywords(keywords) {
		return true
	}
	return len(Matched(text, keywords)) > 0
}

// Matched returns the keywords found in text, in keyword order.
func Matched(text string, keywords []string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			found = append(found, kw)
		}
	}
	return found
}

func hasKeywords(keywords []string) bool {
	for _, kw := range keywords {
		if strings.TrimSpace(kw) != "" {
			return true
		}
	}
	return false
}

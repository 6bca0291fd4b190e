// Package classifier converts scraped page text into a registration-status
// guess using per-race keyword lists.
package classifier

import (
	"strings"

	"github.com/racealert/race-alert/internal/alert"
)

// Classify matches the keyword lists against the page text, case-insensitive
// substring containment. Closed keywords always win: an "open" keyword left
// in marketing copy after a race has closed is a common false positive.
// Empty keyword lists yield unknown. Pure, no side effects.
func Classify(pageText string, openKeywords, closedKeywords []string) alert.Status {
	lower := strings.ToLower(pageText)
	switch {
	case containsAny(lower, closedKeywords):
		return alert.StatusClosed
	case containsAny(lower, openKeywords):
		return alert.StatusOpen
	default:
		return alert.StatusUnknown
	}
}

func containsAny(lowerText string, keywords []string) bool {
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(lowerText, kw) {
			return true
		}
	}
	return false
}

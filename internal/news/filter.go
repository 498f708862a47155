package news

import (
	"regexp"
	"strings"
)

// MatchesKeywords reports whether text matches at least one keyword. Phrases
// match as substrings; short tokens (<=3 chars) require word boundaries so a
// filter like "ai" does not hit "said"; longer tokens match as substrings.
// An empty keyword list matches nothing; callers skip filtering instead.
func MatchesKeywords(text string, keywords []string) bool {
	text = strings.ToLower(text)

	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}

		if strings.Contains(k, " ") {
			if strings.Contains(text, k) {
				return true
			}
			continue
		}

		if len(k) <= 3 {
			re := regexp.MustCompile(`\b` + regexp.QuoteMeta(k) + `\b`)
			if re.MatchString(text) {
				return true
			}
			continue
		}

		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

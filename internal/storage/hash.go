package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ArticleHash creates a stable identity for an article from its title and
// link. The title is lowercased and whitespace-collapsed and only the link's
// domain is used, so minor URL churn (tracking params, path edits) does not
// defeat deduplication.
func ArticleHash(title, link string) string {
	normalizedTitle := strings.ToLower(strings.TrimSpace(title))
	normalizedTitle = strings.Join(strings.Fields(normalizedTitle), " ")

	h := sha256.New()
	h.Write([]byte(normalizedTitle + "|" + extractDomain(link)))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// ContentHash keys the analysis cache by the exact material fed to the model.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// extractDomain extracts the bare domain from a URL.
func extractDomain(url string) string {
	if url == "" {
		return "unknown"
	}

	url = strings.TrimPrefix(url, "http://")
	url = strings.TrimPrefix(url, "https://")

	parts := strings.Split(url, "/")
	if len(parts) == 0 {
		return "unknown"
	}

	domain := strings.TrimPrefix(parts[0], "www.")
	return strings.ToLower(domain)
}

package eligibility

import (
	"net/url"
	"strings"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

// DefaultHistoryDepth is how far back IsHashSeenRecently looks.
const DefaultHistoryDepth = 10

var allowedSegments = map[string]struct{}{
	"pricing":  {},
	"plans":    {},
	"features": {},
}

// IsEligibleURL reports whether raw points at a crawl-worthy page: the site root
// or any path with a pricing, plans or features segment. Query strings and
// fragments are ignored. Malformed URLs are never eligible.
func IsEligibleURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return true
	}
	for _, segment := range strings.Split(path, "/") {
		if _, ok := allowedSegments[strings.ToLower(segment)]; ok {
			return true
		}
	}
	return false
}

// IsHashSeenRecently reports whether fingerprint appears in history. A match means
// the page reverted to earlier content.
func IsHashSeenRecently(fingerprint string, history []watch.Snapshot) bool {
	for _, snap := range history {
		if snap.Fingerprint == fingerprint {
			return true
		}
	}
	return false
}

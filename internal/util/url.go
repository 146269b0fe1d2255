package util

import (
	"net/url"
	"strings"
)

// NormalizeCampaign reduces a campaign reference to its "creator/project"
// slug. It accepts the bare slug or any campaign page URL, including
// deep links such as /projects/creator/project/comments?ref=discovery.
func NormalizeCampaign(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.Contains(s, "://") {
		if parsed, err := url.Parse(s); err == nil {
			s = parsed.Path
		}
	} else if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}

	s = strings.Trim(s, "/")
	s = strings.TrimPrefix(s, "projects/")

	parts := strings.Split(s, "/")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, "/")
}

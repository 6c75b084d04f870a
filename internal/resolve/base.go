package resolve

import "strings"

// Settings holds the configuration the media base URL is derived from.
// Fields are listed in precedence order.
type Settings struct {
	MediaBaseURL string // explicit media base
	APIURL       string // configured API base
	APIBaseURL   string // API base whose trailing /api suffix is stripped
	APIBase      string // generic API base
	Origin       string // current page origin
}

// BaseURL picks the first usable value from s. The result never ends in "/".
func BaseURL(s Settings) string {
	candidates := []string{
		s.MediaBaseURL,
		s.APIURL,
		stripAPISuffix(s.APIBaseURL),
		s.APIBase,
		s.Origin,
	}
	for _, candidate := range candidates {
		if c := strings.TrimRight(strings.TrimSpace(candidate), "/"); c != "" {
			return c
		}
	}
	return ""
}

func stripAPISuffix(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	return strings.TrimSuffix(base, "/api")
}

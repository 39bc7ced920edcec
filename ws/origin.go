package ws

import (
	"net/http"
	"net/url"
	"strings"
)

// Origins returns a checkOrigin function that accepts only the listed
// origins, compared as lower-cased scheme://host. A "*" entry, or an empty
// list, accepts every origin. Entries that are not absolute URLs are ignored.
func Origins(origins ...string) CheckOriginFn {
	if len(origins) == 0 {
		return AllOrigins()
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "*" {
			return AllOrigins()
		}
		if normalized, ok := normalizeOrigin(trimmed); ok {
			allowed[normalized] = struct{}{}
		}
	}

	return func(r *http.Request) bool {
		header := r.Header.Get("Origin")
		if header == "" {
			// Non-browser clients send no Origin header.
			return true
		}
		normalized, ok := normalizeOrigin(header)
		if !ok {
			return false
		}
		_, exists := allowed[normalized]
		return exists
	}
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

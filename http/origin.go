package http

import (
	"fmt"
	"regexp"
	"strings"
)

// Default CORS origin patterns.
var (
	ProductionOrigins  = []string{"https://*.chriskrycho.com"}
	DevelopmentOrigins = []string{"http://localhost:*"}
)

// originWildcard is what "*" in an origin pattern may stand for: host label
// or port characters, never a scheme separator or path.
const originWildcard = `[A-Za-z0-9.-]+`

// NewOriginMatcher compiles origin patterns into a predicate for
// handlers.AllowedOriginValidator. Matching is exact apart from "*".
func NewOriginMatcher(patterns []string) (func(string) bool, error) {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.Contains(p, "://") {
			return nil, fmt.Errorf("origin pattern %q: missing scheme", p)
		}
		parts := strings.Split(p, "*")
		for i := range parts {
			parts[i] = regexp.QuoteMeta(parts[i])
		}
		re, err := regexp.Compile("^" + strings.Join(parts, originWildcard) + "$")
		if err != nil {
			return nil, fmt.Errorf("origin pattern %q: %w", p, err)
		}
		res = append(res, re)
	}

	return func(origin string) bool {
		for _, re := range res {
			if re.MatchString(origin) {
				return true
			}
		}
		return false
	}, nil
}

// Package patternmatch provides a richer, regex-capable key matcher than the
// literal+trailing-wildcard rule the invalidation engine is required to use.
// It exists solely for admin/observability tooling (ad hoc key search) and
// must never be wired into invalidation's core matching path.
package patternmatch

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

var regexCache sync.Map // pattern string -> *regexp.Regexp

// Match reports whether key matches pattern.
//
// Pattern syntax: exact ("user:123"), prefix ("users:*"), simple glob
// ("user:*:profile", "?" = one char), or, failing those fast paths, a
// compiled (and cached) regex: the glob translation when pattern contains
// "*" or "?", otherwise pattern itself read as a regular expression.
func Match(pattern, key string) (bool, error) {
	if pattern == "" {
		return false, fmt.Errorf("pattern cannot be empty")
	}
	if pattern == key {
		return true, nil
	}
	if pattern == "*" {
		return true, nil
	}
	if strings.HasSuffix(pattern, "*") && !strings.Contains(pattern[:len(pattern)-1], "*") {
		return strings.HasPrefix(key, pattern[:len(pattern)-1]), nil
	}

	regexPattern := pattern
	if strings.ContainsAny(pattern, "*?") {
		regexPattern = globToRegex(pattern)
	}

	if cached, ok := regexCache.Load(regexPattern); ok {
		return cached.(*regexp.Regexp).MatchString(key), nil
	}
	re, err := regexp.Compile("^" + regexPattern + "$")
	if err != nil {
		return false, fmt.Errorf("invalid pattern regex: %w", err)
	}
	regexCache.Store(regexPattern, re)
	return re.MatchString(key), nil
}

// FilterKeys returns the subset of keys matching pattern.
func FilterKeys(pattern string, keys []string) ([]string, error) {
	if pattern == "*" {
		out := make([]string, len(keys))
		copy(out, keys)
		return out, nil
	}
	out := make([]string, 0, len(keys)/10+1)
	for _, k := range keys {
		ok, err := Match(pattern, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, k)
		}
	}
	return out, nil
}

func globToRegex(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern) * 2)
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		case '.', '+', '(', ')', '|', '[', ']', '{', '}', '^', '$', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// CacheSize returns the number of compiled regexes currently cached.
func CacheSize() int {
	n := 0
	regexCache.Range(func(_, _ any) bool { n++; return true })
	return n
}

// ClearCache drops all compiled regexes. For tests only.
func ClearCache() {
	regexCache.Range(func(k, _ any) bool { regexCache.Delete(k); return true })
}

// Package rewrite provides the content transforms that keep proxied
// booking engine pages pointed at the proxy: origin substitution in
// response bodies and Set-Cookie domain/attribute rewriting.
//
// Both transforms fail open. A pattern that does not match leaves its
// input unchanged; a partially-rewritten page is preferred over a hard
// failure of the whole response.
package rewrite

import (
	"regexp"
	"strings"
	"sync"
)

// Rewriter performs origin substitution with a bounded memo of compiled
// patterns, one per (targetBase, targetHost) pair.
type Rewriter struct {
	mu         sync.Mutex
	patterns   map[string]*regexp.Regexp
	maxEntries int
}

// NewRewriter creates a rewriter with a bounded pattern memo.
func NewRewriter(maxEntries int) *Rewriter {
	if maxEntries <= 0 {
		maxEntries = 64
	}
	return &Rewriter{
		patterns:   make(map[string]*regexp.Regexp, maxEntries),
		maxEntries: maxEntries,
	}
}

// pattern returns the compiled alternation for the pair, compiling and
// memoizing it on first use.
func (r *Rewriter) pattern(targetBase, targetHost string) *regexp.Regexp {
	key := targetBase + "\x00" + targetHost

	r.mu.Lock()
	defer r.mu.Unlock()

	if re, ok := r.patterns[key]; ok {
		return re
	}

	// One alternation so both forms are replaced in a single pass;
	// two sequential passes could re-match text produced by the first.
	re, err := regexp.Compile(
		regexp.QuoteMeta(targetBase) + "|//" + regexp.QuoteMeta(targetHost),
	)
	if err != nil {
		return nil
	}

	if len(r.patterns) >= r.maxEntries {
		// Random-victim eviction keeps the memo bounded; recompiling a
		// pattern later is cheap.
		for k := range r.patterns {
			delete(r.patterns, k)
			break
		}
	}
	r.patterns[key] = re

	return re
}

// RewriteBody replaces every occurrence of the absolute origin
// targetBase with proxyBase and every protocol-relative //targetHost
// with //proxyHost. The transform is idempotent: its output contains no
// occurrence of either source form.
func (r *Rewriter) RewriteBody(body []byte, targetHost, targetBase, proxyHost, proxyBase string) []byte {
	re := r.pattern(targetBase, targetHost)
	if re == nil {
		return body
	}

	absolute := []byte(proxyBase)
	relative := []byte("//" + proxyHost)
	target := []byte(targetBase)

	return re.ReplaceAllFunc(body, func(match []byte) []byte {
		if string(match) == string(target) {
			return absolute
		}
		return relative
	})
}

// RewriteString is RewriteBody for header values such as Location.
func (r *Rewriter) RewriteString(s, targetHost, targetBase, proxyHost, proxyBase string) string {
	return string(r.RewriteBody([]byte(s), targetHost, targetBase, proxyHost, proxyBase))
}

// RewriteSetCookie rewrites one upstream Set-Cookie value so the
// browser accepts and resends the cookie on the proxy's own host:
// Domain=targetHost (with or without a leading dot) becomes
// Domain=proxyHost, and the Secure, HttpOnly, and SameSite attributes
// are stripped. The attribute stripping is a deliberate, scoped
// weakening specific to this internal flow; the proxy may serve over a
// different scheme than the target.
func RewriteSetCookie(value, targetHost, proxyHost string) string {
	parts := strings.Split(value, ";")
	out := make([]string, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		lower := strings.ToLower(trimmed)

		switch {
		case lower == "secure", lower == "httponly":
			// dropped

		case strings.HasPrefix(lower, "samesite="):
			// dropped

		case strings.HasPrefix(lower, "domain="):
			domain := strings.TrimPrefix(trimmed[len("domain="):], ".")
			if strings.EqualFold(domain, targetHost) {
				out = append(out, "Domain="+proxyHost)
			} else {
				out = append(out, trimmed)
			}

		default:
			out = append(out, trimmed)
		}
	}

	return strings.Join(out, "; ")
}

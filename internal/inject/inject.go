// Package inject builds the HTML fragment spliced into proxied booking
// engine pages: a URL interceptor that keeps in-page JavaScript pointed
// at the proxy, and an optional per-engine autobook script that drives
// the upstream site's own UI to add a room to cart.
package inject

import (
	"regexp"
	"strings"
	"sync"

	"github.com/vyrodovalexey/bookproxy/internal/session"
)

// Params are the inputs the injection fragment is a pure function of.
// Two requests sharing these six values receive an identical fragment.
type Params struct {
	TargetHost string
	TargetBase string
	ProxyHost  string
	ProxyBase  string
	Autobook   bool
	Engine     session.Engine
}

// Injector assembles injection fragments with a bounded memo keyed by
// Params.
type Injector struct {
	mu         sync.Mutex
	memo       map[Params]string
	maxEntries int
}

// NewInjector creates an injector with a bounded fragment memo.
func NewInjector(maxEntries int) *Injector {
	if maxEntries <= 0 {
		maxEntries = 64
	}
	return &Injector{
		memo:       make(map[Params]string, maxEntries),
		maxEntries: maxEntries,
	}
}

// BuildInjection returns the fragment for the given parameters,
// assembling and memoizing it on first use.
func (i *Injector) BuildInjection(p Params) string {
	i.mu.Lock()
	if fragment, ok := i.memo[p]; ok {
		i.mu.Unlock()
		return fragment
	}
	i.mu.Unlock()

	var b strings.Builder

	strategy, ok := strategyFor(p.Engine)
	if p.Autobook && ok && strategy.ShowOverlay {
		b.WriteString(overlayScript)
	}

	b.WriteString(interceptorScript(p))

	if p.Autobook && ok {
		script, err := autobookScript(strategy)
		if err == nil {
			b.WriteString(script)
		}
	}

	fragment := b.String()

	i.mu.Lock()
	if len(i.memo) >= i.maxEntries {
		// Random-victim eviction; rebuilding a fragment is cheap
		// relative to serving it on every HTML response.
		for k := range i.memo {
			delete(i.memo, k)
			break
		}
	}
	i.memo[p] = fragment
	i.mu.Unlock()

	return fragment
}

// headTagPattern matches the first opening head tag, attributes
// included.
var headTagPattern = regexp.MustCompile(`(?i)<head[^>]*>`)

// SpliceAfterHead inserts the fragment immediately after the first
// <head ...> tag, exactly once. Documents without a head tag pass
// through unchanged.
func SpliceAfterHead(html []byte, fragment string) []byte {
	loc := headTagPattern.FindIndex(html)
	if loc == nil {
		return html
	}

	out := make([]byte, 0, len(html)+len(fragment))
	out = append(out, html[:loc[1]]...)
	out = append(out, fragment...)
	out = append(out, html[loc[1]:]...)

	return out
}

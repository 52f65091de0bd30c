package inject

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/bookproxy/internal/session"
)

func testParams() Params {
	return Params{
		TargetHost: "booking.example.com",
		TargetBase: "https://booking.example.com",
		ProxyHost:  "proxy.example.org",
		ProxyBase:  "https://proxy.example.org",
	}
}

func TestBuildInjection_InterceptorOnly(t *testing.T) {
	inj := NewInjector(8)

	fragment := inj.BuildInjection(testParams())

	assert.Equal(t, 1, strings.Count(fragment, `data-bp="interceptor"`))
	assert.NotContains(t, fragment, `data-bp="autobook"`)
	assert.NotContains(t, fragment, `data-bp="overlay"`)
	assert.Contains(t, fragment, "https://booking.example.com")
	assert.Contains(t, fragment, "https://proxy.example.org")
}

func TestBuildInjection_EngineAWithOverlay(t *testing.T) {
	inj := NewInjector(8)

	p := testParams()
	p.Autobook = true
	p.Engine = session.EngineA

	fragment := inj.BuildInjection(p)

	assert.Equal(t, 1, strings.Count(fragment, `data-bp="overlay"`))
	assert.Equal(t, 1, strings.Count(fragment, `data-bp="interceptor"`))
	assert.Equal(t, 1, strings.Count(fragment, `data-bp="autobook"`))
	assert.Contains(t, fragment, "select-room")
	assert.Contains(t, fragment, "book-now")
	// Overlay must install before the driver so it is visible from the
	// first paint.
	assert.Less(t,
		strings.Index(fragment, `data-bp="overlay"`),
		strings.Index(fragment, `data-bp="autobook"`))
}

func TestBuildInjection_EngineBNoOverlay(t *testing.T) {
	inj := NewInjector(8)

	p := testParams()
	p.Autobook = true
	p.Engine = session.EngineB

	fragment := inj.BuildInjection(p)

	assert.NotContains(t, fragment, `data-bp="overlay"`)
	assert.Contains(t, fragment, `data-bp="autobook"`)
	assert.Contains(t, fragment, "/checkout/{id}")
	assert.Contains(t, fragment, "booked")
}

func TestBuildInjection_UnknownEngineSkipsAutomation(t *testing.T) {
	inj := NewInjector(8)

	p := testParams()
	p.Autobook = true
	p.Engine = session.Engine("engineX")

	fragment := inj.BuildInjection(p)

	assert.Contains(t, fragment, `data-bp="interceptor"`)
	assert.NotContains(t, fragment, `data-bp="autobook"`)
}

func TestBuildInjection_Memoized(t *testing.T) {
	inj := NewInjector(8)

	p := testParams()
	first := inj.BuildInjection(p)
	second := inj.BuildInjection(p)

	assert.Equal(t, first, second)

	inj.mu.Lock()
	defer inj.mu.Unlock()
	assert.Len(t, inj.memo, 1)
}

func TestBuildInjection_MemoBounded(t *testing.T) {
	inj := NewInjector(2)

	for _, host := range []string{"a.example", "b.example", "c.example"} {
		p := testParams()
		p.TargetHost = host
		inj.BuildInjection(p)
	}

	inj.mu.Lock()
	defer inj.mu.Unlock()
	assert.LessOrEqual(t, len(inj.memo), 2)
}

func TestSpliceAfterHead(t *testing.T) {
	html := []byte(`<!DOCTYPE html><html><head lang="en"><title>x</title></head><body></body></html>`)

	out := SpliceAfterHead(html, "<script>f()</script>")

	require.Equal(t, 1, strings.Count(string(out), "<script>f()</script>"))
	assert.True(t, strings.HasPrefix(string(out),
		`<!DOCTYPE html><html><head lang="en"><script>f()</script>`))
}

func TestSpliceAfterHead_FirstHeadOnly(t *testing.T) {
	html := []byte(`<head></head><head></head>`)

	out := SpliceAfterHead(html, "<script></script>")

	assert.Equal(t, `<head><script></script></head><head></head>`, string(out))
}

func TestSpliceAfterHead_NoHeadPassesThrough(t *testing.T) {
	html := []byte(`<html><body>fragment only</body></html>`)

	out := SpliceAfterHead(html, "<script></script>")

	assert.Equal(t, html, out)
}

func TestAutobookScript_EmbedsSteps(t *testing.T) {
	strategy, ok := strategyFor(session.EngineA)
	require.True(t, ok)

	script, err := autobookScript(strategy)
	require.NoError(t, err)

	assert.Contains(t, script, `"name":"select-room"`)
	assert.Contains(t, script, `"name":"dismiss-modal"`)
	assert.Contains(t, script, `"escapeFallback":true`)
	assert.Contains(t, script, "30000")
	assert.NotContains(t, script, "__STEPS__")
	assert.NotContains(t, script, "__MAX_WAIT_MS__")
}

package rewrite

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTargetHost = "booking.example.com"
	testTargetBase = "https://booking.example.com"
	testProxyHost  = "proxy.example.org"
	testProxyBase  = "https://proxy.example.org"
)

func TestRewriteBody_ReplacesBothForms(t *testing.T) {
	r := NewRewriter(8)

	body := []byte(`<a href="https://booking.example.com/rooms">rooms</a>` +
		`<img src="//booking.example.com/img/logo.png">`)

	out := r.RewriteBody(body, testTargetHost, testTargetBase, testProxyHost, testProxyBase)

	assert.Equal(t,
		`<a href="https://proxy.example.org/rooms">rooms</a>`+
			`<img src="//proxy.example.org/img/logo.png">`,
		string(out))
}

func TestRewriteBody_CountsAllOccurrences(t *testing.T) {
	r := NewRewriter(8)

	const k, m = 7, 5
	var b strings.Builder
	for i := 0; i < k; i++ {
		b.WriteString("x " + testTargetBase + "/p ")
	}
	for i := 0; i < m; i++ {
		b.WriteString("y //" + testTargetHost + "/q ")
	}

	out := string(r.RewriteBody([]byte(b.String()),
		testTargetHost, testTargetBase, testProxyHost, testProxyBase))

	assert.Equal(t, k+m, strings.Count(out, testProxyHost))
	assert.Equal(t, 0, strings.Count(out, testTargetHost))
}

func TestRewriteBody_Idempotent(t *testing.T) {
	r := NewRewriter(8)

	body := []byte(`fetch("https://booking.example.com/api") // //booking.example.com/ws`)

	once := r.RewriteBody(body, testTargetHost, testTargetBase, testProxyHost, testProxyBase)
	twice := r.RewriteBody(once, testTargetHost, testTargetBase, testProxyHost, testProxyBase)

	assert.Equal(t, string(once), string(twice))
	assert.NotContains(t, string(once), testTargetHost)
}

func TestRewriteBody_NoMatchPassesThrough(t *testing.T) {
	r := NewRewriter(8)

	body := []byte(`<p>no urls here, not even https://other.example.net</p>`)
	out := r.RewriteBody(body, testTargetHost, testTargetBase, testProxyHost, testProxyBase)

	assert.Equal(t, body, out)
}

func TestRewriteString_Location(t *testing.T) {
	r := NewRewriter(8)

	out := r.RewriteString("https://booking.example.com/checkout/abc?step=2",
		testTargetHost, testTargetBase, testProxyHost, testProxyBase)

	assert.Equal(t, "https://proxy.example.org/checkout/abc?step=2", out)
}

func TestRewriter_PatternMemoBounded(t *testing.T) {
	r := NewRewriter(2)

	for _, base := range []string{"https://a.example", "https://b.example", "https://c.example"} {
		host := strings.TrimPrefix(base, "https://")
		r.RewriteBody([]byte(base), host, base, testProxyHost, testProxyBase)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.LessOrEqual(t, len(r.patterns), 2)
}

func TestRewriteSetCookie(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "domain and attributes stripped",
			in:   "Domain=target.example; Secure; HttpOnly; SameSite=None",
			want: "Domain=proxy.example",
		},
		{
			name: "leading dot domain",
			in:   "sid=abc; Domain=.target.example; Path=/",
			want: "sid=abc; Domain=proxy.example; Path=/",
		},
		{
			name: "case insensitive attributes",
			in:   "sid=abc; domain=TARGET.EXAMPLE; SECURE; httponly; samesite=lax",
			want: "sid=abc; Domain=proxy.example",
		},
		{
			name: "unrelated domain kept",
			in:   "sid=abc; Domain=other.example; Max-Age=60",
			want: "sid=abc; Domain=other.example; Max-Age=60",
		},
		{
			name: "plain cookie untouched",
			in:   "sid=abc; Path=/; Max-Age=3600",
			want: "sid=abc; Path=/; Max-Age=3600",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RewriteSetCookie(tt.in, "target.example", "proxy.example")
			require.Equal(t, tt.want, got)
		})
	}
}

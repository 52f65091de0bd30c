package proxy

import (
	"net/http"
	"strings"

	"github.com/vyrodovalexey/bookproxy/internal/rewrite"
	"github.com/vyrodovalexey/bookproxy/internal/session"
)

// droppedResponseHeaders are removed from every proxied response. The
// encoding/length headers no longer describe the body once it has been
// decoded or rewritten; the security headers would block the page now
// that it is served cross-origin from the proxy's host.
var droppedResponseHeaders = map[string]bool{
	"Content-Encoding":                    true,
	"Transfer-Encoding":                   true,
	"Content-Length":                      true,
	"Content-Security-Policy":             true,
	"Content-Security-Policy-Report-Only": true,
	"X-Frame-Options":                     true,
	"Strict-Transport-Security":           true,
	"Clear-Site-Data":                     true,
}

// corsAllowMethods and corsAllowHeaders are the fixed allow-lists added
// to every proxied response.
const (
	corsAllowMethods = "GET, POST, PUT, PATCH, DELETE, HEAD, OPTIONS"
	corsAllowHeaders = "Origin, Content-Type, Accept, Authorization, X-Requested-With"
)

// buildUpstreamHeaders copies the inbound headers for the upstream
// request: Host and Accept-Encoding are dropped (the transport must see
// plaintext to rewrite it), Origin and Referer point at the target, and
// any pre-captured session cookies are appended after the browser's
// own.
func buildUpstreamHeaders(r *http.Request, sess *session.ProxySession) http.Header {
	headers := make(http.Header, len(r.Header))

	for name, values := range r.Header {
		if http.CanonicalHeaderKey(name) == "Host" ||
			http.CanonicalHeaderKey(name) == "Accept-Encoding" {
			continue
		}
		for _, v := range values {
			headers.Add(name, v)
		}
	}

	headers.Set("Origin", sess.TargetBase)
	headers.Set("Referer", sess.TargetBase)

	if sess.Cookies != "" {
		if inbound := headers.Get("Cookie"); inbound != "" {
			headers.Set("Cookie", inbound+"; "+sess.Cookies)
		} else {
			headers.Set("Cookie", sess.Cookies)
		}
	}

	return headers
}

// copyResponseHeaders writes the filtered and rewritten upstream
// headers onto the outbound response. Every Set-Cookie value is
// rewritten individually and re-added so duplicates survive; map-style
// assignment would silently collapse them.
func copyResponseHeaders(
	w http.ResponseWriter,
	resp *http.Response,
	rw *rewrite.Rewriter,
	sess *session.ProxySession,
	proxyHost, proxyBase string,
	isHTML bool,
) {
	out := w.Header()

	for name, values := range resp.Header {
		canonical := http.CanonicalHeaderKey(name)

		if droppedResponseHeaders[canonical] {
			continue
		}

		switch canonical {
		case "Set-Cookie":
			for _, v := range values {
				out.Add("Set-Cookie", rewrite.RewriteSetCookie(v, sess.TargetHost, proxyHost))
			}
		case "Location":
			for _, v := range values {
				out.Add("Location", rw.RewriteString(v,
					sess.TargetHost, sess.TargetBase, proxyHost, proxyBase))
			}
		default:
			for _, v := range values {
				out.Add(name, v)
			}
		}
	}

	out.Set("Access-Control-Allow-Origin", "*")
	out.Set("Access-Control-Allow-Credentials", "true")
	out.Set("Access-Control-Allow-Methods", corsAllowMethods)
	out.Set("Access-Control-Allow-Headers", corsAllowHeaders)

	if isHTML {
		// The injected automation must re-run on every visit.
		out.Set("Cache-Control", "no-store")
	}
}

// Rewritable content types are buffered and transformed; everything
// else streams through untouched.
var rewritableTypes = []string{
	"text/html",
	"text/css",
	"application/json",
	"javascript",
	"+json",
}

// isRewritable classifies an upstream response by declared content
// type.
func isRewritable(contentType string) bool {
	ct := strings.ToLower(contentType)
	for _, t := range rewritableTypes {
		if strings.Contains(ct, t) {
			return true
		}
	}
	return false
}

// isHTML reports whether the declared content type is HTML.
func isHTML(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "text/html")
}

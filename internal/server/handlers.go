package server

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/bookproxy/internal/observability"
	"github.com/vyrodovalexey/bookproxy/internal/proxy"
	"github.com/vyrodovalexey/bookproxy/internal/session"
)

// bootstrapTemplate is the entry page. The cookie is set and the
// browser is redirected from script rather than with a 302 plus
// Set-Cookie: some tunnelling providers' free tiers show an
// interstitial on redirect responses, and the script path sails past
// it.
var bootstrapTemplate = template.Must(template.New("bootstrap").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Redirecting…</title>
</head>
<body>
<script>
document.cookie = "{{.CookieName}}={{.SessionID}}; Path=/; SameSite=Lax";
window.location.replace({{.CheckoutPath}});
</script>
<noscript>This page requires JavaScript.</noscript>
</body>
</html>
`))

// gonePage is the terminal page for unknown or expired sessions.
const gonePage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Link expired</title></head>
<body>
<h1>This booking link has expired</h1>
<p>Please request a new link.</p>
</body>
</html>
`

// handleBook serves the deep-link entry page: resolve the session by
// path id, set the session cookie from script, and redirect into the
// checkout path.
func (s *Server) handleBook(c *gin.Context) {
	id := c.Param("id")

	sess, err := s.sessions.Get(c.Request.Context(), id)
	if err != nil {
		// Store failures degrade to the same terminal page as an
		// unknown id.
		c.Data(http.StatusGone, "text/html; charset=utf-8", []byte(gonePage))
		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)

	err = bootstrapTemplate.Execute(c.Writer, map[string]string{
		"CookieName":   s.cfg.Proxy.CookieName,
		"SessionID":    sess.ID,
		"CheckoutPath": sess.CheckoutPath,
	})
	if err != nil {
		s.logger.Error("bootstrap page render failed",
			observability.String("session_id", sess.ID),
			observability.Error(err))
	}
}

// createSessionRequest is the session creation API payload, filled by
// the deep-link builders.
type createSessionRequest struct {
	TargetHost     string `json:"targetHost" binding:"required"`
	CheckoutPath   string `json:"checkoutPath" binding:"required"`
	Cookies        string `json:"cookies"`
	Autobook       bool   `json:"autobook"`
	AutobookEngine string `json:"autobookEngine"`
}

// handleCreateSession stores a new session and returns its id and
// entry URL.
func (s *Server) handleCreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	engine := session.Engine(req.AutobookEngine)
	if req.Autobook && !engine.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown autobook engine"})
		return
	}

	id, err := s.sessions.Create(c.Request.Context(),
		req.Cookies, req.TargetHost, req.CheckoutPath, req.Autobook, engine)
	if err != nil {
		s.logger.Error("session create failed", observability.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session creation failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":      id,
		"bookUrl": "/book/" + id,
	})
}

// gateKind selects the not-found body shape: named prefixes answer in
// plain text, the catch-all in JSON.
type gateKind int

const (
	gateNamed gateKind = iota
	gateCatchAll
)

// gate resolves the session cookie and delegates to the proxy engine:
// no cookie is 404, a cookie whose session cannot be resolved is 410.
func (s *Server) gate(kind gateKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, err := c.Cookie(s.cfg.Proxy.CookieName)
		if err != nil || cookie == "" {
			if kind == gateCatchAll {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			} else {
				c.String(http.StatusNotFound, "not found")
			}
			return
		}

		sess, err := s.sessions.Get(c.Request.Context(), cookie)
		if err != nil {
			c.Data(http.StatusGone, "text/html; charset=utf-8", []byte(gonePage))
			return
		}

		if proxy.IsWebSocketUpgrade(c.Request) {
			s.proxy.ProxyWebSocket(c.Writer, c.Request, sess)
			return
		}

		s.proxy.Proxy(c.Writer, c.Request, sess)
	}
}

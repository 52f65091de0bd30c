package proxy

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/vyrodovalexey/bookproxy/internal/observability"
	"github.com/vyrodovalexey/bookproxy/internal/session"
)

// upgrader upgrades inbound connections to WebSocket. Origin checks are
// disabled: the proxied pages legitimately connect from the proxy's own
// rewritten origin.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// IsWebSocketUpgrade reports whether the inbound request asks for a
// WebSocket upgrade.
func IsWebSocketUpgrade(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}

// ProxyWebSocket upgrades the inbound connection, dials the same path
// on the session's target over wss, and relays messages in both
// directions until either side closes. Session cookies are forwarded on
// the dial like on any proxied request.
func (e *Engine) ProxyWebSocket(w http.ResponseWriter, r *http.Request, sess *session.ProxySession) {
	scheme := "wss"
	if strings.HasPrefix(sess.TargetBase, "http://") {
		scheme = "ws"
	}

	targetURL := scheme + "://" + sess.TargetHost + r.URL.Path
	if r.URL.RawQuery != "" {
		targetURL += "?" + r.URL.RawQuery
	}

	dialer := websocket.Dialer{}

	header := websocketRequestHeaders(r, sess)

	upstreamConn, resp, err := dialer.DialContext(r.Context(), targetURL, header)
	if err != nil {
		e.logger.Error("websocket dial failed",
			observability.String("target", targetURL),
			observability.Error(err))
		if e.metrics != nil {
			e.metrics.RecordUpstreamError("websocket_dial")
		}
		if resp != nil {
			defer resp.Body.Close()
			for k, vv := range resp.Header {
				for _, v := range vv {
					w.Header().Add(k, v)
				}
			}
			w.WriteHeader(resp.StatusCode)
			return
		}
		http.Error(w, "upstream request failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	defer upstreamConn.Close()

	clientConn, err := upgrader.Upgrade(w, r, websocketResponseHeaders(resp))
	if err != nil {
		e.logger.Error("websocket upgrade failed", observability.Error(err))
		return
	}
	defer clientConn.Close()

	relayWebSocket(clientConn, upstreamConn)
}

// relayWebSocket copies messages between the two connections and
// returns when either direction fails.
func relayWebSocket(clientConn, upstreamConn *websocket.Conn) {
	done := make(chan struct{}, 2)

	pump := func(src, dst *websocket.Conn) {
		defer func() { done <- struct{}{} }()
		for {
			msgType, msg, err := src.ReadMessage()
			if err != nil {
				_ = dst.WriteMessage(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				)
				return
			}
			if err := dst.WriteMessage(msgType, msg); err != nil {
				return
			}
		}
	}

	go pump(upstreamConn, clientConn)
	go pump(clientConn, upstreamConn)

	<-done
}

// websocketRequestHeaders forwards the inbound headers on the dial,
// minus the handshake headers gorilla manages itself, with the origin
// and session cookies set the same way as on plain proxied requests.
func websocketRequestHeaders(r *http.Request, sess *session.ProxySession) http.Header {
	header := http.Header{}
	for k, vv := range r.Header {
		switch strings.ToLower(k) {
		case "upgrade", "connection", "sec-websocket-key",
			"sec-websocket-version", "sec-websocket-extensions",
			"sec-websocket-protocol", "host", "accept-encoding":
			continue
		}
		for _, v := range vv {
			header.Add(k, v)
		}
	}

	header.Set("Origin", sess.TargetBase)

	if sess.Cookies != "" {
		if inbound := header.Get("Cookie"); inbound != "" {
			header.Set("Cookie", inbound+"; "+sess.Cookies)
		} else {
			header.Set("Cookie", sess.Cookies)
		}
	}

	return header
}

// websocketResponseHeaders extracts upstream handshake response headers
// to forward to the client, minus the protocol headers gorilla manages.
func websocketResponseHeaders(resp *http.Response) http.Header {
	if resp == nil {
		return nil
	}
	header := http.Header{}
	for k, vv := range resp.Header {
		switch strings.ToLower(k) {
		case "upgrade", "connection", "sec-websocket-accept":
			continue
		}
		for _, v := range vv {
			header.Add(k, v)
		}
	}
	return header
}

package proxy

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/bookproxy/internal/config"
	"github.com/vyrodovalexey/bookproxy/internal/session"
)

func TestProxyWebSocket_EchoPassthrough(t *testing.T) {
	var gotCookie string

	echoUpgrader := websocket.Upgrader{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")

		conn, err := echoUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for {
			msgType, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(msgType, msg); err != nil {
				return
			}
		}
	}))
	defer upstream.Close()

	e := newTestEngine(t, config.ProxyConfig{})
	sess := sessionFor(t, upstream.URL)
	sess.Cookies = "upstream_sid=abc"

	front := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.ProxyWebSocket(w, r, sess)
	}))
	defer front.Close()

	wsURL := "ws" + strings.TrimPrefix(front.URL, "http") + "/live"
	client, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer client.Close()

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("ping")))

	msgType, msg, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)
	assert.Equal(t, "ping", string(msg))

	assert.Equal(t, "upstream_sid=abc", gotCookie)
}

func TestProxyWebSocket_DialFailureIs502(t *testing.T) {
	e := newTestEngine(t, config.ProxyConfig{})
	sess := &session.ProxySession{
		ID:         "s",
		TargetHost: "127.0.0.1:1",
		TargetBase: "http://127.0.0.1:1",
	}

	front := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.ProxyWebSocket(w, r, sess)
	}))
	defer front.Close()

	wsURL := "ws" + strings.TrimPrefix(front.URL, "http") + "/live"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestIsWebSocketUpgrade(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://proxy.example/live", nil)
	assert.False(t, IsWebSocketUpgrade(r))

	r.Header.Set("Connection", "Upgrade")
	r.Header.Set("Upgrade", "websocket")
	assert.True(t, IsWebSocketUpgrade(r))
}

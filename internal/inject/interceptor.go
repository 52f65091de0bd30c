package inject

import "strings"

// interceptorTemplate is the client-side shim that rewrites URLs handed
// to the browser's network primitives at call time. HTML attributes are
// already rewritten server-side; this catches URLs that in-page code
// builds dynamically. The substitution rules are the same two the body
// rewrite applies: absolute target origin and protocol-relative host.
const interceptorTemplate = `<script data-bp="interceptor">
(function() {
  "use strict";
  var TARGET_BASE = "__TARGET_BASE__";
  var TARGET_HOST = "__TARGET_HOST__";
  var PROXY_BASE = "__PROXY_BASE__";
  var PROXY_HOST = "__PROXY_HOST__";

  function reroute(url) {
    if (typeof url !== "string") { return url; }
    if (url.indexOf(TARGET_BASE) !== -1) {
      url = url.split(TARGET_BASE).join(PROXY_BASE);
    }
    if (url.indexOf("//" + TARGET_HOST) !== -1) {
      url = url.split("//" + TARGET_HOST).join("//" + PROXY_HOST);
    }
    return url;
  }

  var originalFetch = window.fetch;
  if (originalFetch) {
    window.fetch = function(input, init) {
      if (typeof input === "string") {
        input = reroute(input);
      } else if (input && typeof input.url === "string") {
        input = new Request(reroute(input.url), input);
      }
      return originalFetch.call(this, input, init);
    };
  }

  var originalOpen = XMLHttpRequest.prototype.open;
  XMLHttpRequest.prototype.open = function(method, url) {
    var args = Array.prototype.slice.call(arguments);
    args[1] = reroute(url);
    return originalOpen.apply(this, args);
  };

  var OriginalWebSocket = window.WebSocket;
  if (OriginalWebSocket) {
    window.WebSocket = function(url, protocols) {
      url = reroute(url);
      return protocols === undefined
        ? new OriginalWebSocket(url)
        : new OriginalWebSocket(url, protocols);
    };
    window.WebSocket.prototype = OriginalWebSocket.prototype;
    window.WebSocket.CONNECTING = OriginalWebSocket.CONNECTING;
    window.WebSocket.OPEN = OriginalWebSocket.OPEN;
    window.WebSocket.CLOSING = OriginalWebSocket.CLOSING;
    window.WebSocket.CLOSED = OriginalWebSocket.CLOSED;
  }
})();
</script>`

// interceptorScript renders the interceptor for the given parameters.
func interceptorScript(p Params) string {
	return strings.NewReplacer(
		"__TARGET_BASE__", p.TargetBase,
		"__TARGET_HOST__", p.TargetHost,
		"__PROXY_BASE__", p.ProxyBase,
		"__PROXY_HOST__", p.ProxyHost,
	).Replace(interceptorTemplate)
}

package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html/charset"

	"github.com/vyrodovalexey/bookproxy/internal/config"
	"github.com/vyrodovalexey/bookproxy/internal/inject"
	"github.com/vyrodovalexey/bookproxy/internal/observability"
	"github.com/vyrodovalexey/bookproxy/internal/rewrite"
	"github.com/vyrodovalexey/bookproxy/internal/session"
)

const proxyTracerName = "bookproxy/proxy"

// streamChunkSize is the buffer size for the non-rewritable streaming
// path.
const streamChunkSize = 64 * 1024

// Engine executes the per-request proxy pipeline: forward the inbound
// request to the session's target origin, then rewrite or stream the
// response back.
type Engine struct {
	client   *http.Client
	rewriter *rewrite.Rewriter
	injector *inject.Injector
	logger   observability.Logger
	metrics  *observability.Metrics
	breaker  *gobreaker.CircuitBreaker

	mu                sync.RWMutex
	httpsHostSuffixes []string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the engine logger.
func WithEngineLogger(logger observability.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithEngineMetrics sets the engine metrics.
func WithEngineMetrics(m *observability.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates a proxy engine from the upstream and proxy
// configuration.
func NewEngine(upstream config.UpstreamConfig, proxyCfg config.ProxyConfig, opts ...EngineOption) *Engine {
	transport := &http.Transport{
		// The rewriter needs plaintext bodies; with compression left to
		// the transport a stripped Accept-Encoding would still yield
		// gzip.
		DisableCompression: true,
		MaxIdleConns:       upstream.MaxIdleConns,
		MaxConnsPerHost:    upstream.MaxConnsPerHost,
		IdleConnTimeout:    upstream.IdleConnTimeout.Duration(),
	}

	e := &Engine{
		client: &http.Client{
			Transport: transport,
			Timeout:   upstream.RequestTimeout.Duration(),
			// Redirects go back to the browser with a rewritten
			// Location so navigation stays on the proxy's origin.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		rewriter:          rewrite.NewRewriter(proxyCfg.PatternCacheSize),
		injector:          inject.NewInjector(proxyCfg.InjectCacheSize),
		logger:            observability.NopLogger(),
		httpsHostSuffixes: proxyCfg.HTTPSHostSuffixes,
	}

	if upstream.Breaker != nil && upstream.Breaker.Enabled {
		e.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "upstream",
			Timeout: upstream.Breaker.OpenTimeout.Duration(),
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= upstream.Breaker.MaxFailures
			},
		})
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// SetHTTPSHostSuffixes replaces the host suffixes forced to https, for
// configuration reload.
func (e *Engine) SetHTTPSHostSuffixes(suffixes []string) {
	e.mu.Lock()
	e.httpsHostSuffixes = suffixes
	e.mu.Unlock()
}

// PublicScheme decides the scheme of the proxy's public origin for a
// request: hosts matching a configured suffix (tunnelling providers
// that terminate TLS upstream of us) are always https, otherwise the
// connection's own TLS state decides.
func (e *Engine) PublicScheme(r *http.Request) string {
	host := r.Host
	if i := strings.LastIndex(host, ":"); i != -1 {
		host = host[:i]
	}

	e.mu.RLock()
	suffixes := e.httpsHostSuffixes
	e.mu.RUnlock()

	for _, suffix := range suffixes {
		if strings.HasSuffix(host, suffix) {
			return "https"
		}
	}

	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// Proxy forwards the inbound request to the session's target and writes
// the (rewritten or streamed) upstream response. The inbound path and
// query are appended to the session's target base unchanged.
func (e *Engine) Proxy(w http.ResponseWriter, r *http.Request, sess *session.ProxySession) {
	ctx := r.Context()

	targetURL := sess.TargetBase + r.URL.Path
	if r.URL.RawQuery != "" {
		targetURL += "?" + r.URL.RawQuery
	}

	proxyHost := r.Host
	proxyBase := e.PublicScheme(r) + "://" + proxyHost

	ctx, span := otel.Tracer(proxyTracerName).Start(ctx, "proxy.forward",
		oteltrace.WithSpanKind(oteltrace.SpanKindClient),
		oteltrace.WithAttributes(
			attribute.String("proxy.target_host", sess.TargetHost),
			attribute.String("http.method", r.Method),
			attribute.String("http.url", targetURL),
		),
	)
	defer span.End()

	resp, err := e.roundTrip(ctx, r, sess, targetURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream request failed")
		e.logger.Error("upstream request failed",
			observability.String("target", targetURL),
			observability.String("method", r.Method),
			observability.Error(err))
		if e.metrics != nil {
			e.metrics.RecordUpstreamError(upstreamErrorKind(err))
		}
		// The upstream failure text goes back to the caller; this is an
		// internal tool and the detail is worth more than opacity.
		http.Error(w, "upstream request failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	contentType := resp.Header.Get("Content-Type")

	if !isRewritable(contentType) {
		copyResponseHeaders(w, resp, e.rewriter, sess, proxyHost, proxyBase, false)
		w.WriteHeader(resp.StatusCode)
		e.stream(w, resp.Body)
		if e.metrics != nil {
			e.metrics.RecordProxiedResponse(observability.ResponseClassStreamed)
		}
		return
	}

	body, err := io.ReadAll(decodedReader(resp.Body, contentType))
	if err != nil {
		span.RecordError(err)
		e.logger.Error("reading upstream body failed",
			observability.String("target", targetURL),
			observability.Error(err))
		http.Error(w, "upstream request failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	start := time.Now()
	body = e.rewriter.RewriteBody(body, sess.TargetHost, sess.TargetBase, proxyHost, proxyBase)

	html := isHTML(contentType)
	if html {
		fragment := e.injector.BuildInjection(inject.Params{
			TargetHost: sess.TargetHost,
			TargetBase: sess.TargetBase,
			ProxyHost:  proxyHost,
			ProxyBase:  proxyBase,
			Autobook:   sess.Autobook,
			Engine:     sess.AutobookEngine,
		})
		body = inject.SpliceAfterHead(body, fragment)
	}
	if e.metrics != nil {
		e.metrics.ObserveRewrite(time.Since(start))
		e.metrics.RecordProxiedResponse(observability.ResponseClassRewritten)
	}

	copyResponseHeaders(w, resp, e.rewriter, sess, proxyHost, proxyBase, html)
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(body); err != nil {
		e.logger.Debug("client write failed", observability.Error(err))
	}
}

// roundTrip builds and sends the upstream request, going through the
// circuit breaker when one is configured. The breaker only rejects
// while open; a rejected or failed request is never retried.
func (e *Engine) roundTrip(
	ctx context.Context,
	r *http.Request,
	sess *session.ProxySession,
	targetURL string,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, r.Method, targetURL, r.Body)
	if err != nil {
		return nil, &ProxyError{Op: "build_request", Target: targetURL, Message: "invalid target", Cause: err}
	}

	req.Header = buildUpstreamHeaders(r, sess)
	req.Host = sess.TargetHost
	req.ContentLength = r.ContentLength
	observability.InjectTraceContext(ctx, req)

	start := time.Now()
	var resp *http.Response

	if e.breaker != nil {
		result, berr := e.breaker.Execute(func() (interface{}, error) {
			return e.client.Do(req)
		})
		if berr != nil {
			err = berr
		} else {
			resp = result.(*http.Response)
		}
	} else {
		resp, err = e.client.Do(req)
	}

	if e.metrics != nil {
		e.metrics.RecordUpstream(sess.TargetHost, time.Since(start))
	}
	if err != nil {
		return nil, NewUpstreamError(targetURL, err)
	}
	return resp, nil
}

// stream copies the body to the client in fixed-size chunks, flushing
// after each, and stops on the first client write error.
func (e *Engine) stream(w http.ResponseWriter, body io.Reader) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, streamChunkSize)

	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				e.logger.Debug("client disconnected mid-stream", observability.Error(werr))
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				e.logger.Debug("upstream body read error", observability.Error(err))
			}
			return
		}
	}
}

// decodedReader wraps the body in a charset decoder when the declared
// content type names one. Decoding is lossy by design: rewriting must
// see UTF-8, and an undecodable byte is better replaced than fatal.
func decodedReader(body io.Reader, contentType string) io.Reader {
	reader, err := charset.NewReader(body, contentType)
	if err != nil {
		return body
	}
	return reader
}

// upstreamErrorKind classifies a transport failure for metrics.
func upstreamErrorKind(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	default:
		return "unreachable"
	}
}

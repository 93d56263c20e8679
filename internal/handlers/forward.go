package handlers

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"caching-proxy/internal/cache"
	"caching-proxy/internal/chunk"
	"caching-proxy/internal/metrics"
	"caching-proxy/internal/upstream"
	"caching-proxy/pkg/logging"

	"go.uber.org/zap"
)

// targetParam names the query parameter carrying the origin URL.
const targetParam = "url"

// ResponseCache hands out exclusive sessions on the response cache.
type ResponseCache interface {
	Acquire(ctx context.Context) cache.Session
}

// Upstream performs the outbound fetch on a cache miss.
type Upstream interface {
	Forward(ctx context.Context, req *upstream.Request) (*http.Response, error)
}

// ForwardHandler serves every proxied request: it answers from the response
// cache when a fresh body exists and otherwise fetches the url parameter's
// target, caches the body and relays it.
type ForwardHandler struct {
	Cache     ResponseCache
	Upstream  Upstream
	ChunkSize int
}

func NewForwardHandler(c ResponseCache, up Upstream, chunkSize int) *ForwardHandler {
	if chunkSize <= 0 {
		chunkSize = chunk.DefaultSize
	}
	return &ForwardHandler{
		Cache:     c,
		Upstream:  up,
		ChunkSize: chunkSize,
	}
}

// reply is a fully materialized response ready for emission.
type reply struct {
	status int
	header http.Header
	body   []byte
	hit    bool

	upstreamLatency time.Duration
}

func (h *ForwardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	target, err := targetURL(r)
	if err != nil {
		logger.Warn("invalid proxy request", zap.Error(err))
		writeError(w, r, err)
		return
	}

	key := cache.KeyFromRequest(r)

	rep, err := h.resolve(ctx, r, key, target)
	if err != nil {
		logger.Error("upstream fetch failed",
			zap.String("cache_key", key.String()),
			zap.String("target", target),
			zap.Error(err),
		)
		writeError(w, r, err)
		return
	}

	if rep.hit {
		logger.Info("serving cached response", zap.String("uri", key.URI))
	}

	h.emit(w, rep)

	logger.Info("cache_decision",
		zap.String("cache_key", key.String()),
		zap.Bool("cache_hit", rep.hit),
		zap.Int("status", rep.status),
		zap.Int("bytes", len(rep.body)),
		zap.Duration("upstream_latency", rep.upstreamLatency),
		zap.Duration("total_latency", time.Since(start)),
	)
}

// resolve holds the cache lock from the lookup until the cache update, so a
// miss keeps every other request waiting while the origin is fetched.
func (h *ForwardHandler) resolve(ctx context.Context, r *http.Request, key cache.Key, target string) (*reply, error) {
	session := h.Cache.Acquire(ctx)
	defer session.Release()

	if body, ok := session.Get(key); ok {
		return &reply{status: http.StatusOK, body: body, hit: true}, nil
	}

	fetchStart := time.Now()
	resp, err := h.Upstream.Forward(ctx, &upstream.Request{
		Method:        r.Method,
		URL:           target,
		Header:        r.Header,
		Body:          r.Body,
		ContentLength: r.ContentLength,
		ForwardedFor:  peerIP(r.RemoteAddr),
	})
	if err != nil {
		metrics.UpstreamErrorsTotal.WithLabelValues("fetch").Inc()
		return nil, fmt.Errorf("%w: %w", ErrUpstreamFetch, err)
	}
	defer resp.Body.Close()

	header := forwardableHeader(resp.Header)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.UpstreamErrorsTotal.WithLabelValues("drain").Inc()
		return nil, fmt.Errorf("%w: %w", ErrBodyDrain, err)
	}
	upstreamLatency := time.Since(fetchStart)
	metrics.UpstreamLatencySeconds.Observe(upstreamLatency.Seconds())

	session.Set(key, body)

	return &reply{
		status:          resp.StatusCode,
		header:          header,
		body:            body,
		upstreamLatency: upstreamLatency,
	}, nil
}

// emit writes the reply in bounded chunks, flushing after each one.
func (h *ForwardHandler) emit(w http.ResponseWriter, rep *reply) {
	dst := w.Header()
	for name, values := range rep.header {
		dst[name] = values
	}
	if _, ok := rep.header["Content-Type"]; !ok {
		// nil suppresses net/http's sniffed Content-Type.
		dst["Content-Type"] = nil
	}
	w.WriteHeader(rep.status)

	flusher, _ := w.(http.Flusher)
	for c := range chunk.Split(rep.body, h.ChunkSize) {
		if _, err := w.Write(c); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// targetURL returns the origin URL named by the url query parameter.
func targetURL(r *http.Request) (string, error) {
	raw := r.URL.Query().Get(targetParam)
	if raw == "" {
		return "", ErrMissingTarget
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidTarget, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidTarget, raw)
	}
	return raw, nil
}

// forwardableHeader copies origin headers except Connection.
func forwardableHeader(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for name, values := range src {
		if strings.EqualFold(name, "Connection") {
			continue
		}
		dst[name] = append([]string(nil), values...)
	}
	return dst
}

func peerIP(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

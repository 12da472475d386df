// Package proxyengine wires registry resolution, load balancing, the
// cache, and header rewriting into the single inbound-request pipeline
// described by spec.md §4.6.
package proxyengine

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/arashi-labs/reverseproxy/internal/applog"
	"github.com/arashi-labs/reverseproxy/internal/balancer"
	"github.com/arashi-labs/reverseproxy/internal/cache"
	"github.com/arashi-labs/reverseproxy/internal/headers"
	"github.com/arashi-labs/reverseproxy/internal/metrics"
	"github.com/arashi-labs/reverseproxy/internal/proxyerr"
	"github.com/arashi-labs/reverseproxy/internal/registry"
)

const defaultMaxBodyBytes = 10 << 20 // 10 MiB

var unsafeMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

var bodyForwardedMethods = map[string]bool{
	http.MethodPost:  true,
	http.MethodPut:   true,
	http.MethodPatch: true,
}

// Config bounds engine-wide behavior not owned by any one component.
type Config struct {
	MaxBodyBytes  int64
	UpstreamTimeout time.Duration
}

// DefaultConfig mirrors spec.md §4.6's defaults.
func DefaultConfig() Config {
	return Config{MaxBodyBytes: defaultMaxBodyBytes, UpstreamTimeout: 30 * time.Second}
}

// Engine is the reverse proxy's request handler.
type Engine struct {
	reg      *registry.Registry
	balancer func(registry.Strategy) balancer.Balancer
	cacheSvc *cache.Service
	cfg      Config
	client   *http.Client

	limitersMu sync.Mutex
	limiters   map[*registry.Service]*Limiter
	limiterCfg LimiterConfig
}

// New builds an Engine over reg, using balancer.New to resolve a Service's
// configured strategy and cacheSvc (nil disables caching entirely).
func New(reg *registry.Registry, cacheSvc *cache.Service, cfg Config, limiterCfg LimiterConfig) *Engine {
	if cfg.MaxBodyBytes <= 0 {
		cfg = DefaultConfig()
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &Engine{
		reg:        reg,
		balancer:   balancer.New,
		cacheSvc:   cacheSvc,
		cfg:        cfg,
		client:     &http.Client{Transport: transport, Timeout: cfg.UpstreamTimeout},
		limiters:   make(map[*registry.Service]*Limiter),
		limiterCfg: limiterCfg,
	}
}

func (e *Engine) limiterFor(svc *registry.Service) *Limiter {
	e.limitersMu.Lock()
	defer e.limitersMu.Unlock()
	l, ok := e.limiters[svc]
	if !ok {
		l = NewLimiter(e.limiterCfg)
		e.limiters[svc] = l
	}
	return l
}

// ServeHTTP implements the full request pipeline of spec.md §4.6.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	cacheOutcome := ""

	// Step 1: body size cap.
	var body []byte
	if r.Body != nil {
		limited := io.LimitReader(r.Body, e.cfg.MaxBodyBytes+1)
		buf, err := io.ReadAll(limited)
		if err != nil {
			e.writeInternalError(w, r, start, err)
			return
		}
		if int64(len(buf)) > e.cfg.MaxBodyBytes {
			e.writeSynthetic(w, r, start, http.StatusRequestEntityTooLarge, "Request body too large. Max size: 10MB", cacheOutcome)
			return
		}
		body = buf
	}

	// Step 2: Host header.
	hostHeader := r.Host
	if hostHeader == "" {
		e.writeSynthetic(w, r, start, http.StatusBadRequest, "Missing Host header", cacheOutcome)
		return
	}

	// Step 3: resolve service.
	svc := e.reg.Resolve(hostHeader)
	if svc == nil {
		e.writeSyntheticKind(w, r, start, proxyerr.RoutingError, cacheOutcome)
		return
	}

	// Step 4: path_with_query.
	pathWithQuery := r.URL.Path
	if r.URL.RawQuery != "" {
		pathWithQuery += "?" + r.URL.RawQuery
	}
	normalizedHost := registry.NormalizeHost(hostHeader)

	method := r.Method
	isSafe := method == http.MethodGet || method == http.MethodHead

	// Step 5: unsafe-method invalidation.
	if unsafeMethods[method] && e.cacheSvc != nil {
		e.cacheSvc.InvalidateUnsafeMethod(normalizedHost, pathWithQuery)
	}

	// Step 6: cache lookup on safe methods.
	var revalidating *cache.Entry
	if isSafe && e.cacheSvc != nil {
		if entry, ok := e.cacheSvc.Lookup(method, normalizedHost, pathWithQuery, r.Header); ok {
			if e.cacheSvc.Fresh(entry) {
				metrics.CacheHitInc()
				e.writeCachedEntry(w, r, start, entry, ensureRequestID(r))
				return
			}
			revalidating = entry
		}
	}
	if isSafe && e.cacheSvc != nil && revalidating == nil {
		metrics.CacheMissInc()
	}

	// Step 7: healthy hosts.
	healthyHosts := svc.HealthyHosts()
	if len(healthyHosts) == 0 {
		e.writeSyntheticKind(w, r, start, proxyerr.AvailabilityError, cacheOutcome)
		return
	}

	// Step 8: select host.
	lb := e.balancer(svc.Strategy)
	host := lb.Select(svc)
	if host == nil {
		e.writeSyntheticKind(w, r, start, proxyerr.AvailabilityError, cacheOutcome)
		return
	}

	limiter := e.limiterFor(svc)
	if !limiter.TryAcquire() {
		e.writeSyntheticKind(w, r, start, proxyerr.AvailabilityError, cacheOutcome)
		return
	}
	defer limiter.Release()

	requestID := ensureRequestID(r)
	w.Header().Set("X-Request-ID", requestID)

	// Step 9 + 10: build upstream request.
	upstreamURL := "http://" + host.HostPort() + pathWithQuery
	requestCacheOutcome := "MISS"
	if revalidating != nil {
		requestCacheOutcome = "REVALIDATING"
	}
	applog.Emit("debug", "proxy", map[string]string{"request_id": requestID, "upstream": host.HostPort()},
		applog.RequestLine(requestID, method, upstreamURL, requestCacheOutcome))
	outHeader := headers.Strip(r.Header)
	outHeader.Del("Host")
	scheme := headers.SchemeOf(r)
	headers.AddForwarded(outHeader, r.RemoteAddr, r.Host, scheme)
	if revalidating != nil {
		if revHeader, ok := cache.RevalidationHeaders(revalidating); ok {
			for k, vv := range revHeader {
				for _, v := range vv {
					outHeader.Add(k, v)
				}
			}
		}
	}

	var outBody io.Reader
	if bodyForwardedMethods[method] {
		outBody = bytes.NewReader(body)
	}

	outReq, err := http.NewRequestWithContext(r.Context(), method, upstreamURL, outBody)
	if err != nil {
		e.writeInternalError(w, r, start, err)
		return
	}
	outReq.Header = outHeader
	outReq.Host = host.HostPort()

	metrics.UpstreamInflightInc(host.HostPort())
	upstreamStart := time.Now()
	resp, err := e.client.Do(outReq)
	metrics.UpstreamInflightDec(host.HostPort())

	// Step 12: upstream failure.
	if err != nil {
		e.reg.MarkUnhealthy(host)
		perr := proxyerr.New(classifyTransportError(err), err)
		applog.Emit("error", "proxy", map[string]string{
			"method": method, "host": normalizedHost, "request_id": requestID,
		}, perr.Error())
		e.writeSyntheticKind(w, r, start, perr.Kind, cacheOutcome)
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		e.writeInternalError(w, r, start, err)
		return
	}
	metrics.ObserveUpstreamResponse(host.HostPort(), method, resp.StatusCode, time.Since(upstreamStart))

	sanitized := headers.Strip(resp.Header)

	// Step 13: 304 handling.
	if resp.StatusCode == http.StatusNotModified && revalidating != nil && e.cacheSvc != nil {
		updated := e.cacheSvc.ApplyNotModified(revalidating, resp.Header)
		e.cacheSvc.Reinsert(method, normalizedHost, pathWithQuery, "", updated)
		metrics.ObserveResponse(method, http.StatusOK, "REVALIDATED", time.Since(start))
		e.writeCachedEntry(w, r, start, updated, requestID)
		return
	}

	if isSafe && resp.StatusCode == http.StatusOK && e.cacheSvc != nil {
		if cache.Cacheable(method, resp.StatusCode, resp.Header) {
			e.cacheSvc.Store(method, normalizedHost, pathWithQuery, r.Header, sanitized, resp.StatusCode, respBody)
		}
	}

	cacheOutcome = "MISS"
	if revalidating != nil {
		cacheOutcome = "STALE"
	}
	for k, vv := range sanitized {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(respBody)
	metrics.ObserveResponse(method, resp.StatusCode, cacheOutcome, time.Since(start))
	applog.Emit("info", "proxy", map[string]string{
		"method": method, "status": strconv.Itoa(resp.StatusCode), "cache": cacheOutcome, "request_id": requestID,
	}, applog.ResponseLine(requestID, method, resp.StatusCode, len(respBody), time.Since(start), cacheOutcome, host.HostPort()))
}

func (e *Engine) writeCachedEntry(w http.ResponseWriter, r *http.Request, start time.Time, entry *cache.Entry, requestID string) {
	w.Header().Set("X-Request-ID", requestID)
	for k, vv := range entry.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	age := int(entry.Age(time.Now()).Seconds())
	if age < 0 {
		age = 0
	}
	w.Header().Set("Age", strconv.Itoa(age))
	w.Header().Set("X-Cache", "HIT")
	w.WriteHeader(entry.StatusCode)
	_, _ = w.Write(entry.Body)
	metrics.ObserveResponse(r.Method, entry.StatusCode, "HIT", time.Since(start))
}

func (e *Engine) writeSynthetic(w http.ResponseWriter, r *http.Request, start time.Time, status int, body, cacheOutcome string) {
	if requestID := r.Header.Get("X-Request-ID"); requestID != "" {
		w.Header().Set("X-Request-ID", requestID)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
	if cacheOutcome == "" {
		cacheOutcome = "BYPASS"
	}
	metrics.ObserveResponse(r.Method, status, cacheOutcome, time.Since(start))
}

// writeSyntheticKind surfaces a proxyerr.Kind using its fixed status/body
// pair, falling back to a generic 500 for a kind with no registered surface
// (CacheError, or ClientProtocolError, which callers handle directly since
// its status varies by which rule was broken).
func (e *Engine) writeSyntheticKind(w http.ResponseWriter, r *http.Request, start time.Time, kind proxyerr.Kind, cacheOutcome string) {
	status, ok := proxyerr.Status(kind)
	if !ok {
		e.writeSynthetic(w, r, start, http.StatusInternalServerError, "Internal Server Error", cacheOutcome)
		return
	}
	body, _ := proxyerr.Body(kind)
	e.writeSynthetic(w, r, start, status, body, cacheOutcome)
}

func (e *Engine) writeInternalError(w http.ResponseWriter, r *http.Request, start time.Time, err error) {
	applog.Emit("error", "proxy", map[string]string{"method": r.Method}, err.Error())
	e.writeSynthetic(w, r, start, http.StatusInternalServerError, "Internal Server Error", "BYPASS")
}

func classifyTransportError(err error) proxyerr.Kind {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return proxyerr.UpstreamTransportError
	}
	return proxyerr.UpstreamTransportError
}

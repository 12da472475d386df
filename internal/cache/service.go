// Package cache implements a shared, in-memory HTTP response cache with
// RFC 9111-style freshness, Vary-based variant keying, and conditional
// revalidation, bounded by an LRU eviction policy.
package cache

import (
	"net/http"
	"time"
)

// Service orchestrates cacheability, key construction, lookup, and
// revalidation on top of a Store. It holds no upstream knowledge: the
// forwarding layer decides when to call it and what to do with a miss.
type Service struct {
	store *Store
	now   func() time.Time
}

// NewService builds a Service over a newly allocated Store of the given
// capacity (<=0 uses the default).
func NewService(capacity int) *Service {
	return &Service{store: NewStore(capacity), now: time.Now}
}

// Lookup implements spec.md §4.4.3's lookup order for a safe (GET/HEAD)
// request: try the simple key first (covers un-varied resources and is the
// fast path); if nothing is stored there, consult the Vary index for the
// resource and, if one is indexed, build the true variant key and probe
// again. A missing or stale Vary-index entry simply falls through to a
// miss — never an error.
func (s *Service) Lookup(method, host, pathWithQuery string, reqHeader http.Header) (*Entry, bool) {
	sk := simpleKey(method, host, pathWithQuery)
	if e, ok := s.store.Get(sk); ok {
		return e, true
	}

	res := sk.resource()
	varyHeaderValue, ok := s.store.VaryHeaderFor(res)
	if !ok {
		return nil, false
	}
	names, isStar := ParseVaryNames(varyHeaderValue)
	if isStar {
		// Vary: * never matches a stored variant; treated as always-miss.
		return nil, false
	}
	fp := buildVaryFingerprint(names, FromRequestHeader(reqHeader))
	vk := sk
	vk.VaryFingerprint = fp
	return s.store.Get(vk)
}

// Fresh reports whether a looked-up entry may be served as-is right now.
func (s *Service) Fresh(e *Entry) bool {
	return e.Fresh(s.now())
}

// Cacheable decides, per spec.md §4.4.1, whether a response may be stored
// at all: only GET/HEAD requests, only status 200, never when Cache-Control
// forbids it, never a response whose Vary header is "*", and only when at
// least one of Cache-Control: public / max-age=N / s-maxage=N is present.
func Cacheable(method string, statusCode int, respHeader http.Header) bool {
	if method != http.MethodGet && method != http.MethodHead {
		return false
	}
	if statusCode != http.StatusOK {
		return false
	}
	d := ParseDirectives(respHeader.Get("Cache-Control"))
	if d.NoStore || d.Private {
		return false
	}
	if _, isStar := ParseVaryNames(respHeader.Get("Vary")); isStar {
		return false
	}
	return d.Public || d.HasMaxAge || d.HasSMaxAge
}

// Store inserts a cacheable response. method/host/pathWithQuery identify
// the resource; reqHeader is the originating request (consulted to render
// the Vary fingerprint when the response declares Vary); respHeader/body
// are the upstream response, already filtered of hop-by-hop headers by the
// caller.
func (s *Service) Store(method, host, pathWithQuery string, reqHeader, respHeader http.Header, statusCode int, body []byte) {
	sk := simpleKey(method, host, pathWithQuery)
	res := sk.resource()

	varyHeaderValue := respHeader.Get("Vary")
	key := sk
	if varyHeaderValue != "" {
		names, isStar := ParseVaryNames(varyHeaderValue)
		if isStar {
			return
		}
		key.VaryFingerprint = buildVaryFingerprint(names, FromRequestHeader(reqHeader))
		s.store.SetVaryHeaderFor(res, varyHeaderValue)
	} else {
		s.store.ClearVaryHeaderFor(res)
	}

	e := &Entry{
		StatusCode: statusCode,
		Header:     respHeader.Clone(),
		Body:       body,
		CachedAt:   s.now(),
		Directives: ParseDirectives(respHeader.Get("Cache-Control")),
		Validators: Validators{
			ETag:         respHeader.Get("ETag"),
			LastModified: respHeader.Get("Last-Modified"),
		},
	}
	s.store.Put(key, e)
}

// RevalidationHeaders builds the If-None-Match / If-Modified-Since pair to
// send upstream when an entry needs revalidation. Returns ok=false if the
// entry carries no validators at all (the caller must then treat this as a
// plain miss and re-fetch unconditionally).
func RevalidationHeaders(e *Entry) (header http.Header, ok bool) {
	if !e.HasValidators() {
		return nil, false
	}
	h := make(http.Header)
	if e.Validators.ETag != "" {
		h.Set("If-None-Match", e.Validators.ETag)
	}
	if e.Validators.LastModified != "" {
		h.Set("If-Modified-Since", e.Validators.LastModified)
	}
	return h, true
}

// ApplyNotModified merges a 304 response into a previously stored entry, per
// spec.md §4.4.5: CachedAt resets to now, Directives and ETag update from
// whatever the 304 carried (a revalidation response may refresh
// Cache-Control without resending the body), and the original status code,
// header set, and body are otherwise preserved.
func (s *Service) ApplyNotModified(e *Entry, revalidationRespHeader http.Header) *Entry {
	updated := *e
	updated.CachedAt = s.now()
	if cc := revalidationRespHeader.Get("Cache-Control"); cc != "" {
		updated.Directives = ParseDirectives(cc)
	}
	if et := revalidationRespHeader.Get("ETag"); et != "" {
		updated.Validators.ETag = et
	}
	return &updated
}

// Reinsert stores an entry already built by ApplyNotModified back under its
// original key.
func (s *Service) Reinsert(method, host, pathWithQuery, varyFingerprint string, e *Entry) {
	k := Key{Method: method, Host: host, PathWithQuery: pathWithQuery, VaryFingerprint: varyFingerprint}
	s.store.Put(k, e)
}

// InvalidateUnsafeMethod purges cached GET/HEAD entries for a resource
// ahead of forwarding a POST/PUT/PATCH/DELETE to the same (host, path).
func (s *Service) InvalidateUnsafeMethod(host, pathWithQuery string) {
	s.store.InvalidateUnsafeMethod(host, pathWithQuery)
}

// Stats exposes store counters for metrics collection.
func (s *Service) Stats() Stats {
	return s.store.Stats()
}

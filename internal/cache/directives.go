package cache

import (
	"net/http"
	"strconv"
	"strings"
)

// Directives holds the parsed Cache-Control flags and values relevant to
// shared-cache freshness and cacheability decisions.
type Directives struct {
	MaxAge          int
	HasMaxAge       bool
	SMaxAge         int
	HasSMaxAge      bool
	NoCache         bool
	NoStore         bool
	MustRevalidate  bool
	ProxyRevalidate bool
	Private         bool
	Public          bool
}

// ParseDirectives tokenizes a Cache-Control header value per spec.md
// §4.4.8 / §9: split on ",", trim whitespace, split each token on "=".
// This never uses substring containment (the documented reference-source
// bug where the substring "private" inside an unrelated token would
// false-match).
func ParseDirectives(headerValue string) Directives {
	var d Directives
	if headerValue == "" {
		return d
	}
	for _, tok := range strings.Split(headerValue, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		name, value, hasValue := strings.Cut(tok, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.Trim(strings.TrimSpace(value), `"`)

		switch name {
		case "no-cache":
			d.NoCache = true
		case "no-store":
			d.NoStore = true
		case "must-revalidate":
			d.MustRevalidate = true
		case "proxy-revalidate":
			d.ProxyRevalidate = true
		case "private":
			d.Private = true
		case "public":
			d.Public = true
		case "max-age":
			if hasValue {
				if n, err := strconv.Atoi(value); err == nil && n >= 0 {
					d.MaxAge = n
					d.HasMaxAge = true
				}
			}
		case "s-maxage":
			if hasValue {
				if n, err := strconv.Atoi(value); err == nil && n >= 0 {
					d.SMaxAge = n
					d.HasSMaxAge = true
				}
			}
		}
	}
	return d
}

// Lifetime returns the effective freshness lifetime in seconds: s-maxage if
// present, else max-age, else ok=false (no heuristic freshness is applied).
func (d Directives) Lifetime() (seconds int, ok bool) {
	if d.HasSMaxAge {
		return d.SMaxAge, true
	}
	if d.HasMaxAge {
		return d.MaxAge, true
	}
	return 0, false
}

// ParseVaryNames splits a Vary header value into its header names. Returns
// (nil, true) for "*".
func ParseVaryNames(varyHeaderValue string) (names []string, isStar bool) {
	v := strings.TrimSpace(varyHeaderValue)
	if v == "" {
		return nil, false
	}
	if v == "*" {
		return nil, true
	}
	for _, tok := range strings.Split(v, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		names = append(names, tok)
	}
	return names, false
}

// HeaderValue is a small indirection so callers can build a fingerprint
// from either an *http.Request or a plain map without this package
// depending on *http.Request's full surface.
type HeaderValue func(name string) string

// FromRequestHeader adapts an http.Header to HeaderValue.
func FromRequestHeader(h http.Header) HeaderValue {
	return func(name string) string { return h.Get(name) }
}

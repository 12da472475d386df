// Package headers implements hop-by-hop header filtering and the
// X-Forwarded-* request rewriting applied on every forwarded request.
package headers

import (
	"net/http"
	"strings"
)

// hopByHop lists the headers that are meaningful only for a single
// transport hop and must never be forwarded or cached as-is.
var hopByHop = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

// Strip returns a copy of h with every hop-by-hop header removed, including
// any extra header named by a Connection token (RFC 9110 §7.6.1: "Connection:
// X-Custom-Header" means X-Custom-Header is hop-by-hop for this message too).
// Applied to both the response the proxy forwards to the client and the
// response it stores in the cache, so a cached entry never carries transport
// artifacts from the connection that happened to populate it.
func Strip(h http.Header) http.Header {
	out := h.Clone()
	for _, extra := range connectionTokens(h) {
		out.Del(extra)
	}
	for _, name := range hopByHop {
		out.Del(name)
	}
	return out
}

func connectionTokens(h http.Header) []string {
	var tokens []string
	for _, v := range h.Values("Connection") {
		for _, tok := range strings.Split(v, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// AddForwarded annotates the outbound request's headers with the standard
// forwarding chain: X-Forwarded-For (appended to any existing chain),
// X-Forwarded-Proto, and X-Forwarded-Host. It does not touch Host; the
// caller sets the outbound request's Host itself.
func AddForwarded(out http.Header, clientAddr, originalHost, scheme string) {
	if clientIP, _, ok := splitHostPort(clientAddr); ok {
		if prior := out.Get("X-Forwarded-For"); prior != "" {
			out.Set("X-Forwarded-For", prior+", "+clientIP)
		} else {
			out.Set("X-Forwarded-For", clientIP)
		}
	}
	if scheme != "" {
		out.Set("X-Forwarded-Proto", scheme)
	}
	if originalHost != "" {
		out.Set("X-Forwarded-Host", originalHost)
	}
}

func splitHostPort(addr string) (host string, port string, ok bool) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return addr, "", addr != ""
	}
	return addr[:idx], addr[idx+1:], true
}

// SchemeOf reports the scheme the original client request arrived over:
// "https" if TLS terminated here, else whatever the trusted
// X-Forwarded-Proto already carries, else "http".
func SchemeOf(req *http.Request) string {
	if req.TLS != nil {
		return "https"
	}
	if sch := req.Header.Get("X-Forwarded-Proto"); sch != "" {
		return sch
	}
	return "http"
}

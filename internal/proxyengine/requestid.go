package proxyengine

import (
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

var requestCounter int64

// ensureRequestID returns the request's existing X-Request-ID, generating
// and setting one if absent.
func ensureRequestID(req *http.Request) string {
	id := strings.TrimSpace(req.Header.Get("X-Request-ID"))
	if id == "" {
		id = fmt.Sprintf("%d-%d", time.Now().UnixNano(), atomic.AddInt64(&requestCounter, 1))
		req.Header.Set("X-Request-ID", id)
	}
	return id
}

// Package integration wires the real registry, cache, balancer, and
// devbackend together to exercise the full proxy pipeline end to end,
// the way the teacher's own proxy_integration_test.go does for its
// reverse proxy.
package integration_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/arashi-labs/reverseproxy/internal/cache"
	"github.com/arashi-labs/reverseproxy/internal/devbackend"
	"github.com/arashi-labs/reverseproxy/internal/proxyengine"
	"github.com/arashi-labs/reverseproxy/internal/registry"
)

func hostFromURL(t *testing.T, rawURL string) *registry.Host {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	parts := strings.Split(u.Host, ":")
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return registry.NewHost(parts[0], port)
}

func TestFullPipelineServesCacheableEndpointAndHonorsHostRouting(t *testing.T) {
	backend := httptest.NewServer(devbackend.NewHandler())
	defer backend.Close()

	host := hostFromURL(t, backend.URL)
	svc := registry.NewService("devbackend", "app.example.com", registry.RoundRobin, []*registry.Host{host})
	reg := registry.New([]*registry.Service{svc})
	eng := proxyengine.New(reg, cache.NewService(100), proxyengine.DefaultConfig(), proxyengine.DefaultLimiterConfig())

	proxy := httptest.NewServer(eng)
	defer proxy.Close()

	req, _ := http.NewRequest(http.MethodGet, proxy.URL+"/cache", nil)
	req.Host = "app.example.com"
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /cache through proxy: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("expected proxy to stamp X-Request-ID")
	}

	// Second request should be a cache hit.
	req2, _ := http.NewRequest(http.MethodGet, proxy.URL+"/cache", nil)
	req2.Host = "app.example.com"
	resp2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("second GET: %v", err)
	}
	resp2.Body.Close()
	if resp2.Header.Get("X-Cache") != "HIT" {
		t.Fatalf("expected X-Cache: HIT on second request, got %q", resp2.Header.Get("X-Cache"))
	}
}

func TestUnknownHostYields404BeforeContactingUpstream(t *testing.T) {
	var contacted bool
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contacted = true
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	host := hostFromURL(t, backend.URL)
	svc := registry.NewService("devbackend", "app.example.com", registry.RoundRobin, []*registry.Host{host})
	reg := registry.New([]*registry.Service{svc})
	eng := proxyengine.New(reg, cache.NewService(10), proxyengine.DefaultConfig(), proxyengine.DefaultLimiterConfig())

	proxy := httptest.NewServer(eng)
	defer proxy.Close()

	req, _ := http.NewRequest(http.MethodGet, proxy.URL+"/anything", nil)
	req.Host = "unknown.example.com"
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if contacted {
		t.Fatalf("upstream must never be contacted for an unresolved host")
	}
}

// TestFullPipelineRevalidates304IntoASynthesized200Hit drives spec.md
// §4.4.5's revalidation merge through the real Engine.ServeHTTP pipeline,
// against the devbackend fixture's own ETag-conditional /validated
// endpoint, instead of exercising cache.Service or the fixture in
// isolation: a first GET is stored, a second GET after the entry goes
// stale forces a conditional request upstream, the upstream answers 304,
// and the client must see the merge synthesized back into a 200 cache hit
// carrying the original cached body.
func TestFullPipelineRevalidates304IntoASynthesized200Hit(t *testing.T) {
	backend := httptest.NewServer(devbackend.NewHandler())
	defer backend.Close()

	host := hostFromURL(t, backend.URL)
	svc := registry.NewService("devbackend", "validated.example.com", registry.RoundRobin, []*registry.Host{host})
	reg := registry.New([]*registry.Service{svc})
	eng := proxyengine.New(reg, cache.NewService(100), proxyengine.DefaultConfig(), proxyengine.DefaultLimiterConfig())

	proxy := httptest.NewServer(eng)
	defer proxy.Close()

	get := func() *http.Response {
		req, _ := http.NewRequest(http.MethodGet, proxy.URL+"/validated", nil)
		req.Host = "validated.example.com"
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET /validated through proxy: %v", err)
		}
		return resp
	}

	first := get()
	firstBody, _ := io.ReadAll(first.Body)
	first.Body.Close()
	if first.StatusCode != http.StatusOK {
		t.Fatalf("expected first request to return 200, got %d", first.StatusCode)
	}
	if first.Header.Get("X-Cache") == "HIT" {
		t.Fatalf("first request must not already be a cache hit")
	}

	// /validated is Cache-Control: max-age=1; wait for the stored entry to
	// go stale so the next GET forces a conditional revalidation upstream
	// rather than serving straight from the cache.
	time.Sleep(1100 * time.Millisecond)

	second := get()
	secondBody, _ := io.ReadAll(second.Body)
	second.Body.Close()
	if second.StatusCode != http.StatusOK {
		t.Fatalf("expected revalidated response to surface as 200, got %d", second.StatusCode)
	}
	if second.Header.Get("X-Cache") != "HIT" {
		t.Fatalf("expected the 304-merged response to be reported as a cache hit, got %q", second.Header.Get("X-Cache"))
	}
	if string(secondBody) != string(firstBody) {
		t.Fatalf("expected the synthesized 200 to carry the original cached body: got %q want %q", secondBody, firstBody)
	}
	if second.Header.Get("ETag") == "" {
		t.Fatalf("expected the synthesized response to still carry the cached ETag")
	}
}

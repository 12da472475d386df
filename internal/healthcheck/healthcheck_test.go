package healthcheck_test

import (
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/arashi-labs/reverseproxy/internal/healthcheck"
	"github.com/arashi-labs/reverseproxy/internal/registry"
)

func TestCheckerMarksDeadHostUnhealthy(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	down.Close() // closed immediately: connection refused

	upHost := hostFromURL(t, up.URL)
	downHost := hostFromURL(t, down.URL)
	svc := registry.NewService("s", "s.example.com", registry.RoundRobin, []*registry.Host{upHost, downHost})
	reg := registry.New([]*registry.Service{svc})

	checker := healthcheck.New(reg, healthcheck.Config{
		Interval:     time.Hour,
		Timeout:      200 * time.Millisecond,
		Path:         "/",
		InitialDelay: time.Millisecond,
	}, nil, nil)

	checker.Start()
	defer checker.Stop()

	// Both hosts start Healthy()==true by default; wait for the async initial
	// probe round to flip downHost to unhealthy (or time out).
	deadline := time.After(time.Second)
	for downHost.Healthy() {
		select {
		case <-deadline:
			t.Fatalf("initial probe round never completed: up=%v down=%v", upHost.Healthy(), downHost.Healthy())
		case <-time.After(5 * time.Millisecond):
		}
	}

	if !upHost.Healthy() {
		t.Fatalf("expected live host to be marked healthy after initial probe")
	}
	if downHost.Healthy() {
		t.Fatalf("expected dead host to be marked unhealthy after initial probe")
	}
}

func TestCheckerStartStopIsIdempotent(t *testing.T) {
	reg := registry.New(nil)
	checker := healthcheck.New(reg, healthcheck.Config{Interval: time.Hour}, nil, nil)
	checker.Start()
	checker.Start()
	checker.Stop()
	checker.Stop()
}

func hostFromURL(t *testing.T, rawURL string) *registry.Host {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return registry.NewHost(host, port)
}

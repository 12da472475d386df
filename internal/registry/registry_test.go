package registry

import "testing"

func TestNormalizeHost(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Example.COM:8080", "example.com"},
		{"  example.com  ", "example.com"},
		{"", EmptyHost},
		{"   ", EmptyHost},
		{"[::1]:8080", "[::1]"},
		{"[::1]", "[::1]"},
		{"example.com", "example.com"},
	}
	for _, c := range cases {
		if got := NormalizeHost(c.in); got != c.want {
			t.Errorf("NormalizeHost(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRegistryResolve(t *testing.T) {
	svc := NewService("api", "api.example.com", RoundRobin, []*Host{
		NewHost("10.0.0.1", 9000),
	})
	reg := New([]*Service{svc})

	if got := reg.Resolve("API.Example.com:443"); got != svc {
		t.Fatalf("expected case/port-insensitive resolve to hit service, got %v", got)
	}
	if got := reg.Resolve("unknown.example.com"); got != nil {
		t.Fatalf("expected nil for unknown host, got %v", got)
	}
	if got := reg.Resolve(""); got != nil {
		t.Fatalf("expected nil for empty host, got %v", got)
	}
}

func TestHealthyHostsPreservesOrderAndReflectsMutation(t *testing.T) {
	h1 := NewHost("10.0.0.1", 9000)
	h2 := NewHost("10.0.0.2", 9000)
	h3 := NewHost("10.0.0.3", 9000)
	svc := NewService("api", "api.example.com", RoundRobin, []*Host{h1, h2, h3})
	reg := New([]*Service{svc})

	if got := svc.HealthyHosts(); len(got) != 3 {
		t.Fatalf("expected all 3 hosts healthy initially, got %d", len(got))
	}

	reg.MarkUnhealthy(h2)
	healthy := svc.HealthyHosts()
	if len(healthy) != 2 || healthy[0] != h1 || healthy[1] != h3 {
		t.Fatalf("expected [h1,h3] after marking h2 unhealthy, got %v", healthy)
	}

	reg.MarkHealthy(h2)
	healthy = svc.HealthyHosts()
	if len(healthy) != 3 || healthy[1] != h2 {
		t.Fatalf("expected order restored to [h1,h2,h3], got %v", healthy)
	}
}

func TestRoundRobinCounterIsPerServiceIdentityNotName(t *testing.T) {
	svcA := NewService("shared-name", "a.example.com", RoundRobin, []*Host{NewHost("10.0.0.1", 1)})
	svcB := NewService("shared-name", "b.example.com", RoundRobin, []*Host{NewHost("10.0.0.2", 1)})

	svcA.NextRoundRobinIndex()
	svcA.NextRoundRobinIndex()

	// svcB's counter must be untouched by svcA's advances despite the
	// identical display name.
	if got := svcB.NextRoundRobinIndex(); got != 0 {
		t.Fatalf("expected svcB's counter to start at 0, got %d", got)
	}
}

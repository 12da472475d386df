package balancer_test

import (
	"testing"

	"github.com/arashi-labs/reverseproxy/internal/balancer"
	"github.com/arashi-labs/reverseproxy/internal/registry"
)

func hosts(n int) []*registry.Host {
	out := make([]*registry.Host, n)
	for i := range out {
		out[i] = registry.NewHost("10.0.0.1", 9000+i)
	}
	return out
}

func TestRoundRobinOrderIsDeterministicAndFair(t *testing.T) {
	h := hosts(3)
	svc := registry.NewService("s", "s.example.com", registry.RoundRobin, h)
	b := balancer.NewRoundRobin()

	var seq []*registry.Host
	for i := 0; i < 9; i++ {
		seq = append(seq, b.Select(svc))
	}

	counts := map[*registry.Host]int{}
	for i, got := range seq {
		counts[got]++
		if got != h[i%3] {
			t.Fatalf("at call %d: expected host %v, got %v", i, h[i%3], got)
		}
	}
	for _, host := range h {
		if counts[host] != 3 {
			t.Fatalf("expected each of 3 hosts selected exactly 3 times across 9 calls, got %v", counts)
		}
	}
}

func TestRoundRobinSkipsUnhealthyHosts(t *testing.T) {
	h := hosts(3)
	svc := registry.NewService("s", "s.example.com", registry.RoundRobin, h)
	reg := registry.New([]*registry.Service{svc})
	reg.MarkUnhealthy(h[1])

	b := balancer.NewRoundRobin()
	for i := 0; i < 4; i++ {
		got := b.Select(svc)
		if got == h[1] {
			t.Fatalf("round robin selected unhealthy host %v", got)
		}
	}
}

func TestRoundRobinReturnsNilWhenNoHealthyHosts(t *testing.T) {
	h := hosts(2)
	svc := registry.NewService("s", "s.example.com", registry.RoundRobin, h)
	reg := registry.New([]*registry.Service{svc})
	reg.MarkUnhealthy(h[0])
	reg.MarkUnhealthy(h[1])

	b := balancer.NewRoundRobin()
	if got := b.Select(svc); got != nil {
		t.Fatalf("expected nil when no healthy hosts, got %v", got)
	}
}

func TestRandomOnlySelectsHealthyHosts(t *testing.T) {
	h := hosts(4)
	svc := registry.NewService("s", "s.example.com", registry.Random, h)
	reg := registry.New([]*registry.Service{svc})
	reg.MarkUnhealthy(h[0])
	reg.MarkUnhealthy(h[2])

	b := balancer.NewRandom()
	for i := 0; i < 50; i++ {
		got := b.Select(svc)
		if got == h[0] || got == h[2] {
			t.Fatalf("random selected unhealthy host %v", got)
		}
	}
}

func TestNewResolvesStrategyTag(t *testing.T) {
	if _, ok := balancer.New(registry.Random).(*balancer.Random); !ok {
		t.Fatalf("expected Random strategy to resolve to *Random")
	}
	if _, ok := balancer.New(registry.RoundRobin).(*balancer.RoundRobin); !ok {
		t.Fatalf("expected RoundRobin strategy to resolve to *RoundRobin")
	}
	if _, ok := balancer.New(registry.Strategy("bogus")).(*balancer.RoundRobin); !ok {
		t.Fatalf("expected unrecognized strategy to default to RoundRobin")
	}
}

package balancer

import "github.com/arashi-labs/reverseproxy/internal/registry"

// RoundRobin selects hosts in configured order, one counter per service
// (keyed by the service's own identity via Service.NextRoundRobinIndex, not
// by its display name).
type RoundRobin struct{}

func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

func (b *RoundRobin) Select(svc *registry.Service) *registry.Host {
	healthy := svc.HealthyHosts()
	n := len(healthy)
	if n == 0 {
		return nil
	}
	if n == 1 {
		return healthy[0]
	}

	idx := svc.NextRoundRobinIndex() % uint64(n)
	return healthy[idx]
}

// Package registry holds the immutable set of configured services and the
// mutable per-host liveness bits the health checker flips. Lookup by
// canonical host is O(1) and case-insensitive; a health-bit flip is visible
// to any request issued afterward (no per-request snapshot is cached).
package registry

// Registry maps canonical hosts to their Service and exposes the liveness
// mutators used by the health checker.
type Registry struct {
	byDomain map[string]*Service
}

// New builds a Registry from a fixed set of services. The domain index is
// built once; Registry never mutates its own map after construction
// (services themselves hold the only mutable state — host health bits).
func New(services []*Service) *Registry {
	idx := make(map[string]*Service, len(services))
	for _, svc := range services {
		idx[svc.Domain] = svc
	}
	return &Registry{byDomain: idx}
}

// Resolve normalizes hostHeader and looks up the matching Service, or nil
// if no service claims that host.
func (r *Registry) Resolve(hostHeader string) *Service {
	key := NormalizeHost(hostHeader)
	if key == EmptyHost {
		return nil
	}
	return r.byDomain[key]
}

// MarkHealthy flips host's health bit on. Idempotent.
func (r *Registry) MarkHealthy(host *Host) {
	if host == nil {
		return
	}
	host.setHealthy(true)
}

// MarkUnhealthy flips host's health bit off. Idempotent.
func (r *Registry) MarkUnhealthy(host *Host) {
	if host == nil {
		return
	}
	host.setHealthy(false)
}

// Services returns every configured service, for callers (like the health
// checker) that need to iterate all hosts regardless of domain routing.
func (r *Registry) Services() []*Service {
	out := make([]*Service, 0, len(r.byDomain))
	for _, svc := range r.byDomain {
		out = append(out, svc)
	}
	return out
}

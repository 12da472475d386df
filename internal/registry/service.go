package registry

import "sync/atomic"

// Strategy names the load-balancing policy configured for a Service.
type Strategy string

const (
	RoundRobin Strategy = "round_robin"
	Random     Strategy = "random"
)

// Service is an immutable (post-construction) description of one backend
// service: a name, the canonical host it answers to, its balancing
// strategy, and its ordered, fixed-size list of Hosts. Hosts never get
// reordered or resized at runtime — only their health bits mutate.
type Service struct {
	Name     string
	Domain   string // canonical (normalized) host key
	Strategy Strategy
	Hosts    []*Host

	// rrCounter backs round-robin selection. It is keyed by the Service's
	// own pointer identity rather than by Name, so two services that
	// happen to share a display name never share a counter — the
	// load-balancer REDESIGN FLAG from spec.md §9.
	rrCounter atomic.Uint64
}

// NewService builds a Service with the given name, canonical domain,
// strategy, and hosts. The hosts slice is copied defensively.
func NewService(name, domain string, strategy Strategy, hosts []*Host) *Service {
	copied := make([]*Host, len(hosts))
	copy(copied, hosts)
	return &Service{
		Name:     name,
		Domain:   domain,
		Strategy: strategy,
		Hosts:    copied,
	}
}

// HealthyHosts materializes the subsequence of Hosts whose health bit is
// currently set, preserving configured order (required for round-robin
// determinism across calls).
func (s *Service) HealthyHosts() []*Host {
	out := make([]*Host, 0, len(s.Hosts))
	for _, h := range s.Hosts {
		if h.Healthy() {
			out = append(out, h)
		}
	}
	return out
}

// NextRoundRobinIndex atomically reads-and-increments this service's
// private round-robin counter and returns the pre-increment value. Callers
// reduce modulo the current healthy-host count.
func (s *Service) NextRoundRobinIndex() uint64 {
	return s.rrCounter.Add(1) - 1
}

// Package balancer picks one healthy host per service per call. Strategies
// are dispatched by the service's configured string tag, not by an
// inheritance hierarchy.
package balancer

import "github.com/arashi-labs/reverseproxy/internal/registry"

// Balancer selects a host for a service. Select returns nil iff the
// service's healthy-host list is empty.
type Balancer interface {
	Select(svc *registry.Service) *registry.Host
}

// New resolves a Balancer implementation for the given strategy tag,
// defaulting to round-robin for an unrecognized or empty tag.
func New(strategy registry.Strategy) Balancer {
	switch strategy {
	case registry.Random:
		return NewRandom()
	default:
		return NewRoundRobin()
	}
}

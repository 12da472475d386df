package balancer

import (
	"math/rand/v2"

	"github.com/arashi-labs/reverseproxy/internal/registry"
)

// Random selects uniformly among healthy hosts using the process-wide
// math/rand/v2 generator, which is already safe for concurrent use.
type Random struct{}

func NewRandom() *Random { return &Random{} }

func (b *Random) Select(svc *registry.Service) *registry.Host {
	healthy := svc.HealthyHosts()
	n := len(healthy)
	if n == 0 {
		return nil
	}
	if n == 1 {
		return healthy[0]
	}
	return healthy[rand.IntN(n)]
}

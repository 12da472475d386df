package registry

import (
	"strconv"
	"sync/atomic"
	"time"
)

// Host is one upstream instance backing a Service. The address/port pair is
// immutable for the process lifetime; healthy and lastCheckedAt are the only
// mutable fields, and both are written only through Registry.MarkHealthy/
// MarkUnhealthy (by the health checker, and by the proxy engine when an
// upstream call fails).
type Host struct {
	Address string
	Port    int

	healthy        atomic.Bool
	lastCheckedAt  atomic.Int64 // unix nanos
}

// NewHost constructs a Host, defaulting to healthy (per spec.md §4.5: the
// initial state is configuration-defined, defaulting to "healthy").
func NewHost(address string, port int) *Host {
	h := &Host{Address: address, Port: port}
	h.healthy.Store(true)
	return h
}

// Healthy reports the host's current health bit. Safe for concurrent use
// with MarkHealthy/MarkUnhealthy; acquire/release semantics come from the
// underlying atomic.Bool.
func (h *Host) Healthy() bool {
	return h.healthy.Load()
}

// LastCheckedAt returns the time of the most recent MarkHealthy/MarkUnhealthy
// call (whether or not it changed the bit), or the zero time if the host has
// never been marked.
func (h *Host) LastCheckedAt() time.Time {
	ns := h.lastCheckedAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (h *Host) setHealthy(v bool) {
	h.healthy.Store(v)
	h.lastCheckedAt.Store(time.Now().UnixNano())
}

// HostPort returns "address:port", the dial target for forwarding and probes.
func (h *Host) HostPort() string {
	return h.Address + ":" + strconv.Itoa(h.Port)
}

// Package healthcheck runs a periodic, ticker-driven liveness probe over
// every host in a registry and flips its healthy bit, independent of
// request traffic.
package healthcheck

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/arashi-labs/reverseproxy/internal/registry"
)

// Config controls probe cadence, timeout, target path, and the delay before
// the very first round.
type Config struct {
	Interval     time.Duration
	Timeout      time.Duration
	Path         string
	InitialDelay time.Duration
}

// DefaultConfig returns spec.md §4.5's defaults, which New substitutes for
// any zero field of the Config it is given: a 30s interval, a 3s per-probe
// timeout, GET /health, and a 2s delay before the first probe round.
func DefaultConfig() Config {
	return Config{
		Interval:     30 * time.Second,
		Timeout:      3 * time.Second,
		Path:         "/health",
		InitialDelay: 2 * time.Second,
	}
}

// OnTransition is invoked after a probe flips a host's status, for log/
// metric side effects. May be nil.
type OnTransition func(svc *registry.Service, host *registry.Host, healthy bool)

// Checker periodically probes every host of every service in a registry
// concurrently and records the result via Registry.MarkHealthy/MarkUnhealthy.
// Unlike an on-demand check performed at request time, a failing or slow
// backend never adds latency to the request path: the freshest known state
// is always just a map read away.
type Checker struct {
	reg    *registry.Registry
	cfg    Config
	client *http.Client
	onTransition OnTransition

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New builds a Checker. client may be nil, in which case one is built from
// cfg.Timeout.
func New(reg *registry.Registry, cfg Config, client *http.Client, onTransition OnTransition) *Checker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultConfig().InitialDelay
	}
	if client == nil {
		client = &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &Checker{reg: reg, cfg: cfg, client: client, onTransition: onTransition}
}

// Start begins periodic probing in the background. Calling Start twice is a
// no-op. The first probe round runs after cfg.InitialDelay (per spec.md
// §4.5), not immediately and not synchronously on the calling goroutine, so
// Start itself never blocks on network I/O.
func (c *Checker) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.mu.Unlock()

	go func() {
		defer close(c.done)

		delay := time.NewTimer(c.cfg.InitialDelay)
		select {
		case <-delay.C:
		case <-c.stop:
			delay.Stop()
			return
		}
		c.probeAll()

		ticker := time.NewTicker(c.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.probeAll()
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop halts the background probe loop and waits for it to exit.
func (c *Checker) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stop)
	done := c.done
	c.mu.Unlock()
	<-done
}

func (c *Checker) probeAll() {
	var wg sync.WaitGroup
	for _, svc := range c.reg.Services() {
		for _, h := range svc.Hosts {
			wg.Add(1)
			go func(svc *registry.Service, h *registry.Host) {
				defer wg.Done()
				c.probeOne(svc, h)
			}(svc, h)
		}
	}
	wg.Wait()
}

func (c *Checker) probeOne(svc *registry.Service, h *registry.Host) {
	healthy := c.probe(h)
	wasHealthy := h.Healthy()
	if healthy {
		c.reg.MarkHealthy(h)
	} else {
		c.reg.MarkUnhealthy(h)
	}
	if c.onTransition != nil && wasHealthy != healthy {
		c.onTransition(svc, h, healthy)
	}
}

func (c *Checker) probe(h *registry.Host) bool {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()

	url := "http://" + h.HostPort() + c.cfg.Path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 400
}

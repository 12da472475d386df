package main

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arashi-labs/reverseproxy/internal/applog"
	"github.com/arashi-labs/reverseproxy/internal/cache"
	"github.com/arashi-labs/reverseproxy/internal/config"
	"github.com/arashi-labs/reverseproxy/internal/healthcheck"
	"github.com/arashi-labs/reverseproxy/internal/metrics"
	"github.com/arashi-labs/reverseproxy/internal/proxyengine"
	"github.com/arashi-labs/reverseproxy/internal/registry"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: could not load .env file (%v), using system environment variables", err)
	}

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal(err)
	}

	applog.Configure(applog.Levels{
		InfoEnabled:  cfg.LogInfoEnabled,
		DebugEnabled: cfg.LogDebugEnabled,
		ErrorEnabled: cfg.LogErrorEnabled,
	}, cfg.LokiURL)

	reg := cfg.BuildRegistry()

	hc := healthcheck.New(reg, cfg.HealthCheck, nil, onHealthTransition)
	hc.Start()
	defer hc.Stop()

	var cacheSvc *cache.Service
	if cfg.CacheEnabled {
		cacheSvc = cache.NewService(cfg.CacheMaxEntries)
		go reportCacheStats(cacheSvc)
	}

	engine := proxyengine.New(reg, cacheSvc, cfg.Engine, cfg.Limiter)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/", engine)

	addr := cfg.ListenAddress + ":" + strconv.Itoa(cfg.ListenPort)
	log.Printf("listening on %s with %d configured services", addr, len(cfg.Services))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

// onHealthTransition records a Prometheus counter bump whenever a probe
// flips a host unhealthy, labeled by the owning service name.
func onHealthTransition(svc *registry.Service, _ *registry.Host, healthy bool) {
	if !healthy {
		metrics.HealthcheckFailureInc(svc.Name)
	}
}

// reportCacheStats polls the cache's own counters onto the corresponding
// Prometheus series. The store tracks hits/misses/evictions itself (for
// anything that wants an in-process snapshot without scraping /metrics);
// this loop is just the bridge that keeps the gauge honest.
func reportCacheStats(cacheSvc *cache.Service) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		metrics.CacheEntriesSet(cacheSvc.Stats().Entries)
	}
}

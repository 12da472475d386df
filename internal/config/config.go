// Package config loads the proxy's static configuration: a YAML file
// describing listen address, services, cache sizing, and logging/metrics
// toggles, overlaid by environment variables (env wins when set).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arashi-labs/reverseproxy/internal/healthcheck"
	"github.com/arashi-labs/reverseproxy/internal/proxyengine"
	"github.com/arashi-labs/reverseproxy/internal/registry"
)

// HostSpec is one upstream host entry in the YAML document.
type HostSpec struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// ServiceSpec is one configured service in the YAML document.
type ServiceSpec struct {
	Name     string     `yaml:"name"`
	Domain   string     `yaml:"domain"`
	Strategy string     `yaml:"strategy"`
	Hosts    []HostSpec `yaml:"hosts"`
}

type listenSpec struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

type cacheSpec struct {
	Enabled    *bool `yaml:"enabled"`
	MaxEntries int   `yaml:"max_entries"`
}

type healthCheckSpec struct {
	IntervalSeconds     int    `yaml:"interval_seconds"`
	TimeoutSeconds      int    `yaml:"timeout_seconds"`
	Path                string `yaml:"path"`
	InitialDelaySeconds int    `yaml:"initial_delay_seconds"`
}

type loggingSpec struct {
	InfoEnabled  *bool `yaml:"info_enabled"`
	DebugEnabled *bool `yaml:"debug_enabled"`
	ErrorEnabled *bool `yaml:"error_enabled"`
}

type metricsSpec struct {
	LokiURL string `yaml:"loki_url"`
}

type limiterSpec struct {
	MaxConcurrentPerService int `yaml:"max_concurrent_per_service"`
}

type document struct {
	Listen      listenSpec      `yaml:"listen"`
	Services    []ServiceSpec   `yaml:"services"`
	Cache       cacheSpec       `yaml:"cache"`
	HealthCheck healthCheckSpec `yaml:"health_check"`
	Logging     loggingSpec     `yaml:"logging"`
	Metrics     metricsSpec     `yaml:"metrics"`
	Limiter     limiterSpec     `yaml:"limiter"`
	MaxBodyBytes int64          `yaml:"max_body_bytes"`
}

// Config is the fully resolved, validated configuration the proxy runs
// with: everything the YAML document held, env-overridden where a matching
// variable is set.
type Config struct {
	ListenAddress string
	ListenPort    int
	Services      []ServiceSpec

	CacheEnabled    bool
	CacheMaxEntries int

	HealthCheck healthcheck.Config
	Engine      proxyengine.Config
	Limiter     proxyengine.LimiterConfig

	LogInfoEnabled  bool
	LogDebugEnabled bool
	LogErrorEnabled bool
	LokiURL         string
}

const defaultConfigPath = "configs/config.yaml"

// Load reads cfgPath (or configs/config.yaml/.yml if cfgPath is empty),
// applies environment-variable overrides, validates, and returns a Config.
func Load(cfgPath string) (*Config, error) {
	var doc document
	path := cfgPath
	if path == "" {
		for _, candidate := range []string{defaultConfigPath, "configs/config.yml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &doc); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg := &Config{
		ListenAddress: getEnv("PROXY_LISTEN_ADDRESS", doc.Listen.Address),
		ListenPort:    getEnvInt("PROXY_LISTEN_PORT", defaultOr(doc.Listen.Port, 8080)),
		Services:      doc.Services,

		CacheEnabled:    getEnvBool("CACHE_ENABLED", boolOr(doc.Cache.Enabled, true)),
		CacheMaxEntries: getEnvInt("CACHE_MAX_ENTRIES", defaultOr(doc.Cache.MaxEntries, 10000)),

		HealthCheck: healthcheck.Config{
			Interval:     getEnvDuration("HEALTHCHECK_INTERVAL", time.Duration(defaultOr(doc.HealthCheck.IntervalSeconds, 30))*time.Second),
			Timeout:      getEnvDuration("HEALTHCHECK_TIMEOUT", time.Duration(defaultOr(doc.HealthCheck.TimeoutSeconds, 3))*time.Second),
			Path:         getEnv("HEALTHCHECK_PATH", defaultStrOr(doc.HealthCheck.Path, "/health")),
			InitialDelay: getEnvDuration("HEALTHCHECK_INITIAL_DELAY", time.Duration(defaultOr(doc.HealthCheck.InitialDelaySeconds, 2))*time.Second),
		},

		Engine: proxyengine.Config{
			MaxBodyBytes:    getEnvInt64("PROXY_MAX_BODY_BYTES", defaultOr64(doc.MaxBodyBytes, 10<<20)),
			UpstreamTimeout: getEnvDuration("PROXY_UPSTREAM_TIMEOUT", 30*time.Second),
		},

		Limiter: proxyengine.LimiterConfig{
			MaxConcurrent: getEnvInt("PROXY_MAX_CONCURRENT_PER_SERVICE", defaultOr(doc.Limiter.MaxConcurrentPerService, 128)),
		},

		LogInfoEnabled:  getEnvBool("LOG_INFO_ENABLED", boolOr(doc.Logging.InfoEnabled, true)),
		LogDebugEnabled: getEnvBool("LOG_DEBUG_ENABLED", boolOr(doc.Logging.DebugEnabled, false)),
		LogErrorEnabled: getEnvBool("LOG_ERROR_ENABLED", boolOr(doc.Logging.ErrorEnabled, true)),
		LokiURL:         getEnv("METRICS_LOKI_URL", doc.Metrics.LokiURL),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.Services) == 0 {
		return fmt.Errorf("config: at least one service must be defined")
	}
	seen := make(map[string]struct{}, len(c.Services))
	for _, svc := range c.Services {
		if svc.Domain == "" {
			return fmt.Errorf("config: service %q missing domain", svc.Name)
		}
		key := registry.NormalizeHost(svc.Domain)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("config: duplicate service domain %q", svc.Domain)
		}
		seen[key] = struct{}{}
		if len(svc.Hosts) == 0 {
			return fmt.Errorf("config: service %q has no hosts", svc.Name)
		}
		switch registry.Strategy(svc.Strategy) {
		case registry.RoundRobin, registry.Random, "":
		default:
			return fmt.Errorf("config: service %q has unknown strategy %q", svc.Name, svc.Strategy)
		}
	}
	return nil
}

// BuildRegistry materializes a *registry.Registry from the resolved
// ServiceSpecs, defaulting an empty strategy to round-robin.
func (c *Config) BuildRegistry() *registry.Registry {
	services := make([]*registry.Service, 0, len(c.Services))
	for _, spec := range c.Services {
		strategy := registry.Strategy(spec.Strategy)
		if strategy == "" {
			strategy = registry.RoundRobin
		}
		hosts := make([]*registry.Host, 0, len(spec.Hosts))
		for _, hs := range spec.Hosts {
			hosts = append(hosts, registry.NewHost(hs.Address, hs.Port))
		}
		services = append(services, registry.NewService(spec.Name, registry.NormalizeHost(spec.Domain), strategy, hosts))
	}
	return registry.New(services)
}

func defaultOr(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func defaultOr64(v, def int64) int64 {
	if v == 0 {
		return def
	}
	return v
}

func defaultStrOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return parsed
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

func getEnvInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

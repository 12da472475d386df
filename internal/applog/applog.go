// Package applog provides the proxy's structured logging: local stdout
// output gated by level toggles, plus an optional fire-and-forget push of
// the same lines to a Grafana Loki endpoint.
package applog

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Levels controls which severities are emitted locally and to Loki.
type Levels struct {
	InfoEnabled  bool
	DebugEnabled bool
	ErrorEnabled bool
}

// DefaultLevels matches the conventional default: INFO/ERROR on, DEBUG off.
func DefaultLevels() Levels {
	return Levels{InfoEnabled: true, DebugEnabled: false, ErrorEnabled: true}
}

var (
	mu         sync.RWMutex
	levels     = DefaultLevels()
	lokiURL    string
	lokiClient = &http.Client{Timeout: 200 * time.Millisecond}
)

// Configure sets the active level toggles and Loki push URL (empty disables
// the push). Called once at startup from the loaded config.
func Configure(l Levels, lokiPushURL string) {
	mu.Lock()
	defer mu.Unlock()
	levels = l
	lokiURL = strings.TrimSpace(lokiPushURL)
	if lokiURL != "" && !strings.Contains(lokiURL, "/loki/api/v1/push") {
		lokiURL = strings.TrimRight(lokiURL, "/") + "/loki/api/v1/push"
	}
}

func levelEnabled(level string) bool {
	mu.RLock()
	defer mu.RUnlock()
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return levels.DebugEnabled
	case "error":
		return levels.ErrorEnabled
	default:
		return levels.InfoEnabled
	}
}

func configuredLokiURL() string {
	mu.RLock()
	defer mu.RUnlock()
	return lokiURL
}

// logEnabled suppresses local stdout writes under `go test` so test output
// stays clean; Loki pushes are suppressed too since lokiURL is empty unless
// explicitly configured.
func logEnabled() bool {
	if flag.Lookup("test.v") != nil || flag.Lookup("test.run") != nil {
		return false
	}
	return true
}

// Emit writes line locally (if level enabled and not under test) and pushes
// the same line to Loki with a "level" label (if configured).
func Emit(level, app string, labels map[string]string, line string) {
	lvl := strings.ToLower(level)
	if logEnabled() && levelEnabled(lvl) {
		log.Print(line)
	}
	PushToLoki(lvl, app, labels, line)
}

// PushToLoki sends a single log line with labels to Loki. No-op if Loki
// isn't configured or the level is disabled.
func PushToLoki(level, app string, labels map[string]string, line string) {
	url := configuredLokiURL()
	if url == "" || !levelEnabled(level) {
		return
	}

	stream := map[string]string{"app": app, "level": strings.ToLower(strings.TrimSpace(level))}
	for k, v := range labels {
		if strings.TrimSpace(k) == "" {
			continue
		}
		stream[k] = v
	}

	ts := strconv.FormatInt(time.Now().UnixNano(), 10)
	payload := struct {
		Streams []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"`
		} `json:"streams"`
	}{
		Streams: []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"`
		}{
			{Stream: stream, Values: [][2]string{{ts, line}}},
		},
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	_, _ = lokiClient.Do(req) // fire-and-forget
}

// MustHostname returns the current hostname, or "unknown" on error.
func MustHostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}

// RequestLine renders a one-line summary of a proxy request, used for the
// DEBUG-level log entry.
func RequestLine(requestID, method, url, cacheOutcome string) string {
	return fmt.Sprintf("REQ method=%s url=%s cache=%s req_id=%s", method, url, cacheOutcome, requestID)
}

// ResponseLine renders a one-line summary of a proxy response.
func ResponseLine(requestID, method string, status int, bytesWritten int, dur time.Duration, cacheOutcome, upstream string) string {
	return fmt.Sprintf(
		"RESP status=%d bytes=%d dur=%s method=%s cache=%s upstream=%s req_id=%s",
		status, bytesWritten, dur.String(), method, cacheOutcome, upstream, requestID,
	)
}

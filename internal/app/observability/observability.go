// Package observability records request and submission counters and serves
// them in the Prometheus text format.
package observability

import (
	"database/sql"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const metricPrefix = "assesscore_"

type key struct {
	Method string
	Path   string
	Status int
}

type stat struct {
	Count     int64
	LatencyMS float64
}

type Collector struct {
	db     *sql.DB
	logger zerolog.Logger

	mu           sync.RWMutex
	requestStats map[key]stat
	outcomes     map[string]int64
	startedAt    time.Time
}

func NewCollector(db *sql.DB, logger zerolog.Logger) *Collector {
	return &Collector{
		db:           db,
		logger:       logger.With().Str("component", "http").Logger(),
		requestStats: make(map[key]stat),
		outcomes:     make(map[string]int64),
		startedAt:    time.Now(),
	}
}

// RecordOutcome counts one submit request by how it ended.
func (c *Collector) RecordOutcome(outcome string) {
	c.mu.Lock()
	c.outcomes[outcome]++
	c.mu.Unlock()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		latencyMS := float64(time.Since(start).Microseconds()) / 1000.0
		path := normalizedPath(r.URL.Path)

		c.mu.Lock()
		k := key{Method: r.Method, Path: path, Status: rec.status}
		s := c.requestStats[k]
		s.Count++
		s.LatencyMS += latencyMS
		c.requestStats[k] = s
		c.mu.Unlock()

		ev := c.logger.Info()
		if rec.status >= http.StatusInternalServerError {
			ev = c.logger.Warn()
		}
		if testID := extractTestID(r.URL.Path); testID > 0 {
			ev = ev.Int64("test_id", testID)
		}
		if id := rec.Header().Get("Location"); id != "" {
			ev = ev.Str("submission_id", id[strings.LastIndex(id, "/")+1:])
		}
		ev.Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", path).
			Int("status", rec.status).
			Float64("latency_ms", latencyMS).
			Str("remote_ip", strings.TrimSpace(r.RemoteAddr)).
			Msg("request")
	})
}

func (c *Collector) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	statsCopy := make(map[key]stat, len(c.requestStats))
	for k, v := range c.requestStats {
		statsCopy[k] = v
	}
	outcomesCopy := make(map[string]int64, len(c.outcomes))
	for k, v := range c.outcomes {
		outcomesCopy[k] = v
	}
	startedAt := c.startedAt
	c.mu.RUnlock()

	keys := make([]key, 0, len(statsCopy))
	for k := range statsCopy {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Method != keys[j].Method {
			return keys[i].Method < keys[j].Method
		}
		if keys[i].Path != keys[j].Path {
			return keys[i].Path < keys[j].Path
		}
		return keys[i].Status < keys[j].Status
	})

	var sb strings.Builder
	sb.WriteString("# assesscore observability metrics\n")
	sb.WriteString("# TYPE " + metricPrefix + "uptime_seconds gauge\n")
	sb.WriteString(fmt.Sprintf(metricPrefix+"uptime_seconds %.0f\n", time.Since(startedAt).Seconds()))

	sb.WriteString("# TYPE " + metricPrefix + "http_requests_total counter\n")
	sb.WriteString("# TYPE " + metricPrefix + "http_request_latency_ms_sum counter\n")
	sb.WriteString("# TYPE " + metricPrefix + "http_request_latency_ms_avg gauge\n")
	for _, k := range keys {
		s := statsCopy[k]
		labels := fmt.Sprintf("method=\"%s\",path=\"%s\",status=\"%d\"", k.Method, k.Path, k.Status)
		sb.WriteString(fmt.Sprintf(metricPrefix+"http_requests_total{%s} %d\n", labels, s.Count))
		sb.WriteString(fmt.Sprintf(metricPrefix+"http_request_latency_ms_sum{%s} %.3f\n", labels, s.LatencyMS))
		avg := 0.0
		if s.Count > 0 {
			avg = s.LatencyMS / float64(s.Count)
		}
		sb.WriteString(fmt.Sprintf(metricPrefix+"http_request_latency_ms_avg{%s} %.3f\n", labels, avg))
	}

	outcomes := make([]string, 0, len(outcomesCopy))
	for k := range outcomesCopy {
		outcomes = append(outcomes, k)
	}
	sort.Strings(outcomes)
	sb.WriteString("# TYPE " + metricPrefix + "submissions_total counter\n")
	for _, o := range outcomes {
		sb.WriteString(fmt.Sprintf(metricPrefix+"submissions_total{outcome=\"%s\"} %d\n", o, outcomesCopy[o]))
	}

	if c.db != nil {
		dbs := c.db.Stats()
		sb.WriteString("# TYPE " + metricPrefix + "db_open_connections gauge\n")
		sb.WriteString(fmt.Sprintf(metricPrefix+"db_open_connections %d\n", dbs.OpenConnections))
		sb.WriteString("# TYPE " + metricPrefix + "db_in_use_connections gauge\n")
		sb.WriteString(fmt.Sprintf(metricPrefix+"db_in_use_connections %d\n", dbs.InUse))
		sb.WriteString("# TYPE " + metricPrefix + "db_idle_connections gauge\n")
		sb.WriteString(fmt.Sprintf(metricPrefix+"db_idle_connections %d\n", dbs.Idle))
		sb.WriteString("# TYPE " + metricPrefix + "db_wait_count counter\n")
		sb.WriteString(fmt.Sprintf(metricPrefix+"db_wait_count %d\n", dbs.WaitCount))
		sb.WriteString("# TYPE " + metricPrefix + "db_wait_duration_ms counter\n")
		sb.WriteString(fmt.Sprintf(metricPrefix+"db_wait_duration_ms %.3f\n", float64(dbs.WaitDuration.Microseconds())/1000.0))
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sb.String()))
}

// normalizedPath folds numeric and uuid segments so paths stay low-cardinality.
func normalizedPath(path string) string {
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		if _, err := strconv.ParseInt(p, 10, 64); err == nil {
			parts[i] = "{id}"
			continue
		}
		if _, err := uuid.Parse(p); err == nil {
			parts[i] = "{uuid}"
		}
	}
	return strings.Join(parts, "/")
}

func extractTestID(path string) int64 {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == "tests" {
			if id, err := strconv.ParseInt(parts[i+1], 10, 64); err == nil {
				return id
			}
		}
	}
	return 0
}

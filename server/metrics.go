//go:build !js
// +build !js

package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/simukka/toybox/catalog"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toybox",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "toybox",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
	catalogToys = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "toybox",
			Name:      "catalog_toys",
			Help:      "Toys in the served catalog by kind",
		},
		[]string{"kind"},
	)
	manifestEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "toybox",
			Name:      "manifest_entries",
			Help:      "Entries in the served build manifest",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, catalogToys, manifestEntries)
}

// observeCatalog sets the catalog gauge from cat.
func observeCatalog(cat *catalog.Catalog) {
	catalogToys.Reset()
	for _, kind := range []catalog.Kind{catalog.KindModule, catalog.KindPage} {
		catalogToys.WithLabelValues(string(kind)).Set(0)
	}
	for _, t := range cat.All() {
		kind := t.Type
		if kind == "" {
			kind = catalog.KindModule
		}
		catalogToys.WithLabelValues(string(kind)).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware records request counts and latencies by route pattern.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		path := routePatternOrPath(r)
		httpRequestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())
	})
}

// routePatternOrPath keeps label cardinality bounded: static files collapse
// into their wildcard pattern.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

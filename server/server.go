//go:build !js
// +build !js

package main

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/simukka/toybox/catalog"
	"github.com/simukka/toybox/config"
	"github.com/simukka/toybox/manifest"
)

//go:embed index.html
var indexHTML []byte

func init() {
	// Browsers refuse module scripts served with anything but a JS type.
	for ext, typ := range map[string]string{
		".js":   "text/javascript; charset=utf-8",
		".mjs":  "text/javascript; charset=utf-8",
		".ts":   "text/javascript; charset=utf-8",
		".wasm": "application/wasm",
		".json": "application/json",
	} {
		_ = mime.AddExtensionType(ext, typ)
	}
}

// server serves the library page, its API and the built toy modules.
type server struct {
	cfg      config.Server
	catalog  *catalog.Catalog
	manifest []byte
	logger   zerolog.Logger
}

// newServer loads the catalog and, when configured, the build manifest.
func newServer(cfg config.Server, logger zerolog.Logger) (*server, error) {
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", cfg.CatalogPath, err)
	}
	s := &server{cfg: cfg, catalog: cat, logger: logger}
	if cfg.ManifestPath != "" {
		data, err := os.ReadFile(cfg.ManifestPath)
		if err != nil {
			return nil, fmt.Errorf("read manifest: %w", err)
		}
		m, err := manifest.Parse(data)
		if err != nil {
			return nil, err
		}
		manifestEntries.Set(float64(len(m)))
		s.manifest = data
	}
	observeCatalog(cat)
	return s, nil
}

// clientConfig is what the page receives at /api/config. A configured
// manifest file is served through the API instead of the static tree.
func (s *server) clientConfig() config.Client {
	c := s.cfg.Client.WithDefaults()
	if s.manifest != nil {
		c.ManifestURL = "/api/manifest"
	}
	return c
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)
	r.Use(MetricsMiddleware)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		})
		r.Get("/toys", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, s.catalog)
		})
		r.Get("/toys/{slug}", s.handleToy)
		r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, s.clientConfig())
		})
		r.Get("/manifest", s.handleManifest)
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	files := http.FileServer(http.Dir(s.cfg.StaticDir))
	r.Get("/", serveIndex)
	r.Get("/index.html", serveIndex)
	r.Handle("/*", files)
	return r
}

func serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

func (s *server) handleToy(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	toy, ok := s.catalog.Lookup(slug)
	if !ok {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("no toy named %q", slug))
		return
	}
	writeJSON(w, http.StatusOK, toy)
}

func (s *server) handleManifest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if s.manifest == nil {
		_, _ = w.Write([]byte("{}"))
		return
	}
	_, _ = w.Write(s.manifest)
}

// accessLog writes one line per request.
func (s *server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		ev := s.logger.Debug()
		if status >= http.StatusInternalServerError {
			ev = s.logger.Error()
		}
		ev.Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Msg("http")
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// Package manifest translates catalog module references into importable URLs
// using the bundler's build manifest.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Entry is a single manifest record.
type Entry struct {
	File    string   `json:"file"`
	Src     string   `json:"src,omitempty"`
	IsEntry bool     `json:"isEntry,omitempty"`
	Imports []string `json:"imports,omitempty"`
	CSS     []string `json:"css,omitempty"`
}

// Manifest maps source module ids to their built files.
type Manifest map[string]Entry

// Parse decodes a JSON build manifest.
func Parse(data []byte) (Manifest, error) {
	m := Manifest{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}

// Lookup finds the entry for a module id, tolerating "./" and "/" prefixes.
func (m Manifest) Lookup(moduleID string) (Entry, bool) {
	if m == nil {
		return Entry{}, false
	}
	for _, key := range candidateKeys(moduleID) {
		if e, ok := m[key]; ok && e.File != "" {
			return e, true
		}
	}
	return Entry{}, false
}

func candidateKeys(moduleID string) []string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(moduleID, "./"), "/")
	keys := []string{moduleID}
	if trimmed != moduleID {
		keys = append(keys, trimmed)
	}
	return keys
}

// ResolveModulePath turns a module reference into an absolute URL string.
//
// A manifest entry wins and is resolved against base. Without one, absolute
// URLs pass through, root-relative paths resolve against the base origin and
// anything else is cleaned and resolved relative to base.
func ResolveModulePath(moduleRef string, m Manifest, base string) (string, error) {
	ref := strings.TrimSpace(moduleRef)
	if ref == "" {
		return "", fmt.Errorf("empty module reference")
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url %q: %w", base, err)
	}

	if e, ok := m.Lookup(ref); ok {
		return resolveAgainst(baseURL, e.File)
	}

	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		return u.String(), nil
	}
	if strings.HasPrefix(ref, "/") {
		return resolveAgainst(baseURL, path.Clean(ref))
	}
	cleaned := path.Clean(strings.TrimPrefix(ref, "./"))
	if strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return "", fmt.Errorf("module reference %q escapes the base path", moduleRef)
	}
	return resolveAgainst(baseURL, cleaned)
}

func resolveAgainst(base *url.URL, file string) (string, error) {
	rel, err := url.Parse(file)
	if err != nil {
		return "", fmt.Errorf("parse module path %q: %w", file, err)
	}
	return base.ResolveReference(rel).String(), nil
}

// Fetcher loads the raw manifest bytes, e.g. over HTTP.
type Fetcher interface {
	FetchManifest(ctx context.Context) ([]byte, error)
}

// Resolver resolves module references against a manifest fetched at most once.
// A failed or missing manifest degrades to the relative-path rules.
type Resolver struct {
	fetcher Fetcher
	base    string
	logger  zerolog.Logger

	group    singleflight.Group
	mu       sync.Mutex
	manifest Manifest
	loaded   bool
}

// NewResolver creates a resolver. fetcher may be nil when no manifest exists.
func NewResolver(fetcher Fetcher, base string, logger zerolog.Logger) *Resolver {
	return &Resolver{
		fetcher: fetcher,
		base:    base,
		logger:  logger.With().Str("component", "manifest").Logger(),
	}
}

// NewStaticResolver creates a resolver over an already decoded manifest.
func NewStaticResolver(m Manifest, base string) *Resolver {
	return &Resolver{base: base, manifest: m, loaded: true, logger: zerolog.Nop()}
}

// Manifest returns the manifest, fetching it on first use.
func (r *Resolver) Manifest(ctx context.Context) Manifest {
	r.mu.Lock()
	if r.loaded {
		m := r.manifest
		r.mu.Unlock()
		return m
	}
	r.mu.Unlock()

	v, _, _ := r.group.Do("manifest", func() (interface{}, error) {
		m := Manifest{}
		if r.fetcher != nil {
			data, err := r.fetcher.FetchManifest(ctx)
			if err != nil {
				r.logger.Warn().Err(err).Msg("manifest unavailable, using relative module paths")
			} else if parsed, err := Parse(data); err != nil {
				r.logger.Warn().Err(err).Msg("manifest invalid, using relative module paths")
			} else {
				m = parsed
			}
		}
		r.mu.Lock()
		r.manifest = m
		r.loaded = true
		r.mu.Unlock()
		return m, nil
	})
	return v.(Manifest)
}

// Resolve returns the importable URL for a module reference.
func (r *Resolver) Resolve(ctx context.Context, moduleRef string) (string, error) {
	return ResolveModulePath(moduleRef, r.Manifest(ctx), r.base)
}

package manifest

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

func TestResolveModulePath(t *testing.T) {
	m := Manifest{
		"assets/js/toys/aurora.ts": {File: "assets/aurora-3f2a.js"},
	}
	tests := []struct {
		name     string
		ref      string
		manifest Manifest
		base     string
		want     string
	}{
		{"manifest entry", "assets/js/toys/aurora.ts", m, "https://toys.example/", "https://toys.example/assets/aurora-3f2a.js"},
		{"manifest entry with dot prefix", "./assets/js/toys/aurora.ts", m, "https://toys.example/app/", "https://toys.example/app/assets/aurora-3f2a.js"},
		{"manifest entry with root prefix", "/assets/js/toys/aurora.ts", m, "https://toys.example/", "https://toys.example/assets/aurora-3f2a.js"},
		{"relative fallback", "assets/js/toys/grid.ts", m, "https://toys.example/app/", "https://toys.example/app/assets/js/toys/grid.ts"},
		{"relative fallback without manifest", "./assets/js/toys/../toys/grid.ts", nil, "https://toys.example/", "https://toys.example/assets/js/toys/grid.ts"},
		{"absolute path fallback", "/toys/holy.html", nil, "https://toys.example/app/index.html", "https://toys.example/toys/holy.html"},
		{"absolute url passthrough", "https://cdn.example/x.js", nil, "https://toys.example/", "https://cdn.example/x.js"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveModulePath(tt.ref, tt.manifest, tt.base)
			if err != nil {
				t.Fatalf("ResolveModulePath(%q): %v", tt.ref, err)
			}
			if got != tt.want {
				t.Errorf("ResolveModulePath(%q) = %q, expected %q", tt.ref, got, tt.want)
			}
			again, _ := ResolveModulePath(tt.ref, tt.manifest, tt.base)
			if again != got {
				t.Errorf("Expected deterministic result, got %q then %q", got, again)
			}
		})
	}
}

func TestResolveModulePath_Errors(t *testing.T) {
	if _, err := ResolveModulePath("", nil, "https://toys.example/"); err == nil {
		t.Error("Expected error for empty reference")
	}
	if _, err := ResolveModulePath("../secret.js", nil, "https://toys.example/"); err == nil {
		t.Error("Expected error for reference escaping the base")
	}
	if _, err := ResolveModulePath("a.js", nil, "://bad"); err == nil {
		t.Error("Expected error for bad base url")
	}
}

func TestParse(t *testing.T) {
	m, err := Parse([]byte(`{"assets/js/toys/a.ts":{"file":"assets/a-1.js","isEntry":true}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if e, ok := m.Lookup("assets/js/toys/a.ts"); !ok || e.File != "assets/a-1.js" || !e.IsEntry {
		t.Errorf("Unexpected entry %+v (found=%v)", e, ok)
	}
	if m, err := Parse(nil); err != nil || len(m) != 0 {
		t.Errorf("Expected empty manifest for empty input, got %v, %v", m, err)
	}
	if _, err := Parse([]byte("{")); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

type countingFetcher struct {
	calls atomic.Int32
	data  []byte
	err   error
}

func (f *countingFetcher) FetchManifest(ctx context.Context) ([]byte, error) {
	f.calls.Add(1)
	return f.data, f.err
}

// TestResolver_FetchesOnce tests that the manifest is fetched a single time
func TestResolver_FetchesOnce(t *testing.T) {
	f := &countingFetcher{data: []byte(`{"a.ts":{"file":"a-1.js"}}`)}
	r := NewResolver(f, "https://toys.example/", zerolog.Nop())

	for i := 0; i < 3; i++ {
		got, err := r.Resolve(context.Background(), "a.ts")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if got != "https://toys.example/a-1.js" {
			t.Errorf("Resolve = %q", got)
		}
	}
	if n := f.calls.Load(); n != 1 {
		t.Errorf("Expected 1 manifest fetch, got %d", n)
	}
}

// TestResolver_FetchFailureFallsBack tests that a missing manifest uses relative rules
func TestResolver_FetchFailureFallsBack(t *testing.T) {
	f := &countingFetcher{err: errors.New("404")}
	r := NewResolver(f, "https://toys.example/", zerolog.Nop())
	got, err := r.Resolve(context.Background(), "assets/js/toys/a.ts")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "https://toys.example/assets/js/toys/a.ts" {
		t.Errorf("Resolve = %q", got)
	}
}

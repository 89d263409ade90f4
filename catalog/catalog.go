// Package catalog holds the static list of toys the library can mount.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Kind discriminates in-process toy modules from standalone pages.
type Kind string

const (
	KindModule Kind = "module"
	KindPage   Kind = "page"
)

// Toy is a single catalog entry.
type Toy struct {
	Slug               string   `json:"slug" yaml:"slug" toml:"slug"`
	Title              string   `json:"title" yaml:"title" toml:"title"`
	Description        string   `json:"description" yaml:"description" toml:"description"`
	Module             string   `json:"module" yaml:"module" toml:"module"`
	Type               Kind     `json:"type,omitempty" yaml:"type,omitempty" toml:"type,omitempty"`
	RequiresWebGPU     bool     `json:"requiresWebGPU,omitempty" yaml:"requiresWebGPU,omitempty" toml:"requiresWebGPU,omitempty"`
	AllowWebGLFallback bool     `json:"allowWebGLFallback,omitempty" yaml:"allowWebGLFallback,omitempty" toml:"allowWebGLFallback,omitempty"`
	Tags               []string `json:"tags,omitempty" yaml:"tags,omitempty" toml:"tags,omitempty"`
}

// IsPage reports whether the toy is an external page rather than a module.
func (t Toy) IsPage() bool { return t.Type == KindPage }

// Catalog is an ordered, immutable set of toys indexed by slug.
type Catalog struct {
	toys   []Toy
	bySlug map[string]int
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// New validates toys and builds a catalog from them.
func New(toys []Toy) (*Catalog, error) {
	normalized := make([]Toy, len(toys))
	for i, t := range toys {
		if t.Type == "" {
			t.Type = KindModule
		}
		normalized[i] = t
	}
	if err := Validate(normalized); err != nil {
		return nil, err
	}
	c := &Catalog{
		toys:   normalized,
		bySlug: make(map[string]int, len(normalized)),
	}
	for i, t := range normalized {
		c.bySlug[t.Slug] = i
	}
	return c, nil
}

// Validate checks every entry and returns all problems joined together.
func Validate(toys []Toy) error {
	var errs []error
	seen := make(map[string]int, len(toys))
	for i, t := range toys {
		where := fmt.Sprintf("toy[%d]", i)
		if t.Slug != "" {
			where = fmt.Sprintf("toy %q", t.Slug)
		}
		switch {
		case t.Slug == "":
			errs = append(errs, fmt.Errorf("%s: slug is required", where))
		case !slugPattern.MatchString(t.Slug):
			errs = append(errs, fmt.Errorf("%s: slug must be lowercase letters, digits and dashes", where))
		}
		if prev, dup := seen[t.Slug]; dup && t.Slug != "" {
			errs = append(errs, fmt.Errorf("%s: duplicate slug (first defined at toy[%d])", where, prev))
		} else {
			seen[t.Slug] = i
		}
		if strings.TrimSpace(t.Module) == "" {
			errs = append(errs, fmt.Errorf("%s: module is required", where))
		}
		switch t.Type {
		case "", KindModule, KindPage:
		default:
			errs = append(errs, fmt.Errorf("%s: unknown type %q", where, t.Type))
		}
		if t.AllowWebGLFallback && !t.RequiresWebGPU {
			errs = append(errs, fmt.Errorf("%s: allowWebGLFallback requires requiresWebGPU", where))
		}
	}
	return errors.Join(errs...)
}

// Lookup returns the toy registered under slug.
func (c *Catalog) Lookup(slug string) (Toy, bool) {
	if c == nil {
		return Toy{}, false
	}
	i, ok := c.bySlug[slug]
	if !ok {
		return Toy{}, false
	}
	return c.toys[i], true
}

// All returns a copy of the toys in catalog order.
func (c *Catalog) All() []Toy {
	if c == nil {
		return nil
	}
	out := make([]Toy, len(c.toys))
	copy(out, c.toys)
	return out
}

// Len returns the number of toys.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.toys)
}

// MarshalJSON encodes the catalog as its ordered toy list.
func (c *Catalog) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.All())
}

// Load reads a catalog file based on its extension.
// Supports: .json, .yaml/.yml, .toml
func Load(path string) (*Catalog, error) {
	if path == "" {
		return nil, fmt.Errorf("empty catalog path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
}

// tomlDocument wraps the toy list, since TOML has no top-level arrays.
type tomlDocument struct {
	Toys []Toy `toml:"toys"`
}

// Parse decodes a catalog in the given format ("json", "yaml", "yml" or "toml").
func Parse(data []byte, format string) (*Catalog, error) {
	var toys []Toy
	switch format {
	case "json":
		if err := json.Unmarshal(data, &toys); err != nil {
			return nil, fmt.Errorf("decode catalog json: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &toys); err != nil {
			return nil, fmt.Errorf("decode catalog yaml: %w", err)
		}
	case "toml":
		var doc tomlDocument
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode catalog toml: %w", err)
		}
		toys = doc.Toys
	default:
		return nil, fmt.Errorf("unsupported catalog format: %s", format)
	}
	return New(toys)
}

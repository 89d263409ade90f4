// Package config holds the loader (client) and dev server settings.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Client configures the in-browser loader. It is served to the page at /api/config.
// Zero values mean "unspecified" and are replaced by defaults.
type Client struct {
	QueryParam           string `json:"query_param" yaml:"query_param" toml:"query_param"`
	LibraryPath          string `json:"library_path" yaml:"library_path" toml:"library_path"`
	ManifestURL          string `json:"manifest_url" yaml:"manifest_url" toml:"manifest_url"`
	CatalogURL           string `json:"catalog_url" yaml:"catalog_url" toml:"catalog_url"`
	AudioStarterAttempts int    `json:"audio_starter_attempts" yaml:"audio_starter_attempts" toml:"audio_starter_attempts"`
	AudioStarterDelayMS  int    `json:"audio_starter_delay_ms" yaml:"audio_starter_delay_ms" toml:"audio_starter_delay_ms"`
	ForceCompatibility   bool   `json:"force_compatibility" yaml:"force_compatibility" toml:"force_compatibility"`
	LogLevel             string `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// Server configures the dev/static server.
type Server struct {
	Addr         string   `json:"addr" yaml:"addr" toml:"addr"`
	StaticDir    string   `json:"static_dir" yaml:"static_dir" toml:"static_dir"`
	CatalogPath  string   `json:"catalog_path" yaml:"catalog_path" toml:"catalog_path"`
	ManifestPath string   `json:"manifest_path" yaml:"manifest_path" toml:"manifest_path"`
	LogLevel     string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	CORSOrigins  []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	Client       Client   `json:"client" yaml:"client" toml:"client"`
}

// DefaultClient returns the production loader settings.
func DefaultClient() Client {
	return Client{
		QueryParam:           "toy",
		LibraryPath:          "/",
		ManifestURL:          "/.vite/manifest.json",
		CatalogURL:           "/api/toys",
		AudioStarterAttempts: 30,
		AudioStarterDelayMS:  100,
		LogLevel:             "info",
	}
}

// DefaultServer returns the dev server settings.
func DefaultServer() Server {
	return Server{
		Addr:        ":8080",
		StaticDir:   ".",
		CatalogPath: "toys.json",
		LogLevel:    "info",
		CORSOrigins: []string{"*"},
		Client:      DefaultClient(),
	}
}

// AudioStarterDelay is the poll interval as a duration.
func (c Client) AudioStarterDelay() time.Duration {
	return time.Duration(c.AudioStarterDelayMS) * time.Millisecond
}

// WithDefaults fills unspecified fields.
func (c Client) WithDefaults() Client {
	d := DefaultClient()
	if c.QueryParam == "" {
		c.QueryParam = d.QueryParam
	}
	if c.LibraryPath == "" {
		c.LibraryPath = d.LibraryPath
	}
	if c.ManifestURL == "" {
		c.ManifestURL = d.ManifestURL
	}
	if c.CatalogURL == "" {
		c.CatalogURL = d.CatalogURL
	}
	if c.AudioStarterAttempts == 0 {
		c.AudioStarterAttempts = d.AudioStarterAttempts
	}
	if c.AudioStarterDelayMS == 0 {
		c.AudioStarterDelayMS = d.AudioStarterDelayMS
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	return c
}

// Validate rejects settings the loader cannot run with.
func (c Client) Validate() error {
	var errs []error
	if strings.TrimSpace(c.QueryParam) == "" {
		errs = append(errs, errors.New("query_param must not be empty"))
	}
	if c.AudioStarterAttempts <= 0 {
		errs = append(errs, fmt.Errorf("audio_starter_attempts must be positive, got %d", c.AudioStarterAttempts))
	}
	if c.AudioStarterDelayMS <= 0 {
		errs = append(errs, fmt.Errorf("audio_starter_delay_ms must be positive, got %d", c.AudioStarterDelayMS))
	}
	return errors.Join(errs...)
}

// WithDefaults fills unspecified fields, including the client block.
func (s Server) WithDefaults() Server {
	d := DefaultServer()
	if s.Addr == "" {
		s.Addr = d.Addr
	}
	if s.StaticDir == "" {
		s.StaticDir = d.StaticDir
	}
	if s.CatalogPath == "" {
		s.CatalogPath = d.CatalogPath
	}
	if s.LogLevel == "" {
		s.LogLevel = d.LogLevel
	}
	if len(s.CORSOrigins) == 0 {
		s.CORSOrigins = d.CORSOrigins
	}
	s.Client = s.Client.WithDefaults()
	return s
}

// Validate checks the server and its client block.
func (s Server) Validate() error {
	var errs []error
	if s.Addr == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if s.CatalogPath == "" {
		errs = append(errs, errors.New("catalog_path must not be empty"))
	}
	if err := s.Client.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("client: %w", err))
	}
	return errors.Join(errs...)
}

// Load reads a server configuration file based on its extension and fills defaults.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Server, error) {
	var cfg Server
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := decode(b, filepath.Ext(path), &cfg); err != nil {
		return cfg, err
	}
	return cfg.WithDefaults(), nil
}

// ParseClient decodes a JSON client block, as served at /api/config.
func ParseClient(data []byte) (Client, error) {
	var c Client
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("parse client config: %w", err)
		}
	}
	c = c.WithDefaults()
	return c, c.Validate()
}

func decode(b []byte, ext string, v any) error {
	switch ext = strings.ToLower(ext); ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, v)
	case ".json":
		return json.Unmarshal(b, v)
	case ".toml":
		return toml.Unmarshal(b, v)
	default:
		return fmt.Errorf("unsupported config extension: %s", ext)
	}
}

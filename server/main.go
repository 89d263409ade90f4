//go:build !js
// +build !js

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/simukka/toybox/catalog"
	"github.com/simukka/toybox/config"
	"github.com/simukka/toybox/manifest"
)

// app is the state shared by every command.
type app struct {
	cfg    config.Server
	logger zerolog.Logger
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(lvl).With().Timestamp().Logger()
}

// buildRootCmd constructs the toybox-server command tree.
func buildRootCmd() *cobra.Command {
	a := &app{cfg: config.DefaultServer()}
	var cfgPath, logLevel string

	root := &cobra.Command{
		Use:           "toybox-server",
		Short:         "Dev and static server for the toy library",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (.yaml, .json or .toml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug|info|warn|error (overrides config)")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cfgPath != "" {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = cfg
		}
		if logLevel != "" {
			a.cfg.LogLevel = logLevel
		}
		a.logger = newLogger(a.cfg.LogLevel)
		return nil
	}

	root.AddCommand(a.serveCmd(), a.validateCmd(), a.resolveCmd())
	return root
}

func (a *app) serveCmd() *cobra.Command {
	var addr, static, catalogPath string
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve the library, its API and static assets",
		Example: "  toybox-server serve --addr :8080 --static dist",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Addr = addr
			}
			if static != "" {
				a.cfg.StaticDir = static
			}
			if catalogPath != "" {
				a.cfg.CatalogPath = catalogPath
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			s, err := newServer(a.cfg, a.logger)
			if err != nil {
				return err
			}
			return a.listen(s)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address, e.g. :8080")
	cmd.Flags().StringVar(&static, "static", "", "Directory to serve static files from")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "Catalog file (.json, .yaml or .toml)")
	return cmd
}

func (a *app) listen(s *server) error {
	srv := &http.Server{Addr: a.cfg.Addr, Handler: s.routes(), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		a.logger.Info().
			Str("addr", a.cfg.Addr).
			Str("static", a.cfg.StaticDir).
			Int("toys", s.catalog.Len()).
			Msg("toybox server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		return err
	case <-stop:
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "validate [catalog]",
		Short:   "Check a catalog file and list every problem",
		Example: "  toybox-server validate toys.yaml",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.CatalogPath
			if len(args) == 1 {
				path = args[0]
			}
			cat, err := catalog.Load(path)
			if err != nil {
				for _, line := range strings.Split(err.Error(), "\n") {
					fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", line)
				}
				return fmt.Errorf("%s: catalog is invalid", path)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d toys OK\n", path, cat.Len())
			return nil
		},
	}
}

func (a *app) resolveCmd() *cobra.Command {
	var base string
	cmd := &cobra.Command{
		Use:     "resolve <slug>",
		Short:   "Print the module URL a toy loads from",
		Example: "  toybox-server resolve spiral --base http://localhost:8080/",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := catalog.Load(a.cfg.CatalogPath)
			if err != nil {
				return err
			}
			toy, ok := cat.Lookup(args[0])
			if !ok {
				return fmt.Errorf("no toy named %q in %s", args[0], a.cfg.CatalogPath)
			}
			m := manifest.Manifest{}
			if a.cfg.ManifestPath != "" {
				data, err := os.ReadFile(a.cfg.ManifestPath)
				if err != nil {
					return err
				}
				if m, err = manifest.Parse(data); err != nil {
					return err
				}
			}
			if base == "" {
				base = "http://localhost" + a.cfg.Addr + "/"
			}
			u, err := manifest.ResolveModulePath(toy.Module, m, base)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		},
	}
	cmd.Flags().StringVar(&base, "base", "", "Base URL modules resolve against (default http://localhost<addr>/)")
	return cmd
}

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "toybox-server:", err)
		os.Exit(1)
	}
}

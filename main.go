//go:build js
// +build js

package main

import (
	"context"

	"github.com/gopherjs/gopherjs/js"

	"github.com/simukka/toybox/agent"
	"github.com/simukka/toybox/audio"
	"github.com/simukka/toybox/capability"
	"github.com/simukka/toybox/catalog"
	"github.com/simukka/toybox/lifecycle"
	"github.com/simukka/toybox/loader"
	"github.com/simukka/toybox/manifest"
	"github.com/simukka/toybox/render"
	"github.com/simukka/toybox/router"
	"github.com/simukka/toybox/view"
	"github.com/simukka/toybox/web"
)

// configURL is fixed; everything else comes from it.
const configURL = "/api/config"

func main() {
	ctx := context.Background()
	doc := js.Global.Get("document")

	cfg, err := web.FetchConfig(ctx, configURL)
	logger := web.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Warn().Err(err).Msg("client config unavailable, using defaults")
	}

	cat, err := web.FetchCatalog(ctx, cfg.CatalogURL)
	if err != nil {
		logger.Error().Err(err).Str("url", cfg.CatalogURL).Msg("catalog unavailable")
		cat, _ = catalog.New(nil)
	}

	history := web.History{}
	rt := router.New(history, router.Options{
		QueryParam:  cfg.QueryParam,
		LibraryPath: cfg.LibraryPath,
	})
	compat := cfg.ForceCompatibility || history.Location().Query().Has("compat")
	prober := capability.NewProber(web.Platform{},
		capability.WithForcedCompatibility(compat),
		capability.WithLogger(logger),
	)

	// Get the root element
	root := doc.Call("getElementById", "toybox")
	if root == nil || root == js.Undefined {
		root = doc.Get("body")
	}
	surface := web.NewSurface(root, cfg.QueryParam, cat.All())
	v := view.New(surface, logger)
	surface.OnBack = v.Back

	ag := agent.NewSurface(agent.WithLogger(logger))
	starters := loader.NewStarters()
	web.ExposeStarters(starters)

	ld, err := loader.New(loader.Deps{
		Catalog:   cat,
		Router:    rt,
		Prober:    prober,
		View:      v,
		Resolver:  manifest.NewResolver(web.ManifestFetcher{URL: cfg.ManifestURL}, doc.Get("baseURI").String(), logger),
		Importer:  web.Importer{},
		Renderers: render.NewPool(web.RendererFactory{}, prober, logger),
		Audio:     audio.NewPool(web.MediaDevices{}, &web.AudioGraph{}, audio.WithReporter(ag), audio.WithLogger(logger)),
		Lifecycle: lifecycle.New(web.Keyboard{}, logger),
		Agent:     ag,
		Starters:  starters,
		Navigator: history,
		Config:    cfg,
		Logger:    logger,
	})
	if err != nil {
		logger.Error().Err(err).Msg("loader wiring failed")
		return
	}
	surface.OnSelect = func(slug string) {
		_ = ld.LoadToy(ctx, slug, loader.Options{PushState: true})
	}

	// Expose the automation API to JavaScript
	web.ExposeAgent(ag)

	// Tear the toy down when the page goes away
	js.Global.Call("addEventListener", "beforeunload", func() {
		ld.Shutdown()
	})

	ld.InitNavigation()
	_ = ld.LoadFromQuery(ctx)

	select {}
}

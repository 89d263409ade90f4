//go:build js
// +build js

package web

import (
	"context"
	"fmt"

	"github.com/gopherjs/gopherjs/js"

	"github.com/simukka/toybox/catalog"
	"github.com/simukka/toybox/config"
)

// fetchText GETs url and returns the body.
func fetchText(ctx context.Context, url string) ([]byte, error) {
	p, err := safeCall(func() *js.Object { return js.Global.Call("fetch", url) })
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	resp, err := await(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if !resp.Get("ok").Bool() {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.Get("status").Int())
	}
	body, err := await(ctx, resp.Call("text"))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return []byte(body.String()), nil
}

// ManifestFetcher implements manifest.Fetcher over fetch().
type ManifestFetcher struct {
	URL string
}

// FetchManifest returns the raw manifest.
func (f ManifestFetcher) FetchManifest(ctx context.Context) ([]byte, error) {
	return fetchText(ctx, f.URL)
}

// FetchCatalog loads the JSON catalog at url.
func FetchCatalog(ctx context.Context, url string) (*catalog.Catalog, error) {
	data, err := fetchText(ctx, url)
	if err != nil {
		return nil, err
	}
	return catalog.Parse(data, "json")
}

// FetchConfig loads the client config at url. Any failure yields the defaults
// along with the error.
func FetchConfig(ctx context.Context, url string) (config.Client, error) {
	data, err := fetchText(ctx, url)
	if err != nil {
		return config.DefaultClient(), err
	}
	c, err := config.ParseClient(data)
	if err != nil {
		return config.DefaultClient(), err
	}
	return c, nil
}

//go:build js
// +build js

package web

import (
	"net/url"

	"github.com/gopherjs/gopherjs/js"
)

// History implements router.History and loader.Navigator over window.history
// and window.location.
type History struct{}

// Location returns the current page URL.
func (History) Location() *url.URL {
	u, err := url.Parse(js.Global.Get("location").Get("href").String())
	if err != nil {
		return &url.URL{Path: "/"}
	}
	return u
}

// Push adds an entry to the session history without reloading.
func (History) Push(href string) {
	js.Global.Get("history").Call("pushState", map[string]interface{}{}, "", href)
}

// OnPopState registers fn for back/forward navigation.
func (History) OnPopState(fn func()) func() {
	listener := js.MakeFunc(func(this *js.Object, args []*js.Object) interface{} {
		// Route changes load toys, which block on promises.
		go fn()
		return nil
	})
	js.Global.Call("addEventListener", "popstate", listener)
	return func() {
		js.Global.Call("removeEventListener", "popstate", listener)
	}
}

// Navigate leaves the app for href.
func (History) Navigate(href string) {
	js.Global.Get("location").Call("assign", href)
}

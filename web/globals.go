//go:build js
// +build js

package web

import (
	"context"

	"github.com/gopherjs/gopherjs/js"

	"github.com/simukka/toybox/agent"
	"github.com/simukka/toybox/audio"
	"github.com/simukka/toybox/loader"
)

// Globals set on window.
const (
	StarterGlobal = "toyboxRegisterAudioStarter"
	AgentGlobal   = "ToyboxAgent"
)

// ExposeStarters lets toys call window.toyboxRegisterAudioStarter(fn). fn is
// called with the source name and may return a promise.
func ExposeStarters(s *loader.Starters) {
	js.Global.Set(StarterGlobal, func(fn *js.Object) {
		if !isFunction(fn) {
			return
		}
		s.Register(func(ctx context.Context, source audio.Source) error {
			v, err := safeCall(func() *js.Object { return fn.Invoke(string(source)) })
			if err != nil {
				return classify(err)
			}
			if thenable(v) {
				if _, err := await(ctx, v); err != nil {
					return classify(err)
				}
			}
			return nil
		})
	})
}

// ExposeAgent publishes window.ToyboxAgent with getState() and
// subscribe(event, fn) returning an unsubscribe function.
func ExposeAgent(a *agent.Surface) {
	js.Global.Set(AgentGlobal, map[string]interface{}{
		"getState": func() *js.Object {
			return toJS(a.State())
		},
		"subscribe": func(name string, fn *js.Object) func() {
			if !isFunction(fn) {
				return func() {}
			}
			return a.Subscribe(name, func(ev agent.Event) {
				fn.Invoke(toJS(ev))
			})
		},
	})
}

//go:build js
// +build js

package web

import (
	"net/url"

	"github.com/gopherjs/gopherjs/js"

	"github.com/simukka/toybox/catalog"
	"github.com/simukka/toybox/render"
	"github.com/simukka/toybox/view"
)

// Container is the element a toy mounts into.
type Container struct {
	el *js.Object
}

var (
	_ view.Container = (*Container)(nil)
	_ render.Host    = (*Container)(nil)
)

// Clear removes everything the toy added.
func (c *Container) Clear() {
	c.el.Set("innerHTML", "")
}

// AppendCanvas attaches a renderer canvas.
func (c *Container) AppendCanvas(canvas render.Canvas) {
	if jc, ok := canvas.(*jsCanvas); ok {
		c.el.Call("appendChild", jc.el)
	}
}

// Surface draws view.State into the page. Action handlers run on their own
// goroutine because they load toys and wait on promises.
type Surface struct {
	// OnSelect is called when a library card is clicked.
	OnSelect func(slug string)
	// OnBack is called by the back button.
	OnBack func()

	doc     *js.Object
	root    *js.Object
	library *js.Object
	stage   *js.Object
	back    *js.Object
	host    *js.Object
	status  *js.Object
	badge   *js.Object
	prompt  *js.Object
}

var _ view.Surface = (*Surface)(nil)

// NewSurface builds the page skeleton under root and lists toys in the
// library. param is the query parameter card links use.
func NewSurface(root *js.Object, param string, toys []catalog.Toy) *Surface {
	doc := js.Global.Get("document")
	s := &Surface{doc: doc, root: root}

	s.library = s.el("section", "toy-library", "")
	list := s.el("ul", "toy-list", "")
	for _, t := range toys {
		list.Call("appendChild", s.card(param, t))
	}
	s.library.Call("appendChild", list)

	s.stage = s.el("section", "toy-stage", "")
	s.back = s.el("button", "toy-back", "← Library")
	s.back.Call("addEventListener", "click", func() {
		if s.OnBack != nil {
			go s.OnBack()
		}
	})
	s.badge = s.el("div", "renderer-badge", "")
	s.status = s.el("div", "toy-status", "")
	s.prompt = s.el("div", "audio-prompt", "")
	s.host = s.el("div", "active-toy", "")
	for _, child := range []*js.Object{s.back, s.badge, s.status, s.prompt, s.host} {
		s.stage.Call("appendChild", child)
	}

	root.Call("appendChild", s.library)
	root.Call("appendChild", s.stage)
	return s
}

func (s *Surface) el(tag, class, text string) *js.Object {
	e := s.doc.Call("createElement", tag)
	if class != "" {
		e.Set("className", class)
	}
	if text != "" {
		e.Set("textContent", text)
	}
	return e
}

func (s *Surface) card(param string, t catalog.Toy) *js.Object {
	li := s.el("li", "toy-card", "")
	a := s.el("a", "", t.Title)
	a.Set("href", "?"+url.Values{param: {t.Slug}}.Encode())
	a.Call("addEventListener", "click", func(ev *js.Object) {
		if ev.Get("metaKey").Bool() || ev.Get("ctrlKey").Bool() {
			return
		}
		ev.Call("preventDefault")
		if s.OnSelect != nil {
			go s.OnSelect(t.Slug)
		}
	})
	li.Call("appendChild", a)
	if t.Description != "" {
		li.Call("appendChild", s.el("p", "toy-description", t.Description))
	}
	if t.RequiresWebGPU {
		li.Call("appendChild", s.el("span", "toy-tag", "WebGPU"))
	}
	return li
}

func (s *Surface) button(a view.Action) *js.Object {
	class := "action"
	if a.Primary {
		class = "action primary"
	}
	b := s.el("button", class, a.Label)
	b.Get("dataset").Set("action", a.ID)
	run := a.Run
	b.Call("addEventListener", "click", func() {
		if run != nil {
			go run()
		}
	})
	return b
}

func (s *Surface) show(e *js.Object, visible bool) {
	e.Set("hidden", !visible)
}

// NewContainer creates a fresh mount point inside the stage.
func (s *Surface) NewContainer() view.Container {
	el := s.el("div", "toy-container", "")
	s.host.Call("appendChild", el)
	return &Container{el: el}
}

// Render redraws everything State describes.
func (s *Surface) Render(st view.State) {
	s.root.Get("dataset").Set("mode", string(st.Mode))
	s.show(s.library, st.Mode == view.ModeLibrary)
	s.show(s.stage, st.Mode == view.ModeToy)
	s.show(s.back, st.HasBack)

	s.status.Set("innerHTML", "")
	s.show(s.status, st.Status != nil)
	if st.Status != nil {
		s.status.Get("dataset").Set("kind", string(st.Status.Kind))
		s.status.Call("appendChild", s.el("h2", "", st.Status.Title))
		s.status.Call("appendChild", s.el("p", "", st.Status.Message))
		for _, a := range st.Status.Actions {
			s.status.Call("appendChild", s.button(a))
		}
	}

	s.badge.Set("innerHTML", "")
	s.show(s.badge, st.Renderer != nil)
	if b := st.Renderer; b != nil {
		s.badge.Get("dataset").Set("backend", string(b.Backend))
		label := s.el("span", "", b.Label)
		if b.Reason != "" {
			label.Set("title", b.Reason)
		}
		s.badge.Call("appendChild", label)
		if b.Retry != nil {
			s.badge.Call("appendChild", s.button(*b.Retry))
		}
	}

	s.prompt.Set("innerHTML", "")
	s.show(s.prompt, st.Audio != nil)
	if p := st.Audio; p != nil {
		s.prompt.Call("appendChild", s.el("p", "", p.Message))
		for _, a := range p.Actions {
			s.prompt.Call("appendChild", s.button(a))
		}
		if p.Error != "" {
			s.prompt.Call("appendChild", s.el("p", "audio-error", p.Error))
		}
	}
}

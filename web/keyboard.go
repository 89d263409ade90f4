//go:build js
// +build js

package web

import (
	"github.com/gopherjs/gopherjs/js"
)

// Escape key code.
const keyEscape = 27

// Keyboard implements lifecycle.Keyboard with document keydown listeners.
type Keyboard struct{}

// OnEscape calls fn whenever Escape is pressed outside a text field.
func (Keyboard) OnEscape(fn func()) func() {
	listener := js.MakeFunc(func(this *js.Object, args []*js.Object) interface{} {
		event := args[0]
		if event.Get("keyCode").Int() != keyEscape && event.Get("key").String() != "Escape" {
			return nil
		}
		if typing(event.Get("target")) {
			return nil
		}
		event.Call("preventDefault")
		go fn()
		return nil
	})
	doc := js.Global.Get("document")
	doc.Call("addEventListener", "keydown", listener)
	return func() {
		doc.Call("removeEventListener", "keydown", listener)
	}
}

func typing(target *js.Object) bool {
	if nullish(target) || !has(target, "tagName") {
		return false
	}
	switch target.Get("tagName").String() {
	case "INPUT", "TEXTAREA", "SELECT":
		return true
	}
	return has(target, "isContentEditable") && target.Get("isContentEditable").Bool()
}

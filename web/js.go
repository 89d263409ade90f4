//go:build js
// +build js

// Package web implements the browser providers behind the platform-neutral
// packages: history, keyboard, capability probing, media capture, module
// import and DOM rendering.
package web

import (
	"context"
	"fmt"

	"github.com/gopherjs/gopherjs/js"
)

// nullish reports whether o is null or undefined.
func nullish(o *js.Object) bool {
	return o == nil || o == js.Undefined
}

// has reports whether o.key is set.
func has(o *js.Object, key string) bool {
	return !nullish(o) && !nullish(o.Get(key))
}

// DOMError is a rejected promise or thrown exception.
type DOMError struct {
	Name    string
	Message string
}

func (e *DOMError) Error() string {
	if e.Name == "" {
		return e.Message
	}
	return e.Name + ": " + e.Message
}

func toError(o *js.Object) error {
	if nullish(o) {
		return &DOMError{Message: "unknown error"}
	}
	if has(o, "message") {
		name := ""
		if has(o, "name") {
			name = o.Get("name").String()
		}
		return &DOMError{Name: name, Message: o.Get("message").String()}
	}
	return &DOMError{Message: o.String()}
}

// await blocks until p settles or ctx ends.
func await(ctx context.Context, p *js.Object) (*js.Object, error) {
	type result struct {
		value *js.Object
		err   error
	}
	ch := make(chan result, 1)
	p.Call("then",
		func(v *js.Object) { ch <- result{value: v} },
		func(e *js.Object) { ch <- result{err: toError(e)} },
	)
	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var typeOf = js.Global.Call("eval", "(function(v){ return typeof v; })")

func isFunction(o *js.Object) bool {
	return !nullish(o) && typeOf.Invoke(o).String() == "function"
}

// thenable reports whether o looks like a promise.
func thenable(o *js.Object) bool {
	if nullish(o) {
		return false
	}
	if t := typeOf.Invoke(o).String(); t != "object" && t != "function" {
		return false
	}
	return isFunction(o.Get("then"))
}

// promise runs fn on a goroutine and settles a JS promise with its result.
func promise(fn func() (interface{}, error)) *js.Object {
	return js.Global.Get("Promise").New(func(resolve, reject *js.Object) {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					reject.Invoke(js.Global.Get("Error").New(fmt.Sprint(r)))
				}
			}()
			v, err := fn()
			if err != nil {
				reject.Invoke(js.Global.Get("Error").New(err.Error()))
				return
			}
			resolve.Invoke(v)
		}()
	})
}

// safeCall invokes fn and turns a thrown exception into an error.
func safeCall(fn func() *js.Object) (v *js.Object, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(*js.Error); ok {
				err = toError(e.Object)
				return
			}
			err = fmt.Errorf("%v", r)
		}
	}()
	return fn(), nil
}
